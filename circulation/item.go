package circulation

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IssuanceState is the lending state of an item.
type IssuanceState string

const (
	StateAvailable IssuanceState = "available"
	StateOnLoan    IssuanceState = "onLoan"
)

const (
	fieldTitle    = "title"
	fieldCreator  = "creator"
	fieldCategory = "category"
)

// ItemDetails are the descriptive attributes of an item.
type ItemDetails struct {
	Title    string
	Creator  string
	Category string
}

// Normalized returns the details with surrounding blanks removed.
func (d ItemDetails) Normalized() ItemDetails {
	return ItemDetails{
		Title:    strings.TrimSpace(d.Title),
		Creator:  strings.TrimSpace(d.Creator),
		Category: strings.TrimSpace(d.Category),
	}
}

// Validate rejects blank attributes.
func (d ItemDetails) Validate() error {
	if err := validateField(fieldTitle, strings.TrimSpace(d.Title), tagNotBlank); err != nil {
		return err
	}

	if err := validateField(fieldCreator, strings.TrimSpace(d.Creator), tagNotBlank); err != nil {
		return err
	}

	return validateField(fieldCategory, strings.TrimSpace(d.Category), tagNotBlank)
}

// item is one lendable unit. It holds no locks; the Catalog serializes access.
type item struct {
	id       uuid.UUID
	details  ItemDetails
	state    IssuanceState
	holder   *holder
	dueDate  time.Time
	waitList []*holder
}

func newItem(id uuid.UUID, details ItemDetails) (*item, error) {
	details = details.Normalized()
	if err := details.Validate(); err != nil {
		return nil, err
	}

	return &item{
		id:      id,
		details: details,
		state:   StateAvailable,
	}, nil
}

func (i *item) setTitle(title string) error {
	if err := validateField(fieldTitle, strings.TrimSpace(title), tagNotBlank); err != nil {
		return err
	}

	i.details.Title = strings.TrimSpace(title)

	return nil
}

func (i *item) setCreator(creator string) error {
	if err := validateField(fieldCreator, strings.TrimSpace(creator), tagNotBlank); err != nil {
		return err
	}

	i.details.Creator = strings.TrimSpace(creator)

	return nil
}

func (i *item) setCategory(category string) error {
	if err := validateField(fieldCategory, strings.TrimSpace(category), tagNotBlank); err != nil {
		return err
	}

	i.details.Category = strings.TrimSpace(category)

	return nil
}

func (i *item) isOnLoan() bool {
	return i.state == StateOnLoan
}

// issueTo moves the item from available to onLoan.
func (i *item) issueTo(h *holder, dueDate time.Time) error {
	if i.state == StateOnLoan {
		return invariantViolation("item %s is already on loan", i.id)
	}

	if h == nil || dueDate.IsZero() {
		return invariantViolation("item %s issued without holder or due date", i.id)
	}

	i.state = StateOnLoan
	i.holder = h
	i.dueDate = dueDate

	return nil
}

// release moves the item back to available.
func (i *item) release() {
	i.state = StateAvailable
	i.holder = nil
	i.dueDate = time.Time{}
}

func (i *item) enqueueWaiter(h *holder) bool {
	if slices.Contains(i.waitList, h) {
		return false
	}

	i.waitList = append(i.waitList, h)

	return true
}

func (i *item) dequeueNextWaiter() (*holder, bool) {
	if len(i.waitList) == 0 {
		return nil, false
	}

	next := i.waitList[0]
	i.waitList[0] = nil
	i.waitList = i.waitList[1:]

	return next, true
}

func (i *item) removeWaiter(h *holder) bool {
	idx := slices.Index(i.waitList, h)
	if idx < 0 {
		return false
	}

	i.waitList = slices.Delete(i.waitList, idx, idx+1)

	return true
}

func (i *item) isOverdue(now time.Time) bool {
	return i.state == StateOnLoan && i.dueDate.Before(now)
}

// checkInvariant reports a half-updated item.
func (i *item) checkInvariant() error {
	onLoan := i.state == StateOnLoan
	if onLoan != (i.holder != nil) || onLoan != !i.dueDate.IsZero() {
		return invariantViolation(
			"item %s: state=%s holderSet=%t dueDateSet=%t",
			i.id, i.state, i.holder != nil, !i.dueDate.IsZero(),
		)
	}

	return nil
}

func (i *item) view(now time.Time) ItemView {
	v := ItemView{
		ID:       i.id,
		Title:    i.details.Title,
		Creator:  i.details.Creator,
		Category: i.details.Category,
		State:    i.state,
	}

	if i.isOnLoan() {
		v.HolderID = i.holder.id
		v.DueDate = i.dueDate
		v.Overdue = i.isOverdue(now)
		v.DaysUntilDue = daysBetween(now, i.dueDate)
	}

	v.WaitList = make([]uuid.UUID, 0, len(i.waitList))
	for _, w := range i.waitList {
		v.WaitList = append(v.WaitList, w.id)
	}

	return v
}

// ItemView is a point-in-time copy of an item. HolderID and DueDate are zero unless State is StateOnLoan.
type ItemView struct {
	ID           uuid.UUID
	Title        string
	Creator      string
	Category     string
	State        IssuanceState
	HolderID     uuid.UUID
	DueDate      time.Time
	Overdue      bool
	DaysUntilDue int
	WaitList     []uuid.UUID
}

// IsOnLoan reports whether the item was on loan when the view was taken.
func (v ItemView) IsOnLoan() bool {
	return v.State == StateOnLoan
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Truncate(24*time.Hour) / (24 * time.Hour))
}
