package circulation

import (
	"slices"

	"github.com/google/uuid"
)

// holder is a person entitled to borrow. Policy dispatch is a table lookup on the category.
type holder struct {
	id       uuid.UUID
	contact  Contact
	category Category
	policy   Policy
	issued   []*item
}

func newHolder(id uuid.UUID, contact Contact, category Category, policies PolicyTable) (*holder, error) {
	contact = contact.Normalized()
	if err := contact.Validate(); err != nil {
		return nil, err
	}

	policy, err := policies.Lookup(category)
	if err != nil {
		return nil, err
	}

	return &holder{
		id:       id,
		contact:  contact,
		category: category,
		policy:   policy,
	}, nil
}

// MaxAllowedDays is the loan duration granted to this holder.
func (h *holder) MaxAllowedDays() int {
	return h.policy.LoanDays
}

// CategoryLabel names the policy category.
func (h *holder) CategoryLabel() string {
	return string(h.category)
}

// MaxItems is the number of items this holder may have on loan at once.
func (h *holder) MaxItems() int {
	return h.policy.MaxItems
}

func (h *holder) isPrivileged() bool {
	return h.policy.Privileged
}

func (h *holder) canBorrowMore() bool {
	return len(h.issued) < h.MaxItems()
}

func (h *holder) hasLoans() bool {
	return len(h.issued) > 0
}

func (h *holder) recordLoan(i *item) {
	if slices.Contains(h.issued, i) {
		return
	}

	h.issued = append(h.issued, i)
}

func (h *holder) recordReturn(i *item) {
	idx := slices.Index(h.issued, i)
	if idx < 0 {
		return
	}

	h.issued = slices.Delete(h.issued, idx, idx+1)
}

func (h *holder) setName(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	h.contact.Name = Contact{Name: name}.Normalized().Name

	return nil
}

func (h *holder) setEmail(email string) error {
	if err := validateEmail(email); err != nil {
		return err
	}

	h.contact.Email = Contact{Email: email}.Normalized().Email

	return nil
}

func (h *holder) setPhone(phone string) error {
	if err := validatePhone(phone); err != nil {
		return err
	}

	h.contact.Phone = Contact{Phone: phone}.Normalized().Phone

	return nil
}

func (h *holder) view() HolderView {
	ids := make([]uuid.UUID, 0, len(h.issued))
	for _, i := range h.issued {
		ids = append(ids, i.id)
	}

	return HolderView{
		ID:            h.id,
		Contact:       h.contact,
		Category:      h.category,
		LoanDays:      h.policy.LoanDays,
		MaxItems:      h.policy.MaxItems,
		IssuedItemIDs: ids,
	}
}

// HolderView is a point-in-time copy of a holder.
type HolderView struct {
	ID            uuid.UUID
	Contact       Contact
	Category      Category
	LoanDays      int
	MaxItems      int
	IssuedItemIDs []uuid.UUID
}

// CanBorrowMore reports whether the holder was below the limit when the view was taken.
func (v HolderView) CanBorrowMore() bool {
	return len(v.IssuedItemIDs) < v.MaxItems
}
