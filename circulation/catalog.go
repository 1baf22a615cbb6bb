package circulation

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Catalog is the registry of items and holders with unique indices on holder email and phone.
//
// Its RWMutex is the single engine-wide lock: every state-mutating Engine operation holds it
// exclusively, every read holds it shared. Catalog exposes only read access; registration and
// deregistration go through the Engine.
type Catalog struct {
	mu             sync.RWMutex
	items          map[uuid.UUID]*item
	holders        map[uuid.UUID]*holder
	holdersByEmail map[string]*holder
	holdersByPhone map[string]*holder
	now            func() time.Time
}

func newCatalog(now func() time.Time) *Catalog {
	return &Catalog{
		items:          make(map[uuid.UUID]*item),
		holders:        make(map[uuid.UUID]*holder),
		holdersByEmail: make(map[string]*holder),
		holdersByPhone: make(map[string]*holder),
		now:            now,
	}
}

// FindItem returns a snapshot of the item. Absence does not mean the item never existed.
func (c *Catalog) FindItem(id uuid.UUID) (ItemView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.items[id]
	if !ok {
		return ItemView{}, false
	}

	return i.view(c.now()), true
}

// FindHolder returns a snapshot of the holder.
func (c *Catalog) FindHolder(id uuid.UUID) (HolderView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h, ok := c.holders[id]
	if !ok {
		return HolderView{}, false
	}

	return h.view(), true
}

// FindHolderByEmail looks a holder up by its (case-insensitive) email.
func (c *Catalog) FindHolderByEmail(email string) (HolderView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h, ok := c.holdersByEmail[emailKey(email)]
	if !ok {
		return HolderView{}, false
	}

	return h.view(), true
}

// FindHolderByPhone looks a holder up by its phone number.
func (c *Catalog) FindHolderByPhone(phone string) (HolderView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h, ok := c.holdersByPhone[phoneKey(phone)]
	if !ok {
		return HolderView{}, false
	}

	return h.view(), true
}

// ItemCount returns the number of registered items.
func (c *Catalog) ItemCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// HolderCount returns the number of registered holders.
func (c *Catalog) HolderCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.holders)
}

/*** unlocked helpers, callers hold c.mu ***/

func (c *Catalog) item(id uuid.UUID) (*item, error) {
	i, ok := c.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}

	return i, nil
}

func (c *Catalog) holder(id uuid.UUID) (*holder, error) {
	h, ok := c.holders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHolderNotFound, id)
	}

	return h, nil
}

func (c *Catalog) registerItem(i *item) error {
	if _, exists := c.items[i.id]; exists {
		return fmt.Errorf("%w: item id %s", ErrDuplicateKey, i.id)
	}

	c.items[i.id] = i

	return nil
}

func (c *Catalog) registerHolder(h *holder) error {
	if _, exists := c.holders[h.id]; exists {
		return fmt.Errorf("%w: holder id %s", ErrDuplicateKey, h.id)
	}

	if err := c.checkContactKeys(h.contact, nil); err != nil {
		return err
	}

	c.holders[h.id] = h
	c.holdersByEmail[emailKey(h.contact.Email)] = h
	c.holdersByPhone[phoneKey(h.contact.Phone)] = h

	return nil
}

// checkContactKeys reports a collision of the contact's email or phone with a holder other than self.
func (c *Catalog) checkContactKeys(contact Contact, self *holder) error {
	if other, exists := c.holdersByEmail[emailKey(contact.Email)]; exists && other != self {
		return fmt.Errorf("%w: email %s", ErrDuplicateKey, contact.Email)
	}

	if other, exists := c.holdersByPhone[phoneKey(contact.Phone)]; exists && other != self {
		return fmt.Errorf("%w: phone %s", ErrDuplicateKey, contact.Phone)
	}

	return nil
}

func (c *Catalog) reindexHolder(h *holder, previous Contact) {
	delete(c.holdersByEmail, emailKey(previous.Email))
	delete(c.holdersByPhone, phoneKey(previous.Phone))
	c.holdersByEmail[emailKey(h.contact.Email)] = h
	c.holdersByPhone[phoneKey(h.contact.Phone)] = h
}

// deregisterItem removes the item and returns the waiters its wait-list still held.
func (c *Catalog) deregisterItem(id uuid.UUID) (*item, []*holder, error) {
	i, err := c.item(id)
	if err != nil {
		return nil, nil, err
	}

	if i.isOnLoan() {
		return nil, nil, fmt.Errorf("%w: item %s is on loan", ErrResourceBusy, id)
	}

	delete(c.items, id)
	waiters := i.waitList
	i.waitList = nil

	return i, waiters, nil
}

// deregisterHolder removes the holder and returns the ids of the items whose wait-lists it left.
func (c *Catalog) deregisterHolder(id uuid.UUID) (*holder, []uuid.UUID, error) {
	h, err := c.holder(id)
	if err != nil {
		return nil, nil, err
	}

	if h.hasLoans() {
		return nil, nil, fmt.Errorf("%w: holder %s has %d items on loan", ErrResourceBusy, id, len(h.issued))
	}

	var leftWaitLists []uuid.UUID
	for _, i := range c.items {
		if i.removeWaiter(h) {
			leftWaitLists = append(leftWaitLists, i.id)
		}
	}

	delete(c.holders, id)
	delete(c.holdersByEmail, emailKey(h.contact.Email))
	delete(c.holdersByPhone, phoneKey(h.contact.Phone))

	slices.SortFunc(leftWaitLists, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })

	return h, leftWaitLists, nil
}

func (c *Catalog) sortedItems() []*item {
	items := make([]*item, 0, len(c.items))
	for _, i := range c.items {
		items = append(items, i)
	}

	slices.SortFunc(items, func(a, b *item) int {
		if byTitle := strings.Compare(a.details.Title, b.details.Title); byTitle != 0 {
			return byTitle
		}

		return strings.Compare(a.id.String(), b.id.String())
	})

	return items
}

func (c *Catalog) sortedHolders() []*holder {
	holders := make([]*holder, 0, len(c.holders))
	for _, h := range c.holders {
		holders = append(holders, h)
	}

	slices.SortFunc(holders, func(a, b *holder) int {
		if byName := strings.Compare(a.contact.Name, b.contact.Name); byName != 0 {
			return byName
		}

		return strings.Compare(a.id.String(), b.id.String())
	})

	return holders
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func phoneKey(phone string) string {
	return strings.TrimSpace(phone)
}
