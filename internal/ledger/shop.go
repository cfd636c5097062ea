package ledger

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/MRamiBalles/PetGuild/internal/domain/item"
	"github.com/MRamiBalles/PetGuild/internal/store"
)

// PurposePurchase labels debits made through the shop.
const PurposePurchase = "purchase"

// Receipt describes a completed purchase.
type Receipt struct {
	Item      item.Item `json:"item"`
	Price     int64     `json:"price"`
	Remaining int64     `json:"remaining"`
	Message   string    `json:"message"`
}

// Items lists the tenant's catalogue, cheapest first.
func (l *Ledger) Items(tenant string) ([]item.Item, error) {
	names, err := l.store.Keys(tenant, store.FieldShop)
	if err != nil {
		return nil, err
	}
	items := make([]item.Item, 0, len(names))
	for _, name := range names {
		it, ok, err := store.GetAs[item.Item](l.store, tenant, store.Path(store.FieldShop, name))
		if err != nil {
			return nil, err
		}
		if ok {
			items = append(items, it)
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Price < items[j].Price })
	return items, nil
}

// Item looks up one catalogue entry by exact name.
func (l *Ledger) Item(tenant, name string) (item.Item, error) {
	name = strings.TrimSpace(name)
	if !item.ValidName(name) {
		return item.Item{}, store.Reject(store.ReasonNotFound, "Item %q is not in the shop.", name)
	}
	it, ok, err := store.GetAs[item.Item](l.store, tenant, store.Path(store.FieldShop, name))
	if err != nil {
		return item.Item{}, err
	}
	if !ok {
		return item.Item{}, store.Reject(store.ReasonNotFound, "Item %q is not in the shop.", name)
	}
	return it, nil
}

// AddItem lists a new item. Names are unique within a tenant.
func (l *Ledger) AddItem(tenant string, it item.Item) error {
	it.Name = strings.TrimSpace(it.Name)
	switch {
	case !item.ValidName(it.Name):
		return store.Reject(store.ReasonInvalidInput, "Item names must be non-empty and may not contain dots.")
	case it.Price < 1:
		return store.Reject(store.ReasonInvalidInput, "Price must be at least 1 token.")
	case !it.Category.Valid():
		return store.Reject(store.ReasonInvalidInput, "Unknown category %q.", it.Category)
	}

	unlock := l.store.Locks().Lock(store.ShopKey(tenant))
	defer unlock()

	path := store.Path(store.FieldShop, it.Name)
	_, exists, err := l.store.Get(tenant, path)
	if err != nil {
		return err
	}
	if exists {
		return store.Reject(store.ReasonDuplicateName, "An item named %q already exists.", it.Name)
	}
	if err := l.store.Set(tenant, path, it); err != nil {
		return err
	}
	l.log.Info("shop item added", zap.String("tenant", tenant), zap.String("item", it.Name), zap.Int64("price", it.Price))
	return nil
}

// RemoveItem delists an item.
func (l *Ledger) RemoveItem(tenant, name string) error {
	name = strings.TrimSpace(name)
	if !item.ValidName(name) {
		return store.Reject(store.ReasonNotFound, "Item %q is not in the shop.", name)
	}

	unlock := l.store.Locks().Lock(store.ShopKey(tenant))
	defer unlock()

	path := store.Path(store.FieldShop, name)
	_, exists, err := l.store.Get(tenant, path)
	if err != nil {
		return err
	}
	if !exists {
		return store.Reject(store.ReasonNotFound, "Item %q is not in the shop.", name)
	}
	return l.store.Delete(tenant, path)
}

// Purchase buys a non-pet item for an account. Pet items are bought for a specific pet instead.
func (l *Ledger) Purchase(tenant, accountID, name string) (Receipt, error) {
	it, err := l.Item(tenant, name)
	if err != nil {
		return Receipt{}, err
	}
	if it.Category == item.CategoryPet {
		return Receipt{}, store.Reject(store.ReasonWrongCategory, "%s must be bought for one of your pets.", it.Name)
	}
	var r Receipt
	err = l.WithAccount(tenant, accountID, func(a *Account) error {
		if err := a.Debit(it.Price, PurposePurchase); err != nil {
			return err
		}
		r = Receipt{
			Item:      it,
			Price:     it.Price,
			Remaining: a.Balance(),
			Message: l.printer.Sprintf("You bought %s for %d tokens. Remaining balance: %d.",
				it.Name, it.Price, a.Balance()),
		}
		return nil
	})
	return r, err
}
