package store

import (
	"encoding/json"
	"fmt"

	"github.com/MRamiBalles/PetGuild/internal/domain/account"
	"github.com/MRamiBalles/PetGuild/internal/domain/item"
	"github.com/MRamiBalles/PetGuild/internal/domain/pet"
)

// wireDocument is the persisted shape of one tenant document.
// Fields outside the typed schema travel in Extras as plain JSON.
type wireDocument struct {
	Accounts map[string]account.Balance `json:"accounts"`
	Pets     map[string]pet.Pet         `json:"pets"`
	Shop     map[string]item.Item       `json:"shop"`
	Messages []AuditEntry               `json:"messages"`
	Commands []AuditEntry               `json:"commands"`
	Counting Counting                   `json:"counting"`
	Extras   map[string]any             `json:"extras,omitempty"`
}

// Snapshot encodes the tenant's document.
func (s *Store) Snapshot(tenantID string) ([]byte, error) {
	t, err := s.tenant(tenantID)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	w, err := encodeDocument(t.doc)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", tenantID, err)
	}
	// Typed entries share slices with t.doc; encode before releasing the lock.
	return json.Marshal(w)
}

// Restore replaces (or provisions) the tenant from a Snapshot payload.
func (s *Store) Restore(tenantID string, data []byte) error {
	if !ValidSegment(tenantID) {
		return fmt.Errorf("%w: invalid tenant id %q", ErrInvariant, tenantID)
	}
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("restore %s: %w", tenantID, err)
	}
	doc := decodeDocument(w)

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tenants[tenantID]; ok {
		t.mu.Lock()
		t.doc = doc
		t.mu.Unlock()
		return nil
	}
	s.tenants[tenantID] = &tenant{doc: doc}
	return nil
}

func encodeDocument(doc map[string]any) (wireDocument, error) {
	w := wireDocument{
		Accounts: map[string]account.Balance{},
		Pets:     map[string]pet.Pet{},
		Shop:     map[string]item.Item{},
		Extras:   map[string]any{},
	}
	for field, v := range doc {
		var err error
		switch field {
		case FieldAccounts:
			err = encodeMap(field, v, w.Accounts)
		case FieldPets:
			err = encodeMap(field, v, w.Pets)
		case FieldShop:
			err = encodeMap(field, v, w.Shop)
		case FieldMessages:
			w.Messages, err = typedField[[]AuditEntry](field, v)
		case FieldCommands:
			w.Commands, err = typedField[[]AuditEntry](field, v)
		case FieldCounting:
			w.Counting, err = typedField[Counting](field, v)
		default:
			w.Extras[field] = copyValue(v)
		}
		if err != nil {
			return w, err
		}
	}
	return w, nil
}

func encodeMap[T any](field string, v any, out map[string]T) error {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %s holds %T", ErrInvariant, field, v)
	}
	for k, e := range m {
		typed, ok := e.(T)
		if !ok {
			return fmt.Errorf("%w: %s.%s holds %T", ErrInvariant, field, k, e)
		}
		out[k] = typed
	}
	return nil
}

func typedField[T any](field string, v any) (T, error) {
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s holds %T", ErrInvariant, field, v)
	}
	return typed, nil
}

func decodeDocument(w wireDocument) map[string]any {
	doc := make(map[string]any, len(w.Extras)+6)
	for k, v := range w.Extras {
		doc[k] = v
	}
	doc[FieldAccounts] = toAnyMap(w.Accounts)
	doc[FieldPets] = toAnyMap(w.Pets)
	doc[FieldShop] = toAnyMap(w.Shop)
	doc[FieldMessages] = nonNil(w.Messages)
	doc[FieldCommands] = nonNil(w.Commands)
	doc[FieldCounting] = w.Counting
	return doc
}

func toAnyMap[T any](m map[string]T) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func nonNil(list []AuditEntry) []AuditEntry {
	if list == nil {
		return []AuditEntry{}
	}
	return list
}
