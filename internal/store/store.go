// Package store holds every tenant's state as one path-addressed document.
//
// Paths are dotted field names ("pets.pet_01h...", "counting.number"). Past a
// typed value such as a pet the segments name its json fields. Missing
// intermediate maps are created on write. The store gives no multi-step
// transactions: callers serialise read-modify-write on one entity with Locks().
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MRamiBalles/PetGuild/internal/domain/account"
	"github.com/MRamiBalles/PetGuild/internal/domain/item"
	"github.com/MRamiBalles/PetGuild/internal/domain/pet"
)

// Top-level document fields.
const (
	FieldConfig   = "config"
	FieldAccounts = "accounts"
	FieldPets     = "pets"
	FieldShop     = "shop"
	FieldWarnings = "warnings"
	FieldInvites  = "invites"
	FieldMessages = "messages"
	FieldCommands = "commands"
	FieldCounting = "counting"
)

// Audit list caps. Appends beyond the cap drop the oldest entries.
const (
	MaxMessages = 10000
	MaxCommands = 5000
)

// AuditEntry is one row of a bounded audit list.
type AuditEntry struct {
	At    time.Time `json:"at"`
	Actor string    `json:"actor"`
	Text  string    `json:"text"`
}

// Counting holds the counting-game state every tenant starts with.
type Counting struct {
	Channel  string `json:"channel"`
	Number   int    `json:"number"`
	LastUser string `json:"last_user"`
}

type tenant struct {
	mu  sync.RWMutex
	doc map[string]any
}

// Store is the in-memory, tenant-partitioned document store.
type Store struct {
	mu       sync.RWMutex
	tenants  map[string]*tenant
	template map[string]any
	caps     map[string]int
	locks    *KeyLock
}

// New creates a store whose tenants are provisioned from DefaultDocument.
func New() *Store {
	return NewWithTemplate(DefaultDocument())
}

// NewWithTemplate creates a store with a custom provisioning template.
// The template is copied; later changes to doc do not leak into tenants.
func NewWithTemplate(doc map[string]any) *Store {
	return &Store{
		tenants:  make(map[string]*tenant),
		template: deepCopyMap(doc),
		caps: map[string]int{
			FieldMessages: MaxMessages,
			FieldCommands: MaxCommands,
		},
		locks: NewKeyLock(),
	}
}

// DefaultDocument builds the starting document for a new tenant.
func DefaultDocument() map[string]any {
	shop := make(map[string]any)
	for _, it := range item.Starter() {
		shop[it.Name] = it
	}
	return map[string]any{
		FieldConfig:   map[string]any{},
		FieldAccounts: map[string]any{},
		FieldPets:     map[string]any{},
		FieldShop:     shop,
		FieldWarnings: map[string]any{},
		FieldInvites:  map[string]any{},
		FieldMessages: []AuditEntry{},
		FieldCommands: []AuditEntry{},
		FieldCounting: Counting{Number: 1},
	}
}

// Locks returns the per-entity lock table shared by every caller of this store.
func (s *Store) Locks() *KeyLock {
	return s.locks
}

// Provision creates the tenant from the template. It reports false if the
// tenant already existed, in which case nothing changes.
func (s *Store) Provision(tenantID string) (bool, error) {
	if !ValidSegment(tenantID) {
		return false, fmt.Errorf("%w: invalid tenant id %q", ErrInvariant, tenantID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[tenantID]; ok {
		return false, nil
	}
	s.tenants[tenantID] = &tenant{doc: deepCopyMap(s.template)}
	return true, nil
}

// Provisioned reports whether the tenant exists.
func (s *Store) Provisioned(tenantID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tenants[tenantID]
	return ok
}

// Tenants lists every provisioned tenant, sorted.
func (s *Store) Tenants() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.tenants))
	for id := range s.tenants {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (s *Store) tenant(tenantID string) (*tenant, error) {
	s.mu.RLock()
	t, ok := s.tenants[tenantID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTenant, tenantID)
	}
	return t, nil
}

// Get reads the value at path. The returned value is a copy.
func (s *Store) Get(tenantID, path string) (any, bool, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, false, err
	}
	t, err := s.tenant(tenantID)
	if err != nil {
		return nil, false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := lookup(t.doc, parts)
	if !ok {
		return nil, false, nil
	}
	return copyValue(v), true, nil
}

// GetAs reads the value at path as T. A value of another type is an invariant violation.
func GetAs[T any](s *Store, tenantID, path string) (T, bool, error) {
	var zero T
	v, ok, err := s.Get(tenantID, path)
	if err != nil || !ok {
		return zero, ok, err
	}
	typed, isT := v.(T)
	if !isT {
		return zero, false, fmt.Errorf("%w: %s holds %T, want %T", ErrInvariant, path, v, zero)
	}
	return typed, true, nil
}

// Set writes value at path, creating intermediate maps as needed.
func (s *Store) Set(tenantID, path string, value any) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	t, err := s.tenant(tenantID)
	if err != nil {
		return err
	}
	value = copyValue(value)
	t.mu.Lock()
	defer t.mu.Unlock()
	return assign(t.doc, parts, value)
}

// Delete removes the value at path. Deleting a missing path is a no-op.
func (s *Store) Delete(tenantID, path string) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	t, err := s.tenant(tenantID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	parent, ok := lookup(t.doc, parts[:len(parts)-1])
	if !ok {
		return nil
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %s is not a container", ErrInvariant, strings.Join(parts[:len(parts)-1], "."))
	}
	delete(m, parts[len(parts)-1])
	return nil
}

// Keys lists the child names of the map at path, sorted. A missing path has no keys.
func (s *Store) Keys(tenantID, path string) ([]string, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	t, err := s.tenant(tenantID)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := lookup(t.doc, parts)
	if !ok {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a container", ErrInvariant, path)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Append adds entry to the audit list at field and trims it to the field's cap.
func (s *Store) Append(tenantID, field string, entry AuditEntry) error {
	limit, ok := s.caps[field]
	if !ok {
		return fmt.Errorf("%w: %s is not an audit list", ErrInvariant, field)
	}
	t, err := s.tenant(tenantID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	list, err := auditList(t.doc, field)
	if err != nil {
		return err
	}
	list = append(list, entry)
	if over := len(list) - limit; over > 0 {
		list = append([]AuditEntry(nil), list[over:]...)
	}
	t.doc[field] = list
	return nil
}

// Audit returns a copy of the audit list at field.
func (s *Store) Audit(tenantID, field string) ([]AuditEntry, error) {
	if _, ok := s.caps[field]; !ok {
		return nil, fmt.Errorf("%w: %s is not an audit list", ErrInvariant, field)
	}
	t, err := s.tenant(tenantID)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	list, err := auditList(t.doc, field)
	if err != nil {
		return nil, err
	}
	return append([]AuditEntry(nil), list...), nil
}

// PruneAudit drops audit entries recorded before cutoff and returns how many were removed.
func (s *Store) PruneAudit(tenantID string, cutoff time.Time) (int, error) {
	t, err := s.tenant(tenantID)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for field := range s.caps {
		list, err := auditList(t.doc, field)
		if err != nil {
			return removed, err
		}
		kept := list[:0:0]
		for _, e := range list {
			if e.At.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		t.doc[field] = kept
	}
	return removed, nil
}

func auditList(doc map[string]any, field string) ([]AuditEntry, error) {
	v, ok := doc[field]
	if !ok {
		return nil, nil
	}
	list, ok := v.([]AuditEntry)
	if !ok {
		return nil, fmt.Errorf("%w: %s holds %T", ErrInvariant, field, v)
	}
	return list, nil
}

// Path joins segments into a dotted path.
func Path(segments ...string) string {
	return strings.Join(segments, ".")
}

// ValidSegment reports whether s can be used as one path segment.
func ValidSegment(s string) bool {
	return s != "" && !strings.Contains(s, ".")
}

func splitPath(path string) ([]string, error) {
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: malformed path %q", ErrInvariant, path)
		}
	}
	return parts, nil
}

func lookup(doc map[string]any, parts []string) (any, bool) {
	var cur any = doc
	for _, p := range parts {
		var ok bool
		if cur, ok = child(cur, p); !ok {
			return nil, false
		}
	}
	return cur, true
}

// assign writes value at parts. A typed value met on the way is replaced by a
// copy carrying the new field, so values handed out earlier never change.
func assign(doc map[string]any, parts []string, value any) error {
	m := doc
	for i, p := range parts[:len(parts)-1] {
		next, ok := m[p]
		if !ok {
			nested := make(map[string]any)
			m[p] = nested
			m = nested
			continue
		}
		nested, ok := next.(map[string]any)
		if !ok {
			updated, err := setField(next, parts[i+1:], value, strings.Join(parts[:i+1], "."))
			if err != nil {
				return err
			}
			m[p] = updated
			return nil
		}
		m = nested
	}
	m[parts[len(parts)-1]] = value
	return nil
}

// copyValue detaches v from the document so callers cannot mutate shared state.
func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return deepCopyMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	case []AuditEntry:
		return append([]AuditEntry(nil), x...)
	case pet.Pet:
		return x.Clone()
	case account.Balance, item.Item, Counting:
		return x
	default:
		return copySlice(v)
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}
