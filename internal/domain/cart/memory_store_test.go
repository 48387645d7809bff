package cart

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps carts in process memory for service tests.
type MemoryStore struct {
	mu    sync.RWMutex
	carts map[string]*Cart
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string]*Cart)}
}

func (m *MemoryStore) UpsertLines(ctx context.Context, sessionID string, lines []Line, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.ensure(sessionID, now)
	for _, line := range lines {
		merged := false
		for i := range c.Lines {
			existing := &c.Lines[i]
			if existing.CatalogID == line.CatalogID && existing.Variant == line.Variant {
				existing.Quantity += line.Quantity
				if line.Notes != nil {
					existing.Notes = copyString(line.Notes)
				}
				merged = true
				break
			}
		}
		if !merged {
			line.Notes = copyString(line.Notes)
			c.Lines = append(c.Lines, line)
		}
	}
	c.UpdatedAt = now
	return nil
}

func (m *MemoryStore) SetQuantity(ctx context.Context, sessionID, catalogID, variant string, quantity int, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.carts[sessionID]
	if !ok {
		return false, nil
	}
	for i := range c.Lines {
		if c.Lines[i].CatalogID == catalogID && c.Lines[i].Variant == variant {
			c.Lines[i].Quantity = quantity
			c.UpdatedAt = now
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) DeleteLine(ctx context.Context, sessionID, catalogID, variant string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.ensure(sessionID, now)
	kept := c.Lines[:0]
	for _, l := range c.Lines {
		if l.CatalogID == catalogID && l.Variant == variant {
			continue
		}
		kept = append(kept, l)
	}
	c.Lines = kept
	c.UpdatedAt = now
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context, sessionID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.ensure(sessionID, now)
	c.Lines = nil
	c.UpdatedAt = now
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.carts[sessionID]
	if !ok {
		return &Cart{SessionID: sessionID, Lines: []Line{}}, nil
	}
	out := *c
	out.Lines = make([]Line, len(c.Lines))
	for i, l := range c.Lines {
		l.Notes = copyString(l.Notes)
		out.Lines[i] = l
	}
	return &out, nil
}

func (m *MemoryStore) ensure(sessionID string, now time.Time) *Cart {
	c, ok := m.carts[sessionID]
	if !ok {
		c = &Cart{SessionID: sessionID, CreatedAt: now, UpdatedAt: now}
		m.carts[sessionID] = c
	}
	return c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
