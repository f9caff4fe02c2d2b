package memory

import (
	"context"
	"errors"
	"time"

	"github.com/okian/skyscraper/internal/adapters/repository"
	"github.com/okian/skyscraper/internal/domain/shape"
)

var errClosed = errors.New("memory store closed")

// Put implements repository.SessionStore. The stored value is a private copy.
func (s *TreapStore) Put(ctx context.Context, sessionID string, inv shape.Inventory) (err error) {
	defer repository.Observe(backendName, "session_put", time.Now(), &err)
	if sessionID == "" {
		return repository.ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "memory.session_put"); err != nil {
		return err
	}
	s.inv[sessionID] = inv.Clone()
	return nil
}

// Get implements repository.SessionStore.
func (s *TreapStore) Get(ctx context.Context, sessionID string) (_ shape.Inventory, err error) {
	defer repository.Observe(backendName, "session_get", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "memory.session_get"); err != nil {
		return shape.Inventory{}, err
	}
	inv, ok := s.inv[sessionID]
	if !ok {
		return shape.Inventory{}, repository.ErrNotFound
	}
	return inv.Clone(), nil
}

// GetPointer implements repository.PointerStore.
func (s *TreapStore) GetPointer(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx, "memory.pointer_get"); err != nil {
		return "", err
	}
	v, ok := s.ptrs[key]
	if !ok {
		return "", repository.ErrNotFound
	}
	return v, nil
}

// SetPointer implements repository.PointerStore.
func (s *TreapStore) SetPointer(ctx context.Context, key, value string) error {
	if key == "" {
		return repository.ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "memory.pointer_set"); err != nil {
		return err
	}
	s.ptrs[key] = value
	return nil
}

// DeletePointer implements repository.PointerStore. Deleting an absent key is a no-op.
func (s *TreapStore) DeletePointer(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx, "memory.pointer_delete"); err != nil {
		return err
	}
	delete(s.ptrs, key)
	return nil
}
