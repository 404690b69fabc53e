package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/poojaseva/checkout-reconciler/internal/models"
)

// ErrReferenceNotFound is returned when a session has no stored reference
var ErrReferenceNotFound = errors.New("payment reference not found")

// ReferenceStore keeps the PaymentReference of a checkout session so a reload
// or a gateway redirect without query parameters can resume reconciliation.
type ReferenceStore interface {
	Get(ctx context.Context, sessionKey string) (models.PaymentReference, error)
	Set(ctx context.Context, sessionKey string, ref models.PaymentReference) error
	Clear(ctx context.Context, sessionKey string) error
}

type memoryEntry struct {
	ref       models.PaymentReference
	expiresAt time.Time
}

// MemoryReferenceStore is a process-local ReferenceStore with per-entry TTL
type MemoryReferenceStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryReferenceStore creates an in-memory store; ttl <= 0 keeps entries forever
func NewMemoryReferenceStore(ttl time.Duration) *MemoryReferenceStore {
	return &MemoryReferenceStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryReferenceStore) Get(_ context.Context, sessionKey string) (models.PaymentReference, error) {
	s.mu.RLock()
	entry, ok := s.entries[sessionKey]
	s.mu.RUnlock()

	if !ok || s.expired(entry, s.now()) {
		return models.PaymentReference{}, ErrReferenceNotFound
	}
	return entry.ref, nil
}

func (s *MemoryReferenceStore) Set(_ context.Context, sessionKey string, ref models.PaymentReference) error {
	entry := memoryEntry{ref: ref}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[sessionKey] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryReferenceStore) Clear(_ context.Context, sessionKey string) error {
	s.mu.Lock()
	delete(s.entries, sessionKey)
	s.mu.Unlock()
	return nil
}

// PurgeExpired removes expired entries and returns how many were dropped
func (s *MemoryReferenceStore) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for key, entry := range s.entries {
		if s.expired(entry, now) {
			delete(s.entries, key)
			purged++
		}
	}
	return purged
}

func (s *MemoryReferenceStore) expired(entry memoryEntry, now time.Time) bool {
	return !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt)
}
