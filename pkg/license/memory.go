package license

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store using in-memory maps.
type MemoryStore struct {
	mu         sync.RWMutex
	businesses map[string]*Business // businessID -> business
	byOwner    map[string]string    // ownerID -> businessID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses: make(map[string]*Business),
		byOwner:    make(map[string]string),
	}
}

// FindByOwner returns a copy of the owner's business.
func (s *MemoryStore) FindByOwner(_ context.Context, ownerID string) (*Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byOwner[ownerID]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	return s.businesses[id].Clone(), nil
}

// FindByID returns a copy of the business.
func (s *MemoryStore) FindByID(_ context.Context, businessID string) (*Business, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.businesses[businessID]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	return b.Clone(), nil
}

// UpdateLicenseStatus modifies one license entry in place.
func (s *MemoryStore) UpdateLicenseStatus(_ context.Context, businessID, licenseType string, status Status, appliedAt *time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("invalid license status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.businesses[businessID]
	if !ok {
		return ErrBusinessNotFound
	}
	for i := range b.RequiredLicenses {
		if b.RequiredLicenses[i].Type != licenseType {
			continue
		}
		b.RequiredLicenses[i].Status = status
		if appliedAt != nil {
			t := appliedAt.UTC()
			b.RequiredLicenses[i].ApplicationDate = &t
		}
		return nil
	}
	return ErrLicenseNotFound
}

// SaveBusiness stores a copy of b, assigning an id when it has none.
func (s *MemoryStore) SaveBusiness(_ context.Context, b *Business) error {
	if err := validateBusiness(b); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if existing, ok := s.byOwner[b.OwnerID]; ok && existing != b.ID {
		return fmt.Errorf("owner %s already has business %s", b.OwnerID, existing)
	}

	s.businesses[b.ID] = b.Clone()
	s.byOwner[b.OwnerID] = b.ID
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close(context.Context) error { return nil }

// validateBusiness checks the fields every backend requires.
func validateBusiness(b *Business) error {
	if b == nil {
		return fmt.Errorf("business cannot be nil")
	}
	if b.OwnerID == "" {
		return fmt.Errorf("business owner id is required")
	}
	if b.Name == "" {
		return fmt.Errorf("business name is required")
	}
	seen := make(map[string]bool, len(b.RequiredLicenses))
	for i, l := range b.RequiredLicenses {
		if l.Type == "" {
			return fmt.Errorf("license %d: type is required", i)
		}
		if seen[l.Type] {
			return fmt.Errorf("license %q listed twice", l.Type)
		}
		seen[l.Type] = true
		if l.Status == "" {
			b.RequiredLicenses[i].Status = StatusPending
		} else if !l.Status.Valid() {
			return fmt.Errorf("license %q: invalid status %q", l.Type, l.Status)
		}
	}
	return nil
}
