// Package license holds business profiles and the license entries the
// automation orchestrator writes outcomes back to.
//
// Three backends implement Store: an in-memory store for tests and demos, a
// SQLite store for single-node deployments and a MongoDB store matching the
// document layout the dashboard already reads. Every backend updates a single
// license entry atomically, so sessions for different license types on the
// same business never overwrite each other's results.
package license

import (
	"context"
	"time"
)

// Store is the business/license record store.
type Store interface {
	// FindByOwner returns the business owned by ownerID, or ErrBusinessNotFound.
	FindByOwner(ctx context.Context, ownerID string) (*Business, error)

	// FindByID returns a business by id, or ErrBusinessNotFound.
	FindByID(ctx context.Context, businessID string) (*Business, error)

	// UpdateLicenseStatus sets the status of one license entry. appliedAt, when
	// non-nil, replaces the entry's application date. Returns ErrBusinessNotFound
	// or ErrLicenseNotFound when the entry does not exist.
	UpdateLicenseStatus(ctx context.Context, businessID, licenseType string, status Status, appliedAt *time.Time) error

	// SaveBusiness inserts or replaces a business profile.
	SaveBusiness(ctx context.Context, b *Business) error

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}
