// Package engine defines the storage contract for Scheme records.
package engine

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/celerix-dev/schemes/pkg/schema"
)

var (
	// ErrNotFound is returned when no scheme has the requested id.
	ErrNotFound = errors.New("scheme not found")
	// ErrInvalidID is returned when an id is not a well-formed identifier.
	ErrInvalidID = errors.New("invalid scheme id")
)

// ValidationError is returned by Create and UpdateByID when the resulting
// record violates the Scheme constraints.
type ValidationError = schema.ValidationError

// Store is the primary interface for interacting with Scheme records.
// The embedded backends and the remote SDK client implement this contract.
type Store interface {
	// Create validates in, applies defaults and persists a new scheme.
	Create(ctx context.Context, in schema.SchemeInput) (*schema.Scheme, error)
	// FindByID returns the scheme with the given id.
	FindByID(ctx context.Context, id string) (*schema.Scheme, error)
	// FindMany returns every scheme matching f, most recently created first.
	FindMany(ctx context.Context, f schema.Filter) ([]*schema.Scheme, error)
	// UpdateByID merges in onto the stored scheme and returns the result.
	UpdateByID(ctx context.Context, id string, in schema.SchemeInput) (*schema.Scheme, error)
	// DeleteByID permanently removes a scheme.
	DeleteByID(ctx context.Context, id string) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// ParseID decodes id or returns ErrInvalidID.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := schema.ParseID(id)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return oid, nil
}

// IsValidationError reports whether err carries field validation failures.
func IsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
