package interfaces

import (
	"context"

	"github.com/hyperterse/fanout/core/domain"
)

// PoolOptions bounds how many sessions a handle may open against its backend.
type PoolOptions struct {
	MaxConns int
}

// Handle is a live, pooled connection to one backend.
// A handle may be used by several dispatch units at once; each call draws
// its own session from the handle's pool.
type Handle interface {
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Execute runs statement unmodified and returns the driver's raw rows.
	Execute(ctx context.Context, statement string) (*domain.RawResult, error)

	// Describe returns the tables and columns visible to this connection.
	Describe(ctx context.Context) (domain.TableList, error)

	// Close releases the pool.
	Close() error
}

// Driver establishes handles for one backend kind.
type Driver interface {
	// Kind reports the backend this driver serves.
	Kind() domain.BackendKind

	// Connect builds a handle from dial parameters. It must not leave
	// resources behind when it returns an error.
	Connect(ctx context.Context, params domain.DialParameters, pool PoolOptions) (Handle, error)
}

// Registry is the catalog of connection profiles and their live handles.
type Registry interface {
	// Add stores a new profile in the registered state without any I/O.
	Add(ctx context.Context, name string, kind domain.BackendKind, params domain.DialParameters) error

	// Validate connects and pings the backend, moving the profile to
	// validated or failed.
	Validate(ctx context.Context, name string) error

	// Remove deletes a profile and releases its handle.
	Remove(ctx context.Context, name string) error

	// List returns secret-free summaries in insertion order.
	List() []domain.ProfileSummary

	// Resolve expands "all" or an explicit name list into a profile snapshot.
	Resolve(names []string) []domain.ConnectionProfile

	// Acquire returns the profile's handle, establishing it if needed, and a
	// release func that must be called when the caller is done with it.
	Acquire(ctx context.Context, name string) (Handle, func(), error)

	// Close releases every handle.
	Close() error
}

// ProfileStore persists secret-free profiles across restarts.
type ProfileStore interface {
	Load(ctx context.Context) ([]domain.ProfileSummary, error)
	Save(ctx context.Context, profiles []domain.ProfileSummary) error
}

// Dispatcher fans a query out to a set of connections.
type Dispatcher interface {
	Dispatch(ctx context.Context, query string, targets []domain.ConnectionProfile) *domain.DispatchResult
}
