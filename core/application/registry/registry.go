// Package registry keeps the catalog of named connection profiles and the
// live handles behind them.
package registry

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/domain/interfaces"
	"github.com/hyperterse/fanout/core/infrastructure/logging"
	"github.com/hyperterse/fanout/core/shared/errors"
)

// AllConnections selects every registered profile in Resolve.
const AllConnections = "all"

// Options configures a Registry.
type Options struct {
	// PoolSize bounds the sessions each handle may open.
	PoolSize int
	// Store, when set, receives the secret-free profile list after every
	// add or remove.
	Store interfaces.ProfileStore
}

// lease is a handle shared by concurrent dispatch units. A retired lease is
// closed once its last holder releases it.
type lease struct {
	handle  interfaces.Handle
	refs    int
	retired bool
}

type entry struct {
	profile domain.ConnectionProfile
	current *lease
	removed bool

	// connMu serializes handle establishment for one profile without
	// holding the registry lock during I/O.
	connMu sync.Mutex
}

// Registry implements interfaces.Registry
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	drivers   map[domain.BackendKind]interfaces.Driver
	pool      interfaces.PoolOptions
	store     interfaces.ProfileStore
	persistMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []func(name string)
}

// New creates an empty registry that dials through drivers.
func New(drivers map[domain.BackendKind]interfaces.Driver, opts Options) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		drivers: drivers,
		pool:    interfaces.PoolOptions{MaxConns: opts.PoolSize},
		store:   opts.Store,
	}
}

// OnInvalidate registers fn to be called with a connection name whenever
// that connection is removed or re-validated.
func (r *Registry) OnInvalidate(fn func(name string)) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) invalidate(name string) {
	r.listenersMu.RLock()
	defer r.listenersMu.RUnlock()
	for _, fn := range r.listeners {
		fn(name)
	}
}

// Restore registers every profile held by the store. Profiles that fail
// input validation are skipped with a warning.
func (r *Registry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	log := logging.New("registry")

	summaries, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load connection profiles: %w", err)
	}

	for _, s := range summaries {
		if err := r.insert(s.Name, s.Kind, s.Params()); err != nil {
			log.Warnf("Skipping stored connection '%s': %v", s.Name, err)
		}
	}
	log.Debugf("Restored %d connection profile(s)", len(summaries))
	return nil
}

// Add stores a new profile in the registered state. It performs no I/O
// against the backend.
func (r *Registry) Add(ctx context.Context, name string, kind domain.BackendKind, params domain.DialParameters) error {
	if err := r.insert(name, kind, params); err != nil {
		return err
	}
	logging.New("registry").Infof("Registered connection '%s' (%s)", name, kind)
	r.persist(ctx)
	return nil
}

func (r *Registry) insert(name string, kind domain.BackendKind, params domain.DialParameters) error {
	profile := domain.ConnectionProfile{
		Name:   name,
		Kind:   kind,
		Params: params,
		State:  domain.StateRegistered,
	}
	if err := profile.Validate(); err != nil {
		return errors.ForConnection(errors.ErrCodeInvalidInput, name, err.Error(), err)
	}
	if _, ok := r.drivers[kind]; !ok {
		return errors.ForConnection(errors.ErrCodeInvalidInput, name,
			fmt.Sprintf("no driver available for backend kind '%s'", kind), nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return errors.ForConnection(errors.ErrCodeDuplicateName, name,
			fmt.Sprintf("connection '%s' is already registered", name), nil)
	}
	r.entries[name] = &entry{profile: profile}
	r.order = append(r.order, name)
	return nil
}

// Validate connects and pings the backend. Any previous handle is retired
// before the new one is opened, so repeated validation never accumulates
// handles.
func (r *Registry) Validate(ctx context.Context, name string) error {
	log := logging.New("connection:" + name)

	e, err := r.lookup(name)
	if err != nil {
		return err
	}

	e.connMu.Lock()
	defer e.connMu.Unlock()

	r.mu.Lock()
	if e.removed {
		r.mu.Unlock()
		return notFound(name)
	}
	stale := r.retire(e)
	profile := e.profile
	r.mu.Unlock()
	closeLease(name, stale)

	h, code, err := r.establish(ctx, profile)

	r.mu.Lock()
	if err != nil {
		e.profile.State = domain.StateFailed
		e.profile.LastError = err.Error()
		r.mu.Unlock()
		r.invalidate(name)
		log.Warnf("Validation failed: %v", err)
		return errors.ForConnection(code, name, fmt.Sprintf("connection '%s' failed validation", name), err)
	}
	if e.removed {
		r.mu.Unlock()
		_ = h.Close()
		return notFound(name)
	}
	e.current = &lease{handle: h}
	e.profile.State = domain.StateValidated
	e.profile.LastError = ""
	r.mu.Unlock()

	r.invalidate(name)
	log.Infof("Connection validated")
	return nil
}

// Remove deletes the profile. Its handle is closed as soon as no dispatch
// unit holds it.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return notFound(name)
	}
	delete(r.entries, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	e.removed = true
	stale := r.retire(e)
	r.mu.Unlock()

	closeLease(name, stale)
	r.invalidate(name)
	logging.New("registry").Infof("Removed connection '%s'", name)
	r.persist(ctx)
	return nil
}

// Get returns a copy of the named profile.
func (r *Registry) Get(name string) (domain.ConnectionProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return domain.ConnectionProfile{}, false
	}
	return e.profile, true
}

// List returns secret-free summaries in insertion order.
func (r *Registry) List() []domain.ProfileSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ProfileSummary, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].profile.Summary())
	}
	return out
}

// Resolve expands names into a snapshot of profiles. Empty input or the
// single name "all" selects every profile in insertion order. Explicit
// names keep their order, duplicates are dropped and unknown names come
// back as bare placeholders so the dispatcher can report them per entry.
func (r *Registry) Resolve(names []string) []domain.ConnectionProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(names) == 0 || (len(names) == 1 && strings.TrimSpace(names[0]) == AllConnections) {
		out := make([]domain.ConnectionProfile, 0, len(r.order))
		for _, name := range r.order {
			out = append(out, r.entries[name].profile)
		}
		return out
	}

	seen := make(map[string]bool, len(names))
	out := make([]domain.ConnectionProfile, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if e, ok := r.entries[name]; ok {
			out = append(out, e.profile)
		} else {
			out = append(out, domain.ConnectionProfile{Name: name})
		}
	}
	return out
}

// Acquire returns the profile's handle, establishing it on first use, and a
// release func the caller must invoke exactly once when done.
func (r *Registry) Acquire(ctx context.Context, name string) (interfaces.Handle, func(), error) {
	if h, release, ok, err := r.pin(name); ok || err != nil {
		return h, release, err
	}

	e, err := r.lookup(name)
	if err != nil {
		return nil, nil, err
	}

	e.connMu.Lock()
	defer e.connMu.Unlock()

	if h, release, ok, err := r.pin(name); ok || err != nil {
		return h, release, err
	}

	r.mu.RLock()
	profile := e.profile
	r.mu.RUnlock()

	h, _, err := r.establish(ctx, profile)

	r.mu.Lock()
	if err != nil {
		e.profile.State = domain.StateFailed
		e.profile.LastError = err.Error()
		r.mu.Unlock()
		return nil, nil, errors.ForConnection(errors.ErrCodeDialFailure, name,
			fmt.Sprintf("could not establish connection '%s'", name), err)
	}
	if e.removed {
		r.mu.Unlock()
		_ = h.Close()
		return nil, nil, notFound(name)
	}
	l := &lease{handle: h, refs: 1}
	e.current = l
	e.profile.State = domain.StateValidated
	e.profile.LastError = ""
	r.mu.Unlock()

	return h, r.releaser(name, l), nil
}

// pin takes a reference on an existing lease. ok is false when the profile
// exists but has no live handle yet.
func (r *Registry) pin(name string) (interfaces.Handle, func(), bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, exists := r.entries[name]
	if !exists {
		return nil, nil, false, notFound(name)
	}
	if e.current == nil {
		return nil, nil, false, nil
	}
	e.current.refs++
	return e.current.handle, r.releaser(name, e.current), true, nil
}

func (r *Registry) releaser(name string, l *lease) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			l.refs--
			closeNow := l.retired && l.refs == 0
			r.mu.Unlock()
			if closeNow {
				closeLease(name, l)
			}
		})
	}
}

// retire detaches the entry's lease and returns it when nothing holds it,
// meaning the caller must close it. Must be called with r.mu held.
func (r *Registry) retire(e *entry) *lease {
	l := e.current
	if l == nil {
		return nil
	}
	e.current = nil
	l.retired = true
	if l.refs > 0 {
		return nil
	}
	return l
}

func closeLease(name string, l *lease) {
	if l == nil {
		return
	}
	if err := l.handle.Close(); err != nil {
		logging.New("connection:"+name).Warnf("Error closing handle: %v", err)
	}
}

// establish connects and pings. It reports DIAL_FAILURE when no handle could
// be built and VALIDATION_FAILURE when the backend did not answer the ping.
func (r *Registry) establish(ctx context.Context, profile domain.ConnectionProfile) (interfaces.Handle, errors.ErrorCode, error) {
	driver, ok := r.drivers[profile.Kind]
	if !ok {
		return nil, errors.ErrCodeDialFailure, fmt.Errorf("no driver available for backend kind '%s'", profile.Kind)
	}

	h, err := driver.Connect(ctx, profile.Params, r.pool)
	if err != nil {
		return nil, errors.ErrCodeDialFailure, err
	}
	if err := h.Ping(ctx); err != nil {
		_ = h.Close()
		return nil, errors.ErrCodeValidationFailure, err
	}
	return h, "", nil
}

func (r *Registry) lookup(name string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, notFound(name)
	}
	return e, nil
}

func notFound(name string) error {
	return errors.ForConnection(errors.ErrCodeNotFound, name, fmt.Sprintf("connection '%s' not found", name), nil)
}

// persist writes the current profile list to the store. Failures are logged
// and never undo the in-memory change.
func (r *Registry) persist(ctx context.Context) {
	if r.store == nil {
		return
	}
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	if err := r.store.Save(ctx, r.List()); err != nil {
		logging.New("registry").Warnf("Failed to persist connection profiles: %v", err)
	}
}

// Close closes all handles in parallel. Handles still held by dispatch
// units are closed when released.
func (r *Registry) Close() error {
	r.mu.Lock()
	stale := make(map[string]*lease, len(r.entries))
	for name, e := range r.entries {
		if l := r.retire(e); l != nil {
			stale[name] = l
		}
	}
	r.mu.Unlock()

	if len(stale) == 0 {
		return nil
	}

	log := logging.New("registry")
	log.Debugf("Closing %d connection handle(s)", len(stale))

	var wg sync.WaitGroup
	errChan := make(chan error, len(stale))
	for name, l := range stale {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.handle.Close(); err != nil {
				errChan <- fmt.Errorf("connection '%s': %w", name, err)
			}
		}()
	}
	wg.Wait()
	close(errChan)

	return collectErrors(errChan)
}

// collectErrors collects all errors from a channel and combines them
func collectErrors(errChan <-chan error) error {
	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

var _ interfaces.Registry = (*Registry)(nil)
