package registry_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/fanout/core/application/registry"
	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/domain/interfaces"
	"github.com/hyperterse/fanout/core/domain/interfaces/mocks"
	"github.com/hyperterse/fanout/core/shared/errors"
)

func newRegistry(t *testing.T, opts registry.Options) (*registry.Registry, *mocks.MockDriver) {
	t.Helper()
	drv := mocks.NewMockDriver(t, domain.BackendSQLite)
	reg := registry.New(map[domain.BackendKind]interfaces.Driver{domain.BackendSQLite: drv}, opts)
	return reg, drv
}

func params(db string) domain.DialParameters {
	return domain.DialParameters{Database: db}
}

func healthyHandle(t *testing.T) *mocks.MockHandle {
	h := mocks.NewMockHandle(t)
	h.On("Ping", mock.Anything).Return(nil)
	return h
}

func TestAdd(t *testing.T) {
	reg, _ := newRegistry(t, registry.Options{})
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, "a", domain.BackendSQLite, params("a.db")))

	profile, ok := reg.Get("a")
	require.True(t, ok)
	assert.Equal(t, domain.StateRegistered, profile.State)

	list := reg.List()
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "a.db", list[0].Database)
}

func TestAdd_DuplicateNameRejected(t *testing.T) {
	reg, _ := newRegistry(t, registry.Options{})
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, "a", domain.BackendSQLite, params("first.db")))
	err := reg.Add(ctx, "a", domain.BackendSQLite, params("second.db"))

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDuplicateName))
	list := reg.List()
	require.Len(t, list, 1)
	assert.Equal(t, "first.db", list[0].Database)
}

func TestAdd_InvalidInput(t *testing.T) {
	reg, _ := newRegistry(t, registry.Options{})
	ctx := context.Background()

	tests := []struct {
		name   string
		conn   string
		kind   domain.BackendKind
		params domain.DialParameters
	}{
		{name: "empty name", conn: "", kind: domain.BackendSQLite, params: params("a.db")},
		{name: "reserved name", conn: "all", kind: domain.BackendSQLite, params: params("a.db")},
		{name: "comma in name", conn: "a,b", kind: domain.BackendSQLite, params: params("a.db")},
		{name: "missing database", conn: "a", kind: domain.BackendSQLite, params: domain.DialParameters{}},
		{name: "unknown kind", conn: "a", kind: "oracle", params: params("a")},
		{name: "kind without driver", conn: "a", kind: domain.BackendPostgres, params: params("a")},
		{name: "port out of range", conn: "a", kind: domain.BackendSQLite, params: domain.DialParameters{Database: "a", Port: 70000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Add(ctx, tt.conn, tt.kind, tt.params)
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err), "got %v", err)
		})
	}
	assert.Empty(t, reg.List())
}

func TestValidate_IdempotentWithoutLeaks(t *testing.T) {
	reg, drv := newRegistry(t, registry.Options{PoolSize: 2})
	ctx := context.Background()
	require.NoError(t, reg.Add(ctx, "a", domain.BackendSQLite, params("a.db")))

	handles := make([]*mocks.MockHandle, 3)
	for i := range handles {
		handles[i] = healthyHandle(t)
		handles[i].On("Close").Return(nil).Once()
		drv.On("Connect", mock.Anything, params("a.db"), interfaces.PoolOptions{MaxConns: 2}).
			Return(handles[i], nil).Once()
	}

	for i := range handles {
		require.NoError(t, reg.Validate(ctx, "a"))
		for j := 0; j < i; j++ {
			handles[j].AssertNumberOfCalls(t, "Close", 1)
		}
		handles[i].AssertNotCalled(t, "Close")
	}

	profile, _ := reg.Get("a")
	assert.Equal(t, domain.StateValidated, profile.State)

	require.NoError(t, reg.Close())
	handles[2].AssertNumberOfCalls(t, "Close", 1)
}

func TestValidate_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("ping failure", func(t *testing.T) {
		reg, drv := newRegistry(t, registry.Options{})
		require.NoError(t, reg.Add(ctx, "a", domain.BackendSQLite, params("a.db")))

		h := mocks.NewMockHandle(t)
		h.On("Ping", mock.Anything).Return(stderrors.New("connection refused"))
		h.On("Close").Return(nil).Once()
		drv.On("Connect", mock.Anything, mock.Anything, mock.Anything).Return(h, nil).Once()

		err := reg.Validate(ctx, "a")
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeValidationFailure))

		profile, _ := reg.Get("a")
		assert.Equal(t, domain.StateFailed, profile.State)
		assert.Contains(t, profile.LastError, "connection refused")
	})

	t.Run("dial failure", func(t *testing.T) {
		reg, drv := newRegistry(t, registry.Options{})
		require.NoError(t, reg.Add(ctx, "a", domain.BackendSQLite, params("a.db")))
		drv.On("Connect", mock.Anything, mock.Anything, mock.Anything).Return(nil, stderrors.New("no such file")).Once()

		err := reg.Validate(ctx, "a")
		assert.True(t, errors.HasCode(err, errors.ErrCodeDialFailure))
	})

	t.Run("failed profile can recover", func(t *testing.T) {
		reg, drv := newRegistry(t, registry.Options{})
		require.NoError(t, reg.Add(ctx, "a", domain.BackendSQLite, params("a.db")))
		drv.On("Connect", mock.Anything, mock.Anything, mock.Anything).Return(nil, stderrors.New("down")).Once()
		require.Error(t, reg.Validate(ctx, "a"))

		h := healthyHandle(t)
		h.On("Close").Return(nil).Once()
		drv.On("Connect", mock.Anything, mock.Anything, mock.Anything).Return(h, nil).Once()
		require.NoError(t, reg.Validate(ctx, "a"))

		profile, _ := reg.Get("a")
		assert.Equal(t, domain.StateValidated, profile.State)
		assert.Empty(t, profile.LastError)
		require.NoError(t, reg.Close())
	})

	t.Run("unknown name", func(t *testing.T) {
		reg, _ := newRegistry(t, registry.Options{})
		assert.True(t, errors.IsNotFound(reg.Validate(ctx, "missing")))
	})
}

func TestRemove(t *testing.T) {
	reg, _ := newRegistry(t, registry.Options{})
	ctx := context.Background()
	require.NoError(t, reg.Add(ctx, "a", domain.BackendSQLite, params("a.db")))
	require.NoError(t, reg.Add(ctx, "b", domain.BackendSQLite, params("b.db")))

	require.NoError(t, reg.Remove(ctx, "a"))
	assert.True(t, errors.IsNotFound(reg.Remove(ctx, "a")))

	list := reg.List()
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Name)

	// The name is free again after removal.
	require.NoError(t, reg.Add(ctx, "a", domain.BackendSQLite, params("a2.db")))
	assert.Equal(t, []string{"b", "a"}, names(reg.Resolve(nil)))
}

func TestRemove_WhileInFlight(t *testing.T) {
	reg, drv := newRegistry(t, registry.Options{})
	ctx := context.Background()
	require.NoError(t, reg.Add(ctx, "a", domain.BackendSQLite, params("a.db")))

	h := healthyHandle(t)
	h.On("Close").Return(nil).Once()
	drv.On("Connect", mock.Anything, mock.Anything, mock.Anything).Return(h, nil).Once()

	handle, release, err := reg.Acquire(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, h, handle)

	require.NoError(t, reg.Remove(ctx, "a"))
	h.AssertNotCalled(t, "Close")

	release()
	h.AssertNumberOfCalls(t, "Close", 1)
	release()
	h.AssertNumberOfCalls(t, "Close", 1)

	_, _, err = reg.Acquire(ctx, "a")
	assert.True(t, errors.IsNotFound(err))
}

func TestAcquire_SharesOneHandle(t *testing.T) {
	reg, drv := newRegistry(t, registry.Options{})
	ctx := context.Background()
	require.NoError(t, reg.Add(ctx, "a", domain.BackendSQLite, params("a.db")))

	h := healthyHandle(t)
	h.On("Close").Return(nil).Once()
	drv.On("Connect", mock.Anything, mock.Anything, mock.Anything).Return(h, nil).Once()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, release, err := reg.Acquire(ctx, "a")
			if assert.NoError(t, err) {
				assert.Same(t, h, got)
				release()
			}
		}()
	}
	wg.Wait()

	profile, _ := reg.Get("a")
	assert.Equal(t, domain.StateValidated, profile.State)
	h.AssertNotCalled(t, "Close")
	require.NoError(t, reg.Close())
}

func TestAcquire_DialFailure(t *testing.T) {
	reg, drv := newRegistry(t, registry.Options{})
	ctx := context.Background()
	require.NoError(t, reg.Add(ctx, "a", domain.BackendSQLite, params("a.db")))
	drv.On("Connect", mock.Anything, mock.Anything, mock.Anything).Return(nil, stderrors.New("refused")).Once()

	_, _, err := reg.Acquire(ctx, "a")
	assert.True(t, errors.HasCode(err, errors.ErrCodeDialFailure))

	profile, _ := reg.Get("a")
	assert.Equal(t, domain.StateFailed, profile.State)
}

func TestResolve(t *testing.T) {
	reg, _ := newRegistry(t, registry.Options{})
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, reg.Add(ctx, name, domain.BackendSQLite, params(name+".db")))
	}

	assert.Equal(t, []string{"a", "b", "c"}, names(reg.Resolve(nil)))
	assert.Equal(t, []string{"a", "b", "c"}, names(reg.Resolve([]string{"all"})))

	resolved := reg.Resolve([]string{"c", "a", "c", "x"})
	assert.Equal(t, []string{"c", "a", "x"}, names(resolved))
	assert.Equal(t, domain.BackendSQLite, resolved[0].Kind)
	assert.Empty(t, resolved[2].Kind)
}

func TestInvalidationHooks(t *testing.T) {
	reg, drv := newRegistry(t, registry.Options{})
	ctx := context.Background()
	require.NoError(t, reg.Add(ctx, "a", domain.BackendSQLite, params("a.db")))

	var invalidated []string
	reg.OnInvalidate(func(name string) { invalidated = append(invalidated, name) })

	h := healthyHandle(t)
	h.On("Close").Return(nil).Once()
	drv.On("Connect", mock.Anything, mock.Anything, mock.Anything).Return(h, nil).Once()

	require.NoError(t, reg.Validate(ctx, "a"))
	require.NoError(t, reg.Remove(ctx, "a"))

	assert.Equal(t, []string{"a", "a"}, invalidated)
}

func TestPersistence(t *testing.T) {
	store := mocks.NewMockProfileStore(t)
	reg, _ := newRegistry(t, registry.Options{Store: store})
	ctx := context.Background()

	store.On("Load", mock.Anything).Return([]domain.ProfileSummary{
		{Name: "saved", Kind: domain.BackendSQLite, Database: "saved.db"},
		{Name: "", Kind: domain.BackendSQLite, Database: "broken.db"},
	}, nil).Once()
	require.NoError(t, reg.Restore(ctx))
	assert.Equal(t, []string{"saved"}, names(reg.Resolve(nil)))

	store.On("Save", mock.Anything, mock.MatchedBy(func(list []domain.ProfileSummary) bool {
		return len(list) == 2 && list[1].Name == "new"
	})).Return(nil).Once()
	require.NoError(t, reg.Add(ctx, "new", domain.BackendSQLite, params("new.db")))

	store.On("Save", mock.Anything, mock.MatchedBy(func(list []domain.ProfileSummary) bool {
		return len(list) == 1 && list[0].Name == "new"
	})).Return(stderrors.New("disk full")).Once()
	require.NoError(t, reg.Remove(ctx, "saved"))
}

func names(profiles []domain.ConnectionProfile) []string {
	out := make([]string, len(profiles))
	for i, p := range profiles {
		out[i] = p.Name
	}
	return out
}
