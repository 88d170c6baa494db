package schema_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/fanout/core/application/schema"
	"github.com/hyperterse/fanout/core/domain"
	"github.com/hyperterse/fanout/core/domain/interfaces"
	"github.com/hyperterse/fanout/core/domain/interfaces/mocks"
	"github.com/hyperterse/fanout/core/shared/errors"
)

type staticSource map[string]interfaces.Handle

func (s staticSource) Acquire(_ context.Context, name string) (interfaces.Handle, func(), error) {
	h, ok := s[name]
	if !ok {
		return nil, nil, errors.ForConnection(errors.ErrCodeNotFound, name, "not found", nil)
	}
	return h, func() {}, nil
}

var (
	schemaA = domain.TableList{
		{Name: "users", Columns: []domain.Column{{Name: "id", Type: "INTEGER"}, {Name: "name", Type: "TEXT", Nullable: true}}},
		{Name: "orders", Columns: []domain.Column{{Name: "id", Type: "INTEGER"}}},
	}
	schemaB = domain.TableList{
		{Name: "users", Columns: []domain.Column{{Name: "id", Type: "integer"}, {Name: "name", Type: "VARCHAR"}, {Name: "email", Type: "TEXT"}}},
	}
)

func TestDiff(t *testing.T) {
	diffs := schema.Diff([]string{"a", "b"}, map[string]domain.TableList{"a": schemaA, "b": schemaB})

	require.Len(t, diffs, 2)

	orders := diffs[0]
	assert.Equal(t, "orders", orders.Name)
	assert.Equal(t, []string{"a"}, orders.PresentIn)
	assert.Equal(t, []string{"b"}, orders.MissingIn)
	assert.False(t, orders.Consistent())

	users := diffs[1]
	assert.Equal(t, "users", users.Name)
	assert.Equal(t, []string{"a", "b"}, users.PresentIn)
	assert.Empty(t, users.MissingIn)
	require.Len(t, users.Columns, 3)

	email, id, name := users.Columns[0], users.Columns[1], users.Columns[2]
	assert.Equal(t, "email", email.Name)
	assert.Equal(t, []string{"a"}, email.MissingIn)
	assert.False(t, email.TypeMismatch)

	assert.Equal(t, "id", id.Name)
	assert.False(t, id.TypeMismatch, "type comparison ignores case")
	assert.Equal(t, map[string]string{"a": "INTEGER", "b": "integer"}, id.Types)

	assert.Equal(t, "name", name.Name)
	assert.True(t, name.TypeMismatch)
	assert.False(t, users.Consistent())
}

func TestDiff_Identical(t *testing.T) {
	diffs := schema.Diff([]string{"a", "b"}, map[string]domain.TableList{"a": schemaA, "b": schemaA})
	for _, d := range diffs {
		assert.True(t, d.Consistent(), d.Name)
	}
}

func TestCompare(t *testing.T) {
	a := mocks.NewMockHandle(t)
	a.On("Describe", mock.Anything).Return(schemaA, nil).Once()
	b := mocks.NewMockHandle(t)
	b.On("Describe", mock.Anything).Return(schemaB, nil).Once()
	broken := mocks.NewMockHandle(t)
	broken.On("Describe", mock.Anything).Return(nil, stderrors.New("permission denied")).Once()

	c, err := schema.New(staticSource{"a": a, "b": b, "broken": broken}, schema.Options{})
	require.NoError(t, err)
	defer c.Close()

	report := c.Compare(context.Background(), []domain.ConnectionProfile{{Name: "a"}, {Name: "b"}, {Name: "broken"}, {Name: "ghost"}})

	assert.Equal(t, []string{"a", "b"}, report.Connections)
	require.Len(t, report.Errors, 2)
	assert.Equal(t, "broken", report.Errors[0].Connection)
	assert.Equal(t, errors.ErrCodeDriverError, report.Errors[0].Kind)
	assert.Equal(t, errors.ErrCodeNotFound, report.Errors[1].Kind)

	require.Len(t, report.Tables, 2)
	assert.Equal(t, []string{"b"}, report.Tables[0].MissingIn, "failed connections are not counted as missing")
	assert.True(t, report.HasDifferences())
}

func TestCompare_CachesUntilInvalidated(t *testing.T) {
	a := mocks.NewMockHandle(t)
	a.On("Describe", mock.Anything).Return(schemaA, nil).Twice()

	c, err := schema.New(staticSource{"a": a}, schema.Options{CacheTTL: schema.DefaultCacheTTL})
	require.NoError(t, err)
	defer c.Close()

	targets := []domain.ConnectionProfile{{Name: "a"}}
	first := c.Compare(context.Background(), targets)
	second := c.Compare(context.Background(), targets)
	assert.Equal(t, first.Tables, second.Tables)
	a.AssertNumberOfCalls(t, "Describe", 1)

	c.Invalidate("a")
	c.Compare(context.Background(), targets)
	a.AssertNumberOfCalls(t, "Describe", 2)
}

func TestCompare_NoCacheWhenTTLZero(t *testing.T) {
	a := mocks.NewMockHandle(t)
	a.On("Describe", mock.Anything).Return(schemaA, nil).Twice()

	c, err := schema.New(staticSource{"a": a}, schema.Options{})
	require.NoError(t, err)
	defer c.Close()

	targets := []domain.ConnectionProfile{{Name: "a"}}
	c.Compare(context.Background(), targets)
	c.Compare(context.Background(), targets)
	a.AssertNumberOfCalls(t, "Describe", 2)
}
