package testutil

import (
	"context"
	"testing"

	"github.com/junioryono/depman"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertObjectMissing checks that name is absent from the selected pool
func AssertObjectMissing(t *testing.T, ctx context.Context, r *depman.Registry, name string, policy depman.ThreadingPolicy) {
	t.Helper()
	assert.Equal(t, depman.NoType, r.ObjectType(ctx, name, policy), "object %q should not exist", name)
	assert.False(t, r.HasObject(ctx, name, policy), "object %q should not exist", name)
	assert.Nil(t, r.ObjectByName(ctx, name, depman.NoType, policy))
}

// RequireGet resolves T and fails the test if it is missing
func RequireGet[T any](t *testing.T, ctx context.Context, r *depman.Registry, name string, opts ...depman.CallOption) T {
	t.Helper()
	v, ok := depman.Lookup[T](ctx, r, name, opts...)
	require.True(t, ok, "object %q of type %T not found", name, *new(T))
	return v
}

// AssertClosedTimes checks how often a disposable was closed
func AssertClosedTimes(t *testing.T, d *DisposableService, expected int, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, expected, d.Closes(), msgAndArgs...)
}

// AssertErrorType checks if an error is of a specific type
func AssertErrorType[T error](t *testing.T, err error, msgAndArgs ...interface{}) T {
	t.Helper()
	var target T
	require.ErrorAs(t, err, &target, msgAndArgs...)
	return target
}
