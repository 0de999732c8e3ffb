package cacheinfra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-rpc-cache/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mutationKey(segments ...string) cache.Key {
	return cache.DeriveKey(cache.NewPath(segments...), nil, cache.KindMutation)
}

func TestMutation_Success(t *testing.T) {
	client, _ := newTestClient(t)
	var successData, successInput any

	handle, err := client.RegisterMutation(cache.MutationOptions{
		Key: mutationKey("users", "create"),
		Mutate: func(ctx context.Context, input any) (any, error) {
			return map[string]any{"created": input}, nil
		},
		OnSuccess: func(ctx context.Context, data, input any) error {
			successData, successInput = data, input
			return nil
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, handle.ID())
	assert.Equal(t, cache.StatusIdle, handle.State().Status)

	out, err := handle.Mutate(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"created": "bob"}, out)
	assert.Equal(t, out, successData)
	assert.Equal(t, "bob", successInput)

	state := handle.State()
	assert.Equal(t, cache.StatusSuccess, state.Status)
	assert.Equal(t, "bob", state.Input)
	assert.True(t, state.Key.Equal(mutationKey("users", "create")))

	handle.Reset()
	assert.Equal(t, cache.StatusIdle, handle.State().Status)
}

func TestMutation_Errors(t *testing.T) {
	client, _ := newTestClient(t)
	boom := errors.New("boom")
	var onErr error

	handle, err := client.RegisterMutation(cache.MutationOptions{
		Key:     mutationKey("users", "delete"),
		Mutate:  func(ctx context.Context, input any) (any, error) { return nil, boom },
		OnError: func(ctx context.Context, err error, input any) { onErr = err },
	})
	require.NoError(t, err)

	_, err = handle.Mutate(context.Background(), 1)
	assert.Same(t, boom, err)
	assert.Same(t, boom, onErr)
	assert.Equal(t, cache.StatusError, handle.State().Status)

	hookErr := errors.New("hook")
	handle, err = client.RegisterMutation(cache.MutationOptions{
		Key:       mutationKey("users", "update"),
		Mutate:    func(ctx context.Context, input any) (any, error) { return "ok", nil },
		OnSuccess: func(ctx context.Context, data, input any) error { return hookErr },
	})
	require.NoError(t, err)

	out, err := handle.Mutate(context.Background(), nil)
	assert.ErrorIs(t, err, hookErr)
	assert.Equal(t, "ok", out)

	_, err = client.RegisterMutation(cache.MutationOptions{Key: mutationKey("x")})
	assert.ErrorIs(t, err, cache.ErrNoFetcher)
}

func TestQueryClient_IsMutating(t *testing.T) {
	client, _ := newTestClient(t)
	release := make(chan struct{})

	handle, err := client.RegisterMutation(cache.MutationOptions{
		Key: mutationKey("users", "create"),
		Mutate: func(ctx context.Context, input any) (any, error) {
			<-release
			return nil, nil
		},
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = handle.Mutate(context.Background(), nil)
	}()

	require.Eventually(t, func() bool { return client.IsMutating(filterKey("users")) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, client.IsMutating(filterKey("posts")))

	close(release)
	<-done
	assert.Equal(t, 0, client.IsMutating(filterKey()))
}
