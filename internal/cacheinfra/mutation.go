package cacheinfra

import (
	"context"
	"sync"

	"github.com/goliatone/go-rpc-cache/cache"
	"github.com/google/uuid"
)

type mutationHandle struct {
	id     string
	client *QueryClient
	opts   cache.MutationOptions

	mu    sync.Mutex
	state cache.MutationState
}

// RegisterMutation creates a handle that runs opts.Mutate.
func (c *QueryClient) RegisterMutation(opts cache.MutationOptions) (cache.MutationHandle, error) {
	if opts.Mutate == nil {
		return nil, cache.ErrNoFetcher
	}

	m := &mutationHandle{
		id:     uuid.NewString(),
		client: c,
		opts:   opts,
		state:  cache.MutationState{Key: opts.Key, Status: cache.StatusIdle},
	}
	c.mutations.Store(m.id, m)
	return m, nil
}

// IsMutating counts matching mutations that are running.
func (c *QueryClient) IsMutating(filter cache.Key) int {
	n := 0
	c.mutations.Range(func(_ string, m *mutationHandle) bool {
		st := m.State()
		if st.Status == cache.StatusPending && st.Key.Matches(filter, false) {
			n++
		}
		return true
	})
	return n
}

func (m *mutationHandle) ID() string {
	return m.id
}

func (m *mutationHandle) Key() cache.Key {
	return m.opts.Key
}

// Mutate runs the mutation. An OnSuccess error is returned as the mutation
// error, after the data has been recorded.
func (m *mutationHandle) Mutate(ctx context.Context, input any) (any, error) {
	m.mu.Lock()
	m.state = cache.MutationState{
		Key:         m.opts.Key,
		Status:      cache.StatusPending,
		Input:       input,
		SubmittedAt: m.client.now(),
	}
	m.mu.Unlock()

	logger := m.client.logger.With("key", m.opts.Key.String(), "mutation", m.id)
	logger.Debug("running mutation")

	data, err := m.opts.Mutate(ctx, input)
	if err == nil && m.opts.OnSuccess != nil {
		err = m.opts.OnSuccess(ctx, data, input)
	}

	m.mu.Lock()
	m.state.Data = data
	if err != nil {
		m.state.Status = cache.StatusError
		m.state.Err = err
	} else {
		m.state.Status = cache.StatusSuccess
	}
	m.mu.Unlock()

	if err != nil {
		logger.Debug("mutation failed", "error", err)
		if m.opts.OnError != nil {
			m.opts.OnError(ctx, err, input)
		}
		return data, err
	}
	return data, nil
}

func (m *mutationHandle) State() cache.MutationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reset returns the handle to idle.
func (m *mutationHandle) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = cache.MutationState{Key: m.opts.Key, Status: cache.StatusIdle}
}

var _ cache.MutationHandle = (*mutationHandle)(nil)
