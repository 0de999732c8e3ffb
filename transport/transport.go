package transport

import (
	"context"

	"github.com/goliatone/go-rpc-cache/cache"
)

// CallOptions are per-call transport options.
type CallOptions struct {
	// Tags are attached to the request context, see RequestTags.
	Tags []string
}

// SubscriptionObserver receives the events of a stream. Nil callbacks are skipped.
type SubscriptionObserver struct {
	OnStarted  func()
	OnData     func(data any)
	OnError    func(err error)
	OnComplete func()
}

func (o SubscriptionObserver) started() {
	if o.OnStarted != nil {
		o.OnStarted()
	}
}

func (o SubscriptionObserver) data(v any) {
	if o.OnData != nil {
		o.OnData(v)
	}
}

func (o SubscriptionObserver) fail(err error) {
	if o.OnError != nil {
		o.OnError(err)
	}
}

func (o SubscriptionObserver) complete() {
	if o.OnComplete != nil {
		o.OnComplete()
	}
}

// Unsubscribable stops a stream.
type Unsubscribable interface {
	Unsubscribe()
}

// UnsubscribeFunc adapts a function to Unsubscribable.
type UnsubscribeFunc func()

func (f UnsubscribeFunc) Unsubscribe() {
	if f != nil {
		f()
	}
}

// Transport issues remote procedure calls.
//
// path is the dotted procedure identifier, e.g. "users.byId". Errors
// returned by a Transport are surfaced to callers unchanged.
type Transport interface {
	Call(ctx context.Context, kind cache.OperationKind, path string, input any, opts CallOptions) (any, error)
	Subscribe(ctx context.Context, path string, input any, observer SubscriptionObserver) (Unsubscribable, error)
}
