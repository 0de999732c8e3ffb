package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/goliatone/go-rpc-cache/cache"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// HandlerFunc serves a query or mutation procedure.
type HandlerFunc func(ctx context.Context, input any) (any, error)

// StreamFunc serves a subscription procedure. It emits values until it
// returns or ctx is cancelled; a nil return completes the stream.
type StreamFunc func(ctx context.Context, input any, emit func(data any)) error

type procedure struct {
	kind    cache.OperationKind
	handler HandlerFunc
	stream  StreamFunc
}

// LocalRouter is an in-process Transport. Procedures are registered by
// dotted path and served on the caller's goroutine, except streams which run
// on their own goroutine.
type LocalRouter struct {
	procedures *xsync.MapOf[string, procedure]
	logger     *slog.Logger
}

// RouterOption configures a LocalRouter.
type RouterOption func(*LocalRouter)

// WithRouterLogger sets the logger used for stream lifecycle events.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *LocalRouter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewLocalRouter creates an empty router.
func NewLocalRouter(opts ...RouterOption) *LocalRouter {
	r := &LocalRouter{
		procedures: xsync.NewMapOf[string, procedure](),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Query registers a read procedure. Reads serve both plain and paginated queries.
func (r *LocalRouter) Query(path string, handler HandlerFunc) *LocalRouter {
	r.procedures.Store(path, procedure{kind: cache.KindQuery, handler: handler})
	return r
}

// Mutation registers a write procedure.
func (r *LocalRouter) Mutation(path string, handler HandlerFunc) *LocalRouter {
	r.procedures.Store(path, procedure{kind: cache.KindMutation, handler: handler})
	return r
}

// Subscription registers a stream procedure.
func (r *LocalRouter) Subscription(path string, stream StreamFunc) *LocalRouter {
	r.procedures.Store(path, procedure{kind: cache.KindSubscription, stream: stream})
	return r
}

// Merge copies the procedures of other under prefix. An empty prefix merges
// at the root.
func (r *LocalRouter) Merge(prefix string, other *LocalRouter) *LocalRouter {
	other.procedures.Range(func(path string, p procedure) bool {
		if prefix != "" {
			path = prefix + "." + path
		}
		r.procedures.Store(path, p)
		return true
	})
	return r
}

// Procedures lists the registered dotted paths in sorted order.
func (r *LocalRouter) Procedures() []string {
	paths := make([]string, 0, r.procedures.Size())
	r.procedures.Range(func(path string, _ procedure) bool {
		paths = append(paths, path)
		return true
	})
	sort.Strings(paths)
	return paths
}

// Call implements Transport.
func (r *LocalRouter) Call(ctx context.Context, kind cache.OperationKind, path string, input any, opts CallOptions) (any, error) {
	p, ok := r.procedures.Load(path)
	if !ok {
		return nil, &ProcedureError{Path: path, Kind: kind, Err: ErrProcedureNotFound}
	}
	if !servesKind(p.kind, kind) {
		return nil, &ProcedureError{Path: path, Kind: kind, Err: ErrKindMismatch}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx = WithRequestTags(ctx, opts.Tags...)
	return p.handler(ctx, input)
}

// Subscribe implements Transport. The stream starts on a new goroutine and
// stops when the returned handle is unsubscribed or ctx is cancelled.
func (r *LocalRouter) Subscribe(ctx context.Context, path string, input any, observer SubscriptionObserver) (Unsubscribable, error) {
	p, ok := r.procedures.Load(path)
	if !ok {
		return nil, &ProcedureError{Path: path, Kind: cache.KindSubscription, Err: ErrProcedureNotFound}
	}
	if p.kind != cache.KindSubscription {
		return nil, &ProcedureError{Path: path, Kind: cache.KindSubscription, Err: ErrKindMismatch}
	}

	id := uuid.NewString()
	streamCtx, cancel := context.WithCancel(ctx)
	logger := r.logger.With("path", path, "subscription", id)

	go func() {
		defer cancel()
		logger.Debug("stream started")
		observer.started()

		err := p.stream(streamCtx, input, func(data any) {
			if streamCtx.Err() != nil {
				return
			}
			observer.data(data)
		})

		switch {
		case streamCtx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)):
			logger.Debug("stream stopped")
		case err != nil:
			logger.Debug("stream failed", "error", err)
			observer.fail(err)
		default:
			logger.Debug("stream completed")
			observer.complete()
		}
	}()

	return UnsubscribeFunc(cancel), nil
}

func servesKind(procedureKind, callKind cache.OperationKind) bool {
	switch callKind {
	case cache.KindQuery, cache.KindInfinite:
		return procedureKind == cache.KindQuery
	case cache.KindMutation:
		return procedureKind == cache.KindMutation
	case "", cache.KindAny:
		return procedureKind != cache.KindSubscription
	default:
		return false
	}
}

// Namespaces lists the first segment of every registered path.
func (r *LocalRouter) Namespaces() []string {
	seen := map[string]struct{}{}
	r.procedures.Range(func(path string, _ procedure) bool {
		head, _, _ := strings.Cut(path, ".")
		seen[head] = struct{}{}
		return true
	})
	out := make([]string, 0, len(seen))
	for ns := range seen {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

var _ Transport = (*LocalRouter)(nil)
