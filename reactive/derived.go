package reactive

// readonly hides the mutators of a Store.
type readonly[T any] struct {
	store *Store[T]
}

func (r readonly[T]) Get() T {
	return r.store.Get()
}

func (r readonly[T]) Subscribe(listener func(T)) func() {
	return r.store.Subscribe(listener)
}

func (r readonly[T]) Snapshot() any {
	return r.store.Get()
}

func (r readonly[T]) Observe(listener func(any)) func() {
	return r.store.Observe(listener)
}

// Static returns a Readable that always holds v.
func Static[T any](v T) Readable[T] {
	return readonly[T]{store: Writable(v)}
}

// Derive returns a Readable whose value is fn applied to src.
//
// The derived store is seeded with fn(src.Get()). It subscribes to src only
// while it has subscribers of its own, so once every subscriber is gone
// further changes of src are ignored.
func Derive[S, T any](src Readable[S], fn func(S) T) Readable[T] {
	store := Writable(fn(src.Get()), func(set func(T)) func() {
		return src.Subscribe(func(v S) {
			set(fn(v))
		})
	})
	return readonly[T]{store: store}
}

// FromSource adapts a type-erased Source into a Readable of any.
func FromSource(src Source) Readable[any] {
	return sourceReadable{src: src}
}

type sourceReadable struct {
	src Source
}

func (s sourceReadable) Get() any {
	return s.src.Snapshot()
}

func (s sourceReadable) Subscribe(listener func(any)) func() {
	return s.src.Observe(listener)
}

// AsSource reports whether v is a reactive value and returns its Source view.
func AsSource(v any) (Source, bool) {
	if v == nil {
		return nil, false
	}
	src, ok := v.(Source)
	return src, ok
}
