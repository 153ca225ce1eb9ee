package stream

import "context"

// First subscribes to src, waits for one value and unsubscribes.
func First[T any](ctx context.Context, src Source[T]) (T, error) {
	sub := src.Subscribe()
	defer sub.Close()

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case v, ok := <-sub.C():
		if !ok {
			if err := sub.Err(); err != nil {
				return zero, err
			}
			return zero, ErrClosed
		}
		return v, nil
	}
}

// Map derives a hub that emits f(v) for every value of src for which f
// reports true. The upstream subscription lives exactly as long as the
// derived hub has subscribers.
func Map[A, B any](src Source[A], f func(A) (B, bool), opts ...Option[B]) *Hub[B] {
	return NewHub(func(ctx context.Context, emit func(B), fail func(error)) {
		sub := src.Subscribe()
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-sub.C():
				if !ok {
					if err := sub.Err(); err != nil {
						fail(err)
					}
					return
				}
				if b, keep := f(v); keep {
					emit(b)
				}
			}
		}
	}, opts...)
}

// Values is a Source over a fixed value, used when the endpoint is configured
// by hand instead of discovered.
func Values[T any](v T) *Hub[T] {
	return NewHub(func(ctx context.Context, emit func(T), _ func(error)) {
		emit(v)
		<-ctx.Done()
	})
}
