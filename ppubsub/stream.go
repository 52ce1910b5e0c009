package ppubsub

// Stream is a linked list of event-driven values
// with a single writer and any number of readers.
// Each reader walks the list at its own pace:
// wait on Ready, read Val, move to Next.
//
// A reader that stops consuming the list
// pins its current node and everything published after it,
// which is a memory leak.
type Stream[T any] struct {
	Ready chan struct{}
	Next  *Stream[T]
	Val   T
}

// NewStream returns an initialized stream node.
func NewStream[T any]() *Stream[T] {
	return &Stream[T]{
		Ready: make(chan struct{}),
	}
}

// Publish assigns s's value, initializes s.Next,
// and then closes s.Ready so observers may read s.Val.
//
// Publishing twice to the same node panics.
func (s *Stream[T]) Publish(v T) {
	s.Val = v
	s.Next = NewStream[T]()
	close(s.Ready)
}
