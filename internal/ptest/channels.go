package ptest

import (
	"testing"
	"time"
)

// soonDuration is how long the channel helpers wait
// before declaring a test failure.
const soonDuration = 5 * time.Second

// ReceiveSoon returns a value received from ch,
// failing t if nothing arrives within a generous timeout.
func ReceiveSoon[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	timer := time.NewTimer(soonDuration)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v
	case <-timer.C:
		t.Fatalf("did not receive on channel within %s", soonDuration)
		panic("unreachable")
	}
}

// SendSoon sends v on ch,
// failing t if the send does not complete within a generous timeout.
func SendSoon[T any](t *testing.T, ch chan<- T, v T) {
	t.Helper()

	timer := time.NewTimer(soonDuration)
	defer timer.Stop()

	select {
	case ch <- v:
	case <-timer.C:
		t.Fatalf("could not send on channel within %s", soonDuration)
	}
}

// IsSending asserts that ch has a value ready right now.
// It is intended for closed-or-ready signal channels.
func IsSending[T any](t *testing.T, ch <-chan T) {
	t.Helper()

	select {
	case <-ch:
	default:
		t.Fatalf("expected channel to be ready to receive")
	}
}

// NotSending asserts that ch has no value ready right now.
func NotSending[T any](t *testing.T, ch <-chan T) {
	t.Helper()

	select {
	case <-ch:
		t.Fatalf("expected channel to not be ready to receive")
	default:
	}
}
