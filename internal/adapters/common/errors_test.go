package common

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestWrapTransient(t *testing.T) {
	base := errors.New("temporary failure")
	wrapped := WrapTransient(base)

	if !errors.Is(wrapped, ErrTransient) {
		t.Fatalf("expected wrapped error to be transient: %v", wrapped)
	}
	if !strings.Contains(wrapped.Error(), base.Error()) {
		t.Fatalf("expected wrapped error message to include original message")
	}
}

func TestWrapPermanent(t *testing.T) {
	wrapped := WrapPermanent(errors.New("invalid recipient"))
	if !IsPermanent(wrapped) {
		t.Fatalf("expected wrapped error to be permanent: %v", wrapped)
	}
	if IsPermanent(WrapTransient(errors.New("x"))) {
		t.Fatalf("transient error reported as permanent")
	}
}

func TestWrapNil(t *testing.T) {
	if !errors.Is(WrapTransient(nil), ErrTransient) {
		t.Fatalf("expected nil transient wrap to fall back to ErrTransient")
	}
	if !errors.Is(WrapPermanent(nil), ErrPermanent) {
		t.Fatalf("expected nil permanent wrap to fall back to ErrPermanent")
	}
}

func TestSendErrorUnwraps(t *testing.T) {
	err := error(&SendError{Role: "client_ack", Recipient: "a@b.com", Err: WrapTransient(context.DeadlineExceeded)})

	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected classification to survive wrapping: %v", err)
	}
	var sendErr *SendError
	if !errors.As(err, &sendErr) || sendErr.Role != "client_ack" {
		t.Fatalf("expected SendError, got %T", err)
	}
	if !strings.Contains(err.Error(), "send client_ack to a@b.com") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestTruncateRaw(t *testing.T) {
	if got := TruncateRaw("héllo", 2); got != "hé" {
		t.Fatalf("expected rune truncation, got %q", got)
	}
	if got := TruncateRaw("short", 10); got != "short" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := TruncateRaw("x", 0); got != "" {
		t.Fatalf("expected empty result for zero limit, got %q", got)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	if !errors.Is(WrapTransient(context.Canceled), context.Canceled) {
		t.Fatalf("expected cause to stay reachable")
	}
}
