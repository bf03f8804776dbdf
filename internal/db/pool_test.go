package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestClassifyDeadlineIsPoolExhausted(t *testing.T) {
	p := &Pool{cfg: Config{AcquireTimeout: time.Second}}

	err := p.classify(context.Background(), context.DeadlineExceeded)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("classify(deadline) = %v, want ErrPoolExhausted", err)
	}
}

func TestClassifyCallerCancellationPassesThrough(t *testing.T) {
	p := &Pool{cfg: Config{AcquireTimeout: time.Second}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled request is not a pool failure even when the underlying
	// error looks like a timeout.
	err := p.classify(ctx, context.DeadlineExceeded)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("classify(cancelled ctx) = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrPoolExhausted) {
		t.Error("cancellation misclassified as pool exhaustion")
	}
}

func TestClassifyConnectionFailureSurfaced(t *testing.T) {
	p := &Pool{cfg: Config{AcquireTimeout: time.Second, Abort: false}}

	cause := errors.New("dial tcp: connection refused")
	err := p.classify(context.Background(), cause)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("classify(conn error) = %v, want ErrConnectionFailed", err)
	}
}
