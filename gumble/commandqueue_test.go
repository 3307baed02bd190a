package gumble

import (
	"context"
	"testing"
	"time"
)

func TestCommandQueueSubmitAndComplete(t *testing.T) {
	t.Parallel()

	q := NewCommandQueue(4)
	cmd := q.Submit(MessageTextMessage, []byte("payload"))
	if cmd.ID != 1 {
		t.Fatalf("ID = %d, want 1", cmd.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := q.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got != cmd {
		t.Fatal("Next returned a different command")
	}

	q.Complete(got, nil)
	if err := cmd.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestCommandQueueIDsAreMonotonic(t *testing.T) {
	t.Parallel()

	q := NewCommandQueue(4)
	a := q.Submit(MessagePing, nil)
	b := q.Submit(MessagePing, nil)
	if b.ID != a.ID+1 {
		t.Fatalf("IDs not monotonic: %d, %d", a.ID, b.ID)
	}
}

func TestCommandQueueCloseFailsPending(t *testing.T) {
	t.Parallel()

	q := NewCommandQueue(4)
	cmd := q.Submit(MessagePing, nil)
	q.Close()

	if err := cmd.Wait(); err == nil {
		t.Fatal("expected error after Close")
	}
}

func TestCommandQueueSubmitAfterCloseFailsImmediately(t *testing.T) {
	t.Parallel()

	q := NewCommandQueue(4)
	q.Close()

	cmd := q.Submit(MessagePing, nil)
	if err := cmd.Wait(); err == nil {
		t.Fatal("expected error submitting to a closed queue")
	}
}

func TestCommandQueueNextReturnsOnClose(t *testing.T) {
	t.Parallel()

	q := NewCommandQueue(4)
	q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	cmd, err := q.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if cmd != nil {
		t.Fatalf("Next = %v, want nil", cmd)
	}
}
