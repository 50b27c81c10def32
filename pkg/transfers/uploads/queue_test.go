package uploads

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// awaitInBackground runs AwaitStart in a goroutine and reports grants on
// the returned channel.
func awaitInBackground(ctx context.Context, q *UploadQueue, username, filename string) chan error {
	done := make(chan error, 1)
	go func() {
		done <- q.AwaitStart(ctx, username, filename)
	}()
	return done
}

func expectGrant(t *testing.T, done chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected slot grant, got none")
	}
}

func expectNoGrant(t *testing.T, done chan error) {
	t.Helper()
	select {
	case err := <-done:
		t.Fatalf("expected no grant, got %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestQueuePerUserCap(t *testing.T) {
	q := NewUploadQueue(QueueConfig{MaxGlobalSlots: 10, MaxSlotsPerUser: 1}, newStubUsers())

	q.Enqueue("alice", "a.flac")
	q.Enqueue("alice", "b.flac")

	first := awaitInBackground(context.Background(), q, "alice", "a.flac")
	second := awaitInBackground(context.Background(), q, "alice", "b.flac")

	expectGrant(t, first)
	expectNoGrant(t, second)

	q.Complete("alice", "a.flac")
	expectGrant(t, second)
}

func TestQueueGlobalCap(t *testing.T) {
	q := NewUploadQueue(QueueConfig{MaxGlobalSlots: 2, MaxSlotsPerUser: 1}, newStubUsers())

	a := awaitInBackground(context.Background(), q, "alice", "a.flac")
	b := awaitInBackground(context.Background(), q, "bob", "b.flac")

	expectGrant(t, a)
	expectGrant(t, b)

	c := awaitInBackground(context.Background(), q, "carol", "c.flac")
	expectNoGrant(t, c)

	q.Complete("bob", "b.flac")
	expectGrant(t, c)
}

func TestQueuePriorityBeatsEnqueueOrder(t *testing.T) {
	stub := newStubUsers()
	stub.privileged["vip"] = true

	q := NewUploadQueue(QueueConfig{MaxGlobalSlots: 1, MaxSlotsPerUser: 1}, stub)

	first := awaitInBackground(context.Background(), q, "alice", "a.flac")
	expectGrant(t, first)

	// bob enqueues before vip, but vip's group has higher priority.
	bob := awaitInBackground(context.Background(), q, "bob", "b.flac")
	expectNoGrant(t, bob)
	vip := awaitInBackground(context.Background(), q, "vip", "v.flac")
	expectNoGrant(t, vip)

	q.Complete("alice", "a.flac")
	expectGrant(t, vip)
	expectNoGrant(t, bob)

	q.Complete("vip", "v.flac")
	expectGrant(t, bob)
}

func TestQueueFIFOWithinClass(t *testing.T) {
	q := NewUploadQueue(QueueConfig{MaxGlobalSlots: 1, MaxSlotsPerUser: 1}, newStubUsers())

	first := awaitInBackground(context.Background(), q, "alice", "a.flac")
	expectGrant(t, first)

	bob := awaitInBackground(context.Background(), q, "bob", "b.flac")
	time.Sleep(10 * time.Millisecond)
	carol := awaitInBackground(context.Background(), q, "carol", "c.flac")

	expectNoGrant(t, bob)
	expectNoGrant(t, carol)

	q.Complete("alice", "a.flac")
	expectGrant(t, bob)
	expectNoGrant(t, carol)
}

func TestQueueAwaitBeforeEnqueue(t *testing.T) {
	q := NewUploadQueue(QueueConfig{MaxGlobalSlots: 1, MaxSlotsPerUser: 1}, newStubUsers())

	done := awaitInBackground(context.Background(), q, "alice", "a.flac")
	expectGrant(t, done)

	// A later Enqueue for the same key must not create a second entry.
	q.Enqueue("alice", "a.flac")

	status := q.Status()
	require.Equal(t, 1, status.InFlight)
	require.Equal(t, 0, status.Pending)
}

func TestQueueCancelWhilePending(t *testing.T) {
	q := NewUploadQueue(QueueConfig{MaxGlobalSlots: 1, MaxSlotsPerUser: 1}, newStubUsers())

	running := awaitInBackground(context.Background(), q, "alice", "a.flac")
	expectGrant(t, running)

	ctx, cancel := context.WithCancel(context.Background())
	pending := awaitInBackground(ctx, q, "bob", "b.flac")
	expectNoGrant(t, pending)

	cancel()

	select {
	case err := <-pending:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled waiter did not return")
	}

	// The cancelled entry never held a slot; capacity is unaffected.
	require.Equal(t, 1, q.Status().InFlight)

	q.Complete("alice", "a.flac")
	require.Equal(t, 0, q.Status().InFlight)

	carol := awaitInBackground(context.Background(), q, "carol", "c.flac")
	expectGrant(t, carol)
}

func TestQueueCancelAfterGrantReleasesSlot(t *testing.T) {
	q := NewUploadQueue(QueueConfig{MaxGlobalSlots: 1, MaxSlotsPerUser: 1}, newStubUsers())

	done := awaitInBackground(context.Background(), q, "alice", "a.flac")
	expectGrant(t, done)

	// The granted transfer is cancelled without calling Complete; the queue
	// releases the slot through its cancellation path exactly once.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.AwaitStart(ctx, "alice", "a.flac")
	require.ErrorIs(t, err, context.Canceled)

	bob := awaitInBackground(context.Background(), q, "bob", "b.flac")
	expectGrant(t, bob)

	// A late Complete for the already-released key is a no-op.
	q.Complete("alice", "a.flac")
	require.Equal(t, 1, q.Status().InFlight)
}

func TestQueueCompleteWithoutSlotIsNoop(t *testing.T) {
	q := NewUploadQueue(QueueConfig{MaxGlobalSlots: 1, MaxSlotsPerUser: 1}, newStubUsers())

	q.Complete("nobody", "nothing.flac")
	require.Equal(t, 0, q.Status().InFlight)
}
