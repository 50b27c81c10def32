package uploads

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/peershare/swapd/pkg/users"
)

// QueueConfig caps concurrent uploads globally and per user.
type QueueConfig struct {
	MaxGlobalSlots  int
	MaxSlotsPerUser int
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.MaxGlobalSlots <= 0 {
		c.MaxGlobalSlots = 10
	}

	if c.MaxSlotsPerUser <= 0 {
		c.MaxSlotsPerUser = 1
	}

	return c
}

type entryState int

const (
	entryPending entryState = iota
	entryRunning
	entryDone
)

type queueEntry struct {
	username   string
	filename   string
	enqueuedAt time.Time
	state      entryState

	// ready is closed when the slot is granted. Grant and cancellation are
	// serialized under the queue mutex, so it is closed at most once.
	ready chan struct{}
}

func slotKey(username, filename string) string {
	return username + "\x00" + filename
}

// UploadQueue decides which pending uploads may run. A pending entry is
// granted a slot when it is at the head of its user's FIFO, the user holds
// fewer than the per-user cap, and the global count is under the global
// cap. Across users, higher group priority wins, then earliest enqueue.
type UploadQueue struct {
	mu sync.Mutex

	cfg   QueueConfig
	users users.UserService

	// pending holds each user's FIFO of waiting entries; running holds the
	// entry for every granted slot, keyed by (username, filename).
	pending  map[string][]*queueEntry
	running  map[string]*queueEntry
	perUser  map[string]int
	inFlight int
}

func NewUploadQueue(cfg QueueConfig, userService users.UserService) *UploadQueue {
	return &UploadQueue{
		cfg:     cfg.withDefaults(),
		users:   userService,
		pending: make(map[string][]*queueEntry),
		running: make(map[string]*queueEntry),
		perUser: make(map[string]int),
	}
}

// Enqueue registers the key as pending if it is not already pending or
// running. Idempotent.
func (q *UploadQueue) Enqueue(username, filename string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.findOrCreateLocked(username, filename)
	q.evaluateLocked()
}

// AwaitStart blocks until the key's slot is granted or ctx is cancelled.
// The entry is created if Enqueue has not run yet.
func (q *UploadQueue) AwaitStart(ctx context.Context, username, filename string) error {
	q.mu.Lock()
	entry := q.findOrCreateLocked(username, filename)
	q.evaluateLocked()
	q.mu.Unlock()

	// A caller arriving with an already-cancelled context takes the
	// cancellation path even if a grant raced it.
	select {
	case <-ctx.Done():
		q.cancel(entry)
		return ctx.Err()
	default:
	}

	select {
	case <-entry.ready:
		return nil
	case <-ctx.Done():
		q.cancel(entry)
		return ctx.Err()
	}
}

// Complete releases the slot held by the key. Idempotent when the key holds
// no slot.
func (q *UploadQueue) Complete(username, filename string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.running[slotKey(username, filename)]
	if !ok {
		return
	}

	q.releaseLocked(entry)
	q.evaluateLocked()
}

// QueueStatus is a point-in-time snapshot for the status API.
type QueueStatus struct {
	InFlight int            `json:"in_flight"`
	Pending  int            `json:"pending"`
	PerUser  map[string]int `json:"per_user"`
}

func (q *UploadQueue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	status := QueueStatus{
		InFlight: q.inFlight,
		PerUser:  make(map[string]int),
	}

	for _, entries := range q.pending {
		status.Pending += len(entries)
	}

	for username, n := range q.perUser {
		status.PerUser[username] = n
	}

	return status
}

// cancel removes a waiting entry, or releases its slot if a grant raced the
// cancellation. Either way the slot accounting is adjusted exactly once.
func (q *UploadQueue) cancel(entry *queueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch entry.state {
	case entryPending:
		q.removePendingLocked(entry)
		entry.state = entryDone
	case entryRunning:
		q.releaseLocked(entry)
		q.evaluateLocked()
	}
}

func (q *UploadQueue) findOrCreateLocked(username, filename string) *queueEntry {
	if entry, ok := q.running[slotKey(username, filename)]; ok {
		return entry
	}

	for _, entry := range q.pending[username] {
		if entry.filename == filename {
			return entry
		}
	}

	entry := &queueEntry{
		username:   username,
		filename:   filename,
		enqueuedAt: time.Now(),
		ready:      make(chan struct{}),
	}

	q.pending[username] = append(q.pending[username], entry)

	return entry
}

func (q *UploadQueue) removePendingLocked(entry *queueEntry) {
	entries := q.pending[entry.username]
	for i, e := range entries {
		if e == entry {
			q.pending[entry.username] = append(entries[:i], entries[i+1:]...)
			break
		}
	}

	if len(q.pending[entry.username]) == 0 {
		delete(q.pending, entry.username)
	}
}

func (q *UploadQueue) releaseLocked(entry *queueEntry) {
	entry.state = entryDone
	delete(q.running, slotKey(entry.username, entry.filename))

	q.inFlight--
	q.perUser[entry.username]--
	if q.perUser[entry.username] <= 0 {
		delete(q.perUser, entry.username)
	}
}

// evaluateLocked grants slots to every currently eligible entry. Called on
// every enqueue, completion, and cancellation.
func (q *UploadQueue) evaluateLocked() {
	for q.inFlight < q.cfg.MaxGlobalSlots {
		entry := q.nextEligibleLocked()
		if entry == nil {
			return
		}

		q.removePendingLocked(entry)
		entry.state = entryRunning
		q.running[slotKey(entry.username, entry.filename)] = entry
		q.perUser[entry.username]++
		q.inFlight++
		close(entry.ready)

		log.WithFields(log.Fields{
			"username": entry.username,
			"filename": entry.filename,
		}).Debug("Upload slot granted")
	}
}

// nextEligibleLocked picks the head-of-line entry among users under their
// per-user cap, ordering by group priority then enqueue time.
func (q *UploadQueue) nextEligibleLocked() *queueEntry {
	var (
		best         *queueEntry
		bestPriority int
	)

	for username, entries := range q.pending {
		if q.perUser[username] >= q.cfg.MaxSlotsPerUser {
			continue
		}

		head := entries[0]
		priority := q.users.GetGroupParams(q.users.GetGroup(username)).Priority

		if best == nil ||
			priority > bestPriority ||
			(priority == bestPriority && head.enqueuedAt.Before(best.enqueuedAt)) {
			best = head
			bestPriority = priority
		}
	}

	return best
}
