package uploads

import (
	"context"
	"sync"
	"time"

	"github.com/peershare/swapd/pkg/users"
)

// maxGovernorWait bounds a single sleep while waiting for credit so a
// raised limit or returned credit is picked up promptly.
const maxGovernorWait = 100 * time.Millisecond

// tokenBucket is a continuously refilled byte bucket. Refill uses elapsed
// wall-clock time, so arbitrarily small waits accrue credit.
type tokenBucket struct {
	mu sync.Mutex

	rate      int64 // bytes per second
	capacity  int64 // burst allowance
	available float64
	filledAt  time.Time

	outstanding int64 // bytes granted but not yet reconciled

	nowFn func() time.Time
}

func newTokenBucket(rate int64, nowFn func() time.Time) *tokenBucket {
	if nowFn == nil {
		nowFn = time.Now
	}

	// Burst allowance is one second of the configured rate.
	return &tokenBucket{
		rate:      rate,
		capacity:  rate,
		available: float64(rate),
		filledAt:  nowFn(),
		nowFn:     nowFn,
	}
}

func (b *tokenBucket) refillLocked() {
	now := b.nowFn()
	elapsed := now.Sub(b.filledAt).Seconds()
	b.filledAt = now

	if elapsed < 0 {
		return
	}

	b.available += elapsed * float64(b.rate)
	if b.available > float64(b.capacity) {
		b.available = float64(b.capacity)
	}
}

// take drains up to requested bytes. When no credit is available it returns
// 0 and the wait until at least one byte accrues.
func (b *tokenBucket) take(requested int) (int, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	granted := int64(b.available)
	if granted <= 0 {
		wait := time.Duration(float64(time.Second) / float64(b.rate))
		return 0, wait
	}

	if granted > int64(requested) {
		granted = int64(requested)
	}

	b.available -= float64(granted)
	b.outstanding += granted

	return int(granted), 0
}

// put returns unused credit, clamped to capacity.
func (b *tokenBucket) put(n int) {
	if n <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.available += float64(n)
	if b.available > float64(b.capacity) {
		b.available = float64(b.capacity)
	}
}

func (b *tokenBucket) reconcile(granted int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.outstanding -= int64(granted)
	if b.outstanding < 0 {
		b.outstanding = 0
	}
}

// UploadGovernor grants per-chunk byte allowances. Each effective group
// with a configured speed limit gets its own token bucket; an optional
// aggregate bucket caps total egress so an unlimited group cannot saturate
// the link on its own.
type UploadGovernor struct {
	users users.UserService

	mu         sync.Mutex
	buckets    map[users.Group]*tokenBucket
	totalLimit int64
	global     *tokenBucket

	nowFn func() time.Time
}

// NewUploadGovernor creates a governor. totalLimit is the aggregate
// bytes-per-second cap, 0 for uncapped. Buckets are created lazily on
// first use and live for the process lifetime.
func NewUploadGovernor(totalLimit int64, userService users.UserService) *UploadGovernor {
	return &UploadGovernor{
		users:      userService,
		buckets:    make(map[users.Group]*tokenBucket),
		totalLimit: totalLimit,
		nowFn:      time.Now,
	}
}

func (g *UploadGovernor) now() time.Time {
	return g.nowFn()
}

func (g *UploadGovernor) globalBucket() *tokenBucket {
	if g.totalLimit <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.global == nil {
		g.global = newTokenBucket(g.totalLimit, g.now)
	}

	return g.global
}

func (g *UploadGovernor) bucketFor(username string) *tokenBucket {
	group := g.users.GetGroup(username)
	limit := g.users.GetGroupParams(group).SpeedLimit
	if limit <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	bucket, ok := g.buckets[group]
	if !ok {
		bucket = newTokenBucket(limit, g.now)
		g.buckets[group] = bucket
	}

	return bucket
}

// GetBytes blocks until at least one byte of send credit is available for
// the user's group, returning the granted amount. It never grants 0 except
// on cancellation.
func (g *UploadGovernor) GetBytes(ctx context.Context, username string, requested int) (int, error) {
	if requested <= 0 {
		requested = 1
	}

	bucket := g.bucketFor(username)
	global := g.globalBucket()

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		granted := requested
		var wait time.Duration

		if bucket != nil {
			granted, wait = bucket.take(requested)
			if granted == 0 {
				if err := g.sleep(ctx, wait); err != nil {
					return 0, err
				}
				continue
			}
		}

		if global == nil {
			return granted, nil
		}

		fromGlobal, globalWait := global.take(granted)
		if fromGlobal == granted {
			return granted, nil
		}

		// The aggregate cap cut the grant short. Hand the shortfall back to
		// the group bucket so other members can use it.
		if bucket != nil {
			bucket.put(granted - fromGlobal)
			bucket.reconcile(granted - fromGlobal)
		}

		if fromGlobal > 0 {
			return fromGlobal, nil
		}

		if err := g.sleep(ctx, globalWait); err != nil {
			return 0, err
		}
	}
}

// ReturnBytes reconciles a finished send. actual is clamped to granted so a
// misreporting driver can never mint negative debt.
func (g *UploadGovernor) ReturnBytes(username string, attempted, granted, actual int) {
	if actual > granted {
		actual = granted
	}

	if actual < 0 {
		actual = 0
	}

	unused := granted - actual

	if bucket := g.bucketFor(username); bucket != nil {
		bucket.put(unused)
		bucket.reconcile(granted)
	}

	if global := g.globalBucket(); global != nil {
		global.put(unused)
		global.reconcile(granted)
	}
}

// GovernorStatus is a point-in-time snapshot for the status API.
type GovernorStatus struct {
	Groups map[string]BucketStatus `json:"groups"`
	Global *BucketStatus           `json:"global,omitempty"`
}

type BucketStatus struct {
	Rate        int64 `json:"rate"`
	Available   int64 `json:"available"`
	Outstanding int64 `json:"outstanding"`
}

func (g *UploadGovernor) Status() GovernorStatus {
	status := GovernorStatus{Groups: make(map[string]BucketStatus)}

	g.mu.Lock()
	buckets := make(map[users.Group]*tokenBucket, len(g.buckets))
	for group, bucket := range g.buckets {
		buckets[group] = bucket
	}
	g.mu.Unlock()

	for group, bucket := range buckets {
		status.Groups[string(group)] = bucket.status()
	}

	if global := g.globalBucket(); global != nil {
		s := global.status()
		status.Global = &s
	}

	return status
}

func (b *tokenBucket) status() BucketStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()

	return BucketStatus{
		Rate:        b.rate,
		Available:   int64(b.available),
		Outstanding: b.outstanding,
	}
}

func (g *UploadGovernor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 || d > maxGovernorWait {
		d = maxGovernorWait
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
