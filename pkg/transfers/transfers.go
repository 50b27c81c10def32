// Package transfers defines the contract between the upload orchestration
// layer and the wire-level transfer driver. The driver moves bytes; the
// capabilities it is handed decide when it may run (SlotProvider), how fast
// it may send (BandwidthProvider), and where lifecycle events go
// (EventSink).
package transfers

import (
	"context"

	"github.com/peershare/swapd/pkg/swapdb/model"
	"github.com/pkg/errors"
)

// DefaultChunkSize is the preferred size of a single governed send.
const DefaultChunkSize = 32 * 1024

// ErrRejected is returned by a driver when the remote peer explicitly
// refuses the transfer.
var ErrRejected = errors.New("transfer rejected by peer")

// SlotProvider grants permission for a transfer to be actively running.
type SlotProvider interface {
	// Enqueue registers the key as pending. Idempotent.
	Enqueue(username, filename string)

	// AwaitStart blocks until a slot is granted or ctx is cancelled. Safe to
	// call before or racing with Enqueue.
	AwaitStart(ctx context.Context, username, filename string) error

	// Complete releases the slot held by this key. Idempotent for keys
	// holding no slot.
	Complete(username, filename string)
}

// BandwidthProvider grants byte allowances for governed sends.
type BandwidthProvider interface {
	// GetBytes blocks until at least one byte of credit is available and
	// returns the granted amount, which may be less than requested. On
	// cancellation it returns 0 and the context error.
	GetBytes(ctx context.Context, username string, requested int) (int, error)

	// ReturnBytes reconciles a completed send attempt, returning unused
	// credit (granted - actual) to the ledger.
	ReturnBytes(username string, attempted, granted, actual int)
}

// EventSink receives a transfer's lifecycle signals. StateChanged carries
// non-terminal states only while the driver runs; the orchestrator derives
// the terminal state from the driver's returned error.
type EventSink interface {
	StateChanged(state model.TransferState)
	ProgressUpdated(bytesTransferred int64, averageSpeed float64)
}

// UploadRequest carries everything a driver needs to serve one file.
type UploadRequest struct {
	ID        string
	Username  string
	Filename  string
	LocalPath string
	Size      int64

	Slots     SlotProvider
	Bandwidth BandwidthProvider
	Events    EventSink
}

// Client is the transfer I/O driver. Upload blocks until the transfer ends,
// calling the request's capabilities at the defined points: StateChanged to
// a queued state before requesting a slot, AwaitStart before sending,
// GetBytes/ReturnBytes around each chunk, Complete when the slot is no
// longer needed. A nil return means every byte was sent and acknowledged.
type Client interface {
	Upload(ctx context.Context, req UploadRequest) error
}
