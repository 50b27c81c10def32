package model

import (
	"time"

	"gorm.io/gorm"
)

type TransferDirection string

const (
	DirectionUpload   TransferDirection = "upload"
	DirectionDownload TransferDirection = "download"
)

// TransferState is the single current state of a transfer. Queued has two
// sub-states, distinguishing a transfer held in our queue from one the
// remote peer reports as queued on its side.
type TransferState string

const (
	StateRequested      TransferState = "requested"
	StateQueuedLocally  TransferState = "queued.locally"
	StateQueuedRemotely TransferState = "queued.remotely"
	StateInitializing   TransferState = "initializing"
	StateInProgress     TransferState = "inprogress"
	StateSucceeded      TransferState = "completed.succeeded"
	StateCancelled      TransferState = "completed.cancelled"
	StateTimedOut       TransferState = "completed.timedout"
	StateErrored        TransferState = "completed.errored"
	StateRejected       TransferState = "completed.rejected"
)

func (s TransferState) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateCancelled, StateTimedOut, StateErrored, StateRejected:
		return true
	}

	return false
}

func (s TransferState) IsQueued() bool {
	return s == StateQueuedLocally || s == StateQueuedRemotely
}

// stateRank orders the non-terminal states along the transfer lifecycle.
var stateRank = map[TransferState]int{
	StateRequested:      0,
	StateQueuedLocally:  1,
	StateQueuedRemotely: 1,
	StateInitializing:   2,
	StateInProgress:     3,
}

// CanTransition reports whether a transfer may move from one state to
// another. Terminal states admit no transition out; any state may move
// directly to a terminal state; otherwise states only move forward.
func CanTransition(from, to TransferState) bool {
	if from.IsTerminal() {
		return false
	}

	if to.IsTerminal() {
		return true
	}

	return stateRank[to] >= stateRank[from]
}

// Transfer is the durable record for one upload or download. Records are
// soft-deleted only; Removed keeps them out of listings but retains the
// transfer history.
type Transfer struct {
	ID               int               `json:"id" gorm:"primaryKey"`
	UUID             string            `json:"uuid" gorm:"uniqueIndex"`
	Username         string            `json:"username" gorm:"index"`
	Filename         string            `json:"filename"`
	Direction        TransferDirection `json:"direction" gorm:"index"`
	State            TransferState     `json:"state"`
	Size             int64             `json:"size"`
	StartOffset      int64             `json:"start_offset"`
	BytesTransferred int64             `json:"bytes_transferred"`
	PercentComplete  float64           `json:"percent_complete"`
	AverageSpeed     float64           `json:"average_speed"`
	Exception        string            `json:"exception,omitempty"`
	Removed          bool              `json:"removed"`
	RequestedAt      time.Time         `json:"requested_at"`
	EndedAt          *time.Time        `json:"ended_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func (t *Transfer) BytesRemaining() int64 {
	remaining := t.Size - t.BytesTransferred
	if remaining < 0 {
		return 0
	}

	return remaining
}

func (t *Transfer) BeforeCreate(tx *gorm.DB) (err error) {
	if t.State == "" {
		t.State = StateRequested
	}

	if t.RequestedAt.IsZero() {
		t.RequestedAt = time.Now()
	}

	return
}
