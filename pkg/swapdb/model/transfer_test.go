package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsTerminal(t *testing.T) {
	var tests = []struct {
		state    TransferState
		expected bool
	}{
		{state: StateRequested, expected: false},
		{state: StateQueuedLocally, expected: false},
		{state: StateQueuedRemotely, expected: false},
		{state: StateInitializing, expected: false},
		{state: StateInProgress, expected: false},
		{state: StateSucceeded, expected: true},
		{state: StateCancelled, expected: true},
		{state: StateTimedOut, expected: true},
		{state: StateErrored, expected: true},
		{state: StateRejected, expected: true},
	}

	for _, test := range tests {
		t.Run(string(test.state), func(t *testing.T) {
			require.Equal(t, test.expected, test.state.IsTerminal())
		})
	}
}

func TestCanTransition(t *testing.T) {
	var tests = []struct {
		name     string
		from     TransferState
		to       TransferState
		expected bool
	}{
		{name: "requested to queued", from: StateRequested, to: StateQueuedLocally, expected: true},
		{name: "queued to initializing", from: StateQueuedLocally, to: StateInitializing, expected: true},
		{name: "initializing to inprogress", from: StateInitializing, to: StateInProgress, expected: true},
		{name: "requested straight to cancelled", from: StateRequested, to: StateCancelled, expected: true},
		{name: "inprogress to errored", from: StateInProgress, to: StateErrored, expected: true},
		{name: "inprogress back to queued", from: StateInProgress, to: StateQueuedLocally, expected: false},
		{name: "terminal to terminal", from: StateSucceeded, to: StateCancelled, expected: false},
		{name: "terminal to inprogress", from: StateCancelled, to: StateInProgress, expected: false},
		{name: "queued sub-state change", from: StateQueuedRemotely, to: StateQueuedLocally, expected: true},
		{name: "same state", from: StateInProgress, to: StateInProgress, expected: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, CanTransition(test.from, test.to))
		})
	}
}

func TestBytesRemaining(t *testing.T) {
	transfer := &Transfer{Size: 100, BytesTransferred: 60}
	require.Equal(t, int64(40), transfer.BytesRemaining())

	transfer.BytesTransferred = 120
	require.Equal(t, int64(0), transfer.BytesRemaining())
}
