package stor

import (
	"testing"

	"github.com/peershare/swapd/pkg/swapdb/model"
	"github.com/peershare/swapd/pkg/tutil"
	"github.com/stretchr/testify/require"
)

// runTransferStorTests exercises the TransferStor contract. Both
// implementations must behave identically; the in-memory one always runs,
// the gorm one only as an integration test.
func runTransferStorTests(t *testing.T, newStor func(t *testing.T) TransferStor) {
	newUpload := func(t *testing.T, s TransferStor, username, filename string) *model.Transfer {
		t.Helper()
		transfer, err := s.CreateTransfer(&model.Transfer{
			Username:  username,
			Filename:  filename,
			Direction: model.DirectionUpload,
			State:     model.StateRequested,
			Size:      2048,
		})
		require.NoError(t, err)
		return transfer
	}

	t.Run("create assigns uuid and requested time", func(t *testing.T) {
		s := newStor(t)
		transfer := newUpload(t, s, "alice", "a.flac")

		require.NotEmpty(t, transfer.UUID)
		require.False(t, transfer.RequestedAt.IsZero())

		got, err := s.GetTransferByUUID(transfer.UUID)
		require.NoError(t, err)
		require.Equal(t, transfer.UUID, got.UUID)
	})

	t.Run("get unknown uuid", func(t *testing.T) {
		s := newStor(t)
		_, err := s.GetTransferByUUID("no-such-uuid")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("find active transfer", func(t *testing.T) {
		s := newStor(t)

		_, err := s.FindActiveTransfer("alice", "a.flac", model.DirectionUpload)
		require.ErrorIs(t, err, ErrNotFound)

		transfer := newUpload(t, s, "alice", "a.flac")

		got, err := s.FindActiveTransfer("alice", "a.flac", model.DirectionUpload)
		require.NoError(t, err)
		require.Equal(t, transfer.UUID, got.UUID)

		// Ended transfers are no longer active; the key is free again.
		_, err = s.UpdateTransferState(transfer.UUID, model.StateSucceeded, "")
		require.NoError(t, err)

		_, err = s.FindActiveTransfer("alice", "a.flac", model.DirectionUpload)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list filters", func(t *testing.T) {
		s := newStor(t)
		newUpload(t, s, "alice", "a.flac")
		newUpload(t, s, "alice", "b.flac")
		newUpload(t, s, "bob", "a.flac")

		list, err := s.ListTransfers(TransferQuery{Direction: model.DirectionUpload})
		require.NoError(t, err)
		require.Len(t, list, 3)

		list, err = s.ListTransfers(TransferQuery{Direction: model.DirectionUpload, Username: "alice"})
		require.NoError(t, err)
		require.Len(t, list, 2)

		list, err = s.ListTransfers(TransferQuery{Direction: model.DirectionUpload, Username: "bob", Filename: "a.flac"})
		require.NoError(t, err)
		require.Len(t, list, 1)
	})

	t.Run("state transitions enforce the state machine", func(t *testing.T) {
		s := newStor(t)
		transfer := newUpload(t, s, "alice", "a.flac")

		got, err := s.UpdateTransferState(transfer.UUID, model.StateQueuedLocally, "")
		require.NoError(t, err)
		require.Equal(t, model.StateQueuedLocally, got.State)
		require.Nil(t, got.EndedAt)

		// Backwards moves are rejected and the record is untouched.
		_, err = s.UpdateTransferState(transfer.UUID, model.StateRequested, "")
		require.ErrorIs(t, err, ErrInvalidTransition)

		got, err = s.GetTransferByUUID(transfer.UUID)
		require.NoError(t, err)
		require.Equal(t, model.StateQueuedLocally, got.State)

		got, err = s.UpdateTransferState(transfer.UUID, model.StateErrored, "connection reset")
		require.NoError(t, err)
		require.NotNil(t, got.EndedAt)
		require.Equal(t, "connection reset", got.Exception)

		// Terminal states admit nothing further.
		_, err = s.UpdateTransferState(transfer.UUID, model.StateInProgress, "")
		require.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("progress updates compute percent", func(t *testing.T) {
		s := newStor(t)
		transfer := newUpload(t, s, "alice", "a.flac")

		got, err := s.UpdateTransferProgress(transfer.UUID, 512, 1000.0)
		require.NoError(t, err)
		require.Equal(t, int64(512), got.BytesTransferred)
		require.Equal(t, float64(25), got.PercentComplete)
		require.Equal(t, 1000.0, got.AverageSpeed)
	})

	t.Run("mark removed", func(t *testing.T) {
		s := newStor(t)
		transfer := newUpload(t, s, "alice", "a.flac")

		require.NoError(t, s.MarkTransferRemoved(transfer.UUID))
		require.ErrorIs(t, s.MarkTransferRemoved("no-such-uuid"), ErrNotFound)

		list, err := s.ListTransfers(TransferQuery{Direction: model.DirectionUpload})
		require.NoError(t, err)
		require.Empty(t, list)

		list, err = s.ListTransfers(TransferQuery{Direction: model.DirectionUpload, IncludeRemoved: true})
		require.NoError(t, err)
		require.Len(t, list, 1)
	})
}

func TestInMemoryTransferStor(t *testing.T) {
	runTransferStorTests(t, func(t *testing.T) TransferStor {
		return NewInMemoryTransferStor()
	})
}

func TestGormTransferStor(t *testing.T) {
	if !tutil.IsIntegrationTest() {
		t.Skip("skipping gorm stor test, set SWAPD_TEST=integration to run")
	}

	runTransferStorTests(t, func(t *testing.T) TransferStor {
		return NewGormTransferStor(tutil.OpenTestDB(t, &model.Transfer{}))
	})
}
