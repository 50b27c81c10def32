package wserv

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/peershare/swapd/pkg/swapd/wire"
	"github.com/peershare/swapd/pkg/swapdb/model"
	"github.com/peershare/swapd/pkg/transfers"
	"github.com/pkg/errors"
)

// Upload implements transfers.Client: it serves one file to the requesting
// peer over its websocket connection, drawing a slot from the queue and a
// byte allowance from the governor for every chunk.
func (h *Hub) Upload(ctx context.Context, req transfers.UploadRequest) error {
	peer := h.peer(req.Username)
	if peer == nil {
		return errors.Errorf("peer %s is not connected", req.Username)
	}

	req.Events.StateChanged(model.StateQueuedLocally)

	if err := req.Slots.AwaitStart(ctx, req.Username, req.Filename); err != nil {
		return err
	}
	defer req.Slots.Complete(req.Username, req.Filename)

	req.Events.StateChanged(model.StateInitializing)

	f, err := os.Open(req.LocalPath)
	if err != nil {
		return errors.Wrapf(err, "open %s", req.LocalPath)
	}
	defer f.Close()

	err = peer.writeJSON(wire.TransferStartMsg{
		MsgType:    wire.TypeTransferStart,
		TransferID: req.ID,
		Filename:   req.Filename,
		Size:       req.Size,
	})
	if err != nil {
		return errors.Wrap(err, "send transfer start")
	}

	req.Events.StateChanged(model.StateInProgress)

	var (
		total     int64
		startedAt = time.Now()
		buf       = make([]byte, transfers.DefaultChunkSize)
	)

	for {
		granted, err := req.Bandwidth.GetBytes(ctx, req.Username, transfers.DefaultChunkSize)
		if err != nil {
			return err
		}

		n, readErr := f.Read(buf[:granted])

		if n > 0 {
			if writeErr := peer.writeChunk(buf[:n]); writeErr != nil {
				req.Bandwidth.ReturnBytes(req.Username, transfers.DefaultChunkSize, granted, 0)
				return errors.Wrap(writeErr, "send chunk")
			}
		}

		req.Bandwidth.ReturnBytes(req.Username, transfers.DefaultChunkSize, granted, n)

		total += int64(n)

		elapsed := time.Since(startedAt).Seconds()
		speed := float64(0)
		if elapsed > 0 {
			speed = float64(total) / elapsed
		}

		req.Events.ProgressUpdated(total, speed)

		switch {
		case readErr == io.EOF, total >= req.Size:
			_ = peer.writeJSON(wire.TransferDoneMsg{
				MsgType:    wire.TypeTransferDone,
				TransferID: req.ID,
				Status:     "succeeded",
			})
			return nil
		case readErr != nil:
			_ = peer.writeJSON(wire.TransferDoneMsg{
				MsgType:    wire.TypeTransferDone,
				TransferID: req.ID,
				Status:     "failed",
				Message:    readErr.Error(),
			})
			return errors.Wrapf(readErr, "read %s", req.LocalPath)
		}
	}
}
