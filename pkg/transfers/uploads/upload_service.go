package uploads

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/peershare/swapd/pkg/clog"
	"github.com/peershare/swapd/pkg/lock"
	"github.com/peershare/swapd/pkg/shares"
	"github.com/peershare/swapd/pkg/swapdb/model"
	"github.com/peershare/swapd/pkg/swapdb/stor"
	"github.com/peershare/swapd/pkg/transfers"
	"github.com/peershare/swapd/pkg/users"
	"github.com/pkg/errors"
)

// ErrNotCompleted is returned when removing a transfer that has not reached
// a terminal state. In-flight transfers are cancelled, not removed.
var ErrNotCompleted = errors.New("transfer has not completed")

// Broadcaster publishes transfer record changes to observers. Broadcast
// must not block; the record in the store is authoritative regardless.
type Broadcaster interface {
	BroadcastTransfer(t *model.Transfer)
}

// UploadService orchestrates inbound file requests: dedup, share
// resolution, record lifecycle, and the wiring of each transfer task to the
// queue and governor.
type UploadService struct {
	Queue    *UploadQueue
	Governor *UploadGovernor

	users       users.UserService
	shares      shares.Resolver
	client      transfers.Client
	stor        stor.TransferStor
	broadcaster Broadcaster

	// cancellations maps transfer UUID to the task's cancel func. Mutated
	// only here; entries are removed on TryCancel and when the task ends.
	cancellations sync.Map

	// enqueueLocks serializes Enqueue per (username, filename) so two
	// concurrent requests for the same file cannot both pass the dedup
	// check and create two records.
	enqueueLocks *lock.KeyLocker
}

func NewUploadService(
	queue *UploadQueue,
	governor *UploadGovernor,
	userService users.UserService,
	resolver shares.Resolver,
	client transfers.Client,
	transferStor stor.TransferStor,
	broadcaster Broadcaster,
) *UploadService {
	return &UploadService{
		Queue:        queue,
		Governor:     governor,
		users:        userService,
		shares:       resolver,
		client:       client,
		stor:         transferStor,
		broadcaster:  broadcaster,
		enqueueLocks: lock.NewKeyLocker(),
	}
}

// Enqueue handles a peer's request for a file. Re-requests of a transfer
// that is already tracked are no-ops; peers re-request to poll status.
func (s *UploadService) Enqueue(username, filename string) error {
	return s.enqueueLocks.WithLock(username+"/"+filename, func() error {
		return s.enqueue(username, filename)
	})
}

func (s *UploadService) enqueue(username, filename string) error {
	if _, err := s.stor.FindActiveTransfer(username, filename, model.DirectionUpload); err == nil {
		return nil
	} else if !errors.Is(err, stor.ErrNotFound) {
		log.Errorf("Failed to check for existing upload %s/%s: %s", username, filename, err)
		return err
	}

	resolved, err := s.shares.ResolveFilename(filename)
	if err != nil {
		log.WithFields(log.Fields{
			"username": username,
			"filename": filename,
		}).Info("Upload rejected, file not shared")
		return err
	}

	transfer, err := s.stor.CreateTransfer(&model.Transfer{
		Username:  username,
		Filename:  filename,
		Direction: model.DirectionUpload,
		State:     model.StateRequested,
		Size:      resolved.Size,
	})
	if err != nil {
		log.Errorf("Failed to create upload record for %s/%s: %s", username, filename, err)
		return err
	}

	s.broadcast(transfer)
	clog.ForTransfer(transfer.UUID, username, filename).Info("Upload requested")

	// The transfer outlives the enqueue call; its context is detached and
	// cancelled only through TryCancel or task completion.
	ctx, cancel := context.WithCancel(context.Background())
	s.cancellations.Store(transfer.UUID, cancel)

	go s.run(ctx, cancel, transfer, resolved.LocalPath)

	return nil
}

// run supervises one transfer task from slot wait to terminal state.
func (s *UploadService) run(ctx context.Context, cancel context.CancelFunc, transfer *model.Transfer, localPath string) {
	defer func() {
		s.cancellations.Delete(transfer.UUID)
		cancel()
	}()

	// Watched users keep their effective group current while they have
	// uploads with us.
	if !s.users.IsWatched(transfer.Username) {
		if err := s.users.Watch(ctx, transfer.Username); err != nil {
			log.Warnf("Failed to watch user %s: %s", transfer.Username, err)
		}
	}

	err := s.client.Upload(ctx, transfers.UploadRequest{
		ID:        transfer.UUID,
		Username:  transfer.Username,
		Filename:  transfer.Filename,
		LocalPath: localPath,
		Size:      transfer.Size,
		Slots:     s.Queue,
		Bandwidth: s.Governor,
		Events:    &recordSink{svc: s, transfer: transfer},
	})

	s.finish(transfer, err)
}

// finish maps the task's outcome onto a terminal state.
func (s *UploadService) finish(transfer *model.Transfer, err error) {
	state := model.StateSucceeded
	detail := ""

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		state = model.StateCancelled
	case errors.Is(err, context.DeadlineExceeded):
		state = model.StateTimedOut
		detail = err.Error()
	case errors.Is(err, transfers.ErrRejected):
		state = model.StateRejected
		detail = err.Error()
	default:
		state = model.StateErrored
		detail = err.Error()
	}

	updated, updateErr := s.stor.UpdateTransferState(transfer.UUID, state, detail)
	if updateErr != nil {
		log.Errorf("Failed to record terminal state %s for upload %s: %s", state, transfer.UUID, updateErr)
		return
	}

	s.broadcast(updated)

	entry := clog.ForTransfer(transfer.UUID, transfer.Username, transfer.Filename)
	if err != nil {
		entry.WithField("state", state).Warnf("Upload ended: %s", err)
	} else {
		entry.Info("Upload succeeded")
	}
}

// Find returns the single upload matching the query, or stor.ErrNotFound.
func (s *UploadService) Find(q stor.TransferQuery) (*model.Transfer, error) {
	q.Direction = model.DirectionUpload

	list, err := s.stor.ListTransfers(q)
	if err != nil {
		log.Errorf("Failed to find upload: %s", err)
		return nil, err
	}

	if len(list) == 0 {
		return nil, stor.ErrNotFound
	}

	return &list[0], nil
}

// List returns uploads matching the query. Removed uploads are excluded
// unless the query includes them.
func (s *UploadService) List(q stor.TransferQuery) ([]model.Transfer, error) {
	q.Direction = model.DirectionUpload

	list, err := s.stor.ListTransfers(q)
	if err != nil {
		log.Errorf("Failed to list uploads: %s", err)
		return nil, err
	}

	return list, nil
}

func (s *UploadService) Exists(q stor.TransferQuery) (bool, error) {
	_, err := s.Find(q)
	if errors.Is(err, stor.ErrNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

// Get returns the upload with the given id, or stor.ErrNotFound.
func (s *UploadService) Get(transferUUID string) (*model.Transfer, error) {
	t, err := s.stor.GetTransferByUUID(transferUUID)
	if err != nil {
		return nil, err
	}

	if t.Direction != model.DirectionUpload {
		return nil, stor.ErrNotFound
	}

	return t, nil
}

// Remove soft-deletes a completed upload. The record is retained for
// historical retrieval.
func (s *UploadService) Remove(transferUUID string) error {
	transfer, err := s.Get(transferUUID)
	if err != nil {
		log.Errorf("Failed to remove upload %s: %s", transferUUID, err)
		return err
	}

	if !transfer.State.IsTerminal() {
		return errors.Wrapf(ErrNotCompleted, "upload %s is %s", transferUUID, transfer.State)
	}

	if err := s.stor.MarkTransferRemoved(transferUUID); err != nil {
		log.Errorf("Failed to remove upload %s: %s", transferUUID, err)
		return err
	}

	return nil
}

// TryCancel cancels the in-flight upload with the given id, reporting
// whether a cancellation was actually issued. A second call for the same id
// returns false.
func (s *UploadService) TryCancel(transferUUID string) bool {
	cancel, ok := s.cancellations.LoadAndDelete(transferUUID)
	if !ok {
		return false
	}

	cancel.(context.CancelFunc)()

	return true
}

func (s *UploadService) broadcast(t *model.Transfer) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastTransfer(t)
	}
}

// recordSink receives one transfer's lifecycle signals from the driver and
// writes them through to the record, mirroring queued states into the
// queue's own pending list so the two never diverge.
type recordSink struct {
	svc      *UploadService
	transfer *model.Transfer

	startedAt time.Time
}

func (r *recordSink) StateChanged(state model.TransferState) {
	if state == model.StateInProgress && r.startedAt.IsZero() {
		r.startedAt = time.Now()
	}

	updated, err := r.svc.stor.UpdateTransferState(r.transfer.UUID, state, "")
	if err != nil {
		log.Errorf("Failed to update state of upload %s to %s: %s", r.transfer.UUID, state, err)
		return
	}

	if state.IsQueued() {
		r.svc.Queue.Enqueue(r.transfer.Username, r.transfer.Filename)
	}

	r.svc.broadcast(updated)
}

func (r *recordSink) ProgressUpdated(bytesTransferred int64, averageSpeed float64) {
	updated, err := r.svc.stor.UpdateTransferProgress(r.transfer.UUID, bytesTransferred, averageSpeed)
	if err != nil {
		log.Errorf("Failed to update progress of upload %s: %s", r.transfer.UUID, err)
		return
	}

	r.svc.broadcast(updated)
}
