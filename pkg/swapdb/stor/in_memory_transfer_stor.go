package stor

import (
	"sync"
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/peershare/swapd/pkg/swapdb/model"
)

// InMemoryTransferStor implements TransferStor against a slice for tests.
// Setting ErrToReturn makes every method fail with that error.
type InMemoryTransferStor struct {
	ErrToReturn error

	mu        sync.Mutex
	transfers []model.Transfer
	lastID    int
}

func NewInMemoryTransferStor() *InMemoryTransferStor {
	return &InMemoryTransferStor{lastID: 10000}
}

func (s *InMemoryTransferStor) CreateTransfer(t *model.Transfer) (*model.Transfer, error) {
	if s.ErrToReturn != nil {
		return nil, s.ErrToReturn
	}

	var err error
	if t.UUID, err = uuid.GenerateUUID(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID++
	t.ID = s.lastID

	if t.State == "" {
		t.State = model.StateRequested
	}

	if t.RequestedAt.IsZero() {
		t.RequestedAt = time.Now()
	}

	s.transfers = append(s.transfers, *t)

	return t, nil
}

func (s *InMemoryTransferStor) GetTransferByUUID(transferUUID string) (*model.Transfer, error) {
	if s.ErrToReturn != nil {
		return nil, s.ErrToReturn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.findLocked(transferUUID)
}

func (s *InMemoryTransferStor) FindActiveTransfer(username, filename string, direction model.TransferDirection) (*model.Transfer, error) {
	if s.ErrToReturn != nil {
		return nil, s.ErrToReturn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.transfers {
		t := &s.transfers[i]
		if t.Username == username && t.Filename == filename && t.Direction == direction &&
			!t.Removed && !t.State.IsTerminal() {
			found := *t
			return &found, nil
		}
	}

	return nil, ErrNotFound
}

func (s *InMemoryTransferStor) ListTransfers(q TransferQuery) ([]model.Transfer, error) {
	if s.ErrToReturn != nil {
		return nil, s.ErrToReturn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var transfers []model.Transfer
	for _, t := range s.transfers {
		if t.Direction != q.Direction {
			continue
		}

		if t.Removed && !q.IncludeRemoved {
			continue
		}

		if q.Username != "" && t.Username != q.Username {
			continue
		}

		if q.Filename != "" && t.Filename != q.Filename {
			continue
		}

		transfers = append(transfers, t)
	}

	return transfers, nil
}

func (s *InMemoryTransferStor) UpdateTransferState(transferUUID string, state model.TransferState, exception string) (*model.Transfer, error) {
	if s.ErrToReturn != nil {
		return nil, s.ErrToReturn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.findIndexLocked(transferUUID)
	if err != nil {
		return nil, err
	}

	if !model.CanTransition(t.State, state) {
		return nil, ErrInvalidTransition
	}

	t.State = state
	if state.IsTerminal() {
		now := time.Now()
		t.EndedAt = &now
		t.Exception = exception
	}

	found := *t
	return &found, nil
}

func (s *InMemoryTransferStor) UpdateTransferProgress(transferUUID string, bytesTransferred int64, averageSpeed float64) (*model.Transfer, error) {
	if s.ErrToReturn != nil {
		return nil, s.ErrToReturn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.findIndexLocked(transferUUID)
	if err != nil {
		return nil, err
	}

	t.BytesTransferred = bytesTransferred
	t.AverageSpeed = averageSpeed
	if t.Size > 0 {
		t.PercentComplete = float64(bytesTransferred) / float64(t.Size) * 100
	}

	found := *t
	return &found, nil
}

func (s *InMemoryTransferStor) MarkTransferRemoved(transferUUID string) error {
	if s.ErrToReturn != nil {
		return s.ErrToReturn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.findIndexLocked(transferUUID)
	if err != nil {
		return err
	}

	t.Removed = true

	return nil
}

func (s *InMemoryTransferStor) findLocked(transferUUID string) (*model.Transfer, error) {
	t, err := s.findIndexLocked(transferUUID)
	if err != nil {
		return nil, err
	}

	found := *t
	return &found, nil
}

func (s *InMemoryTransferStor) findIndexLocked(transferUUID string) (*model.Transfer, error) {
	for i := range s.transfers {
		if s.transfers[i].UUID == transferUUID {
			return &s.transfers[i], nil
		}
	}

	return nil, ErrNotFound
}
