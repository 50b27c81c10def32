package stor

import (
	"errors"

	"github.com/peershare/swapd/pkg/swapdb/model"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("transfer not found")
	ErrInvalidTransition = errors.New("invalid transfer state transition")
)

// TransferQuery is the closed set of filters transfer listings support.
// Direction is always set by callers; zero-valued fields are not applied.
type TransferQuery struct {
	Direction      model.TransferDirection
	Username       string
	Filename       string
	IncludeRemoved bool
}

type TransferStor interface {
	CreateTransfer(t *model.Transfer) (*model.Transfer, error)
	GetTransferByUUID(transferUUID string) (*model.Transfer, error)

	// FindActiveTransfer returns the non-removed, non-terminal transfer for
	// the given key, or ErrNotFound. At most one such record exists.
	FindActiveTransfer(username, filename string, direction model.TransferDirection) (*model.Transfer, error)

	ListTransfers(q TransferQuery) ([]model.Transfer, error)

	// UpdateTransferState applies a state transition, enforcing the state
	// machine (ErrInvalidTransition when the record's current state does not
	// admit the move). Terminal states set EndedAt; exception is recorded
	// only for terminal states.
	UpdateTransferState(transferUUID string, state model.TransferState, exception string) (*model.Transfer, error)

	UpdateTransferProgress(transferUUID string, bytesTransferred int64, averageSpeed float64) (*model.Transfer, error)

	// MarkTransferRemoved soft-deletes a transfer. The caller is responsible
	// for checking the record is in a terminal state first.
	MarkTransferRemoved(transferUUID string) error
}

type Stors struct {
	TransferStor TransferStor
}

func NewGormStors(db *gorm.DB) *Stors {
	return &Stors{
		TransferStor: NewGormTransferStor(db),
	}
}
