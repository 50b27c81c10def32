package stor

import (
	"errors"
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/peershare/swapd/pkg/swapdb/model"
	"gorm.io/gorm"
)

type GormTransferStor struct {
	db *gorm.DB
}

func NewGormTransferStor(db *gorm.DB) *GormTransferStor {
	return &GormTransferStor{db: db}
}

func (s *GormTransferStor) CreateTransfer(t *model.Transfer) (*model.Transfer, error) {
	var err error

	if t.UUID, err = uuid.GenerateUUID(); err != nil {
		return nil, err
	}

	err = WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Create(t).Error
	})

	if err != nil {
		return nil, err
	}

	return t, nil
}

func (s *GormTransferStor) GetTransferByUUID(transferUUID string) (*model.Transfer, error) {
	var transfer model.Transfer
	err := s.db.Where("uuid = ?", transferUUID).First(&transfer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &transfer, nil
}

func (s *GormTransferStor) FindActiveTransfer(username, filename string, direction model.TransferDirection) (*model.Transfer, error) {
	var transfer model.Transfer
	err := s.db.
		Where("username = ? and filename = ? and direction = ?", username, filename, direction).
		Where("removed = ?", false).
		Where("ended_at is null").
		First(&transfer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &transfer, nil
}

func (s *GormTransferStor) ListTransfers(q TransferQuery) ([]model.Transfer, error) {
	var transfers []model.Transfer

	tx := s.db.Where("direction = ?", q.Direction)

	if !q.IncludeRemoved {
		tx = tx.Where("removed = ?", false)
	}

	if q.Username != "" {
		tx = tx.Where("username = ?", q.Username)
	}

	if q.Filename != "" {
		tx = tx.Where("filename = ?", q.Filename)
	}

	err := tx.Order("requested_at").Find(&transfers).Error

	return transfers, err
}

func (s *GormTransferStor) UpdateTransferState(transferUUID string, state model.TransferState, exception string) (*model.Transfer, error) {
	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		var transfer model.Transfer
		if err := tx.Where("uuid = ?", transferUUID).First(&transfer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if !model.CanTransition(transfer.State, state) {
			return ErrInvalidTransition
		}

		updates := map[string]interface{}{"state": state}
		if state.IsTerminal() {
			now := time.Now()
			updates["ended_at"] = &now
			updates["exception"] = exception
		}

		return tx.Model(&transfer).Updates(updates).Error
	})

	if err != nil {
		return nil, err
	}

	return s.GetTransferByUUID(transferUUID)
}

func (s *GormTransferStor) UpdateTransferProgress(transferUUID string, bytesTransferred int64, averageSpeed float64) (*model.Transfer, error) {
	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		var transfer model.Transfer
		if err := tx.Where("uuid = ?", transferUUID).First(&transfer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		percent := float64(0)
		if transfer.Size > 0 {
			percent = float64(bytesTransferred) / float64(transfer.Size) * 100
		}

		return tx.Model(&transfer).Updates(map[string]interface{}{
			"bytes_transferred": bytesTransferred,
			"percent_complete":  percent,
			"average_speed":     averageSpeed,
		}).Error
	})

	if err != nil {
		return nil, err
	}

	return s.GetTransferByUUID(transferUUID)
}

func (s *GormTransferStor) MarkTransferRemoved(transferUUID string) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		result := tx.Model(&model.Transfer{}).Where("uuid = ?", transferUUID).Update("removed", true)
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		return nil
	})
}
