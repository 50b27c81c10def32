package stor

import (
	"os"
	"strconv"

	"gorm.io/gorm"
)

func txRetryCount() int {
	n, err := strconv.Atoi(os.Getenv("SWAPD_TX_RETRY"))
	if err != nil || n < 3 {
		return 3
	}

	return n
}

func WithTxRetry(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error

	retryCount := txRetryCount()

	for i := 0; i < retryCount; i++ {
		err = db.Transaction(fn)
		if err == nil {
			break
		}
	}

	return err
}
