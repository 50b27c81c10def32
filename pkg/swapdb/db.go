package swapdb

import (
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/peershare/swapd/pkg/config"
	"github.com/peershare/swapd/pkg/swapdb/model"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const maxDBRetries = 5

func MakeMysqlDSN(c config.Configer) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.GetKey("DB_USERNAME"),
		c.GetKey("DB_PASSWORD"),
		c.GetKey("DB_HOST"),
		c.GetKey("DB_PORT"),
		c.GetKey("DB_DATABASE"))
}

// MustConnectToDB opens the transfers database selected by SWAPD_DB_DRIVER
// (sqlite by default, mysql for a shared server install) and migrates the
// transfer table. Connection failures are retried maxDBRetries times with a
// short sleep, then the daemon exits.
func MustConnectToDB(c config.Configer) *gorm.DB {
	var (
		err error
		db  *gorm.DB
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	driver := c.GetKeyWithDefault("SWAPD_DB_DRIVER", "sqlite")

	retryCount := 1
	for {
		switch driver {
		case "mysql":
			db, err = gorm.Open(mysql.Open(MakeMysqlDSN(c)), gormConfig)
		default:
			db, err = gorm.Open(sqlite.Open(c.GetKeyWithDefault("SWAPD_DB_PATH", "swapd.db")), gormConfig)
		}

		switch {
		case err == nil:
			if err := db.AutoMigrate(&model.Transfer{}); err != nil {
				log.Fatalf("Failed to migrate transfers table: %s", err)
			}
			return db
		case retryCount >= maxDBRetries:
			log.Fatalf("Failed to open %s db: %s", driver, err)
		default:
			retryCount++
			time.Sleep(3 * time.Second)
		}
	}
}
