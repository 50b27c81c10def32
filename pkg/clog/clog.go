// Package clog carries swapd's logging setup on top of apex/log: a
// swappable single-line handler plus helpers for per-subsystem log entries.
package clog

import (
	"os"

	"github.com/apex/log"
)

var defaultHandler = NewHandler(os.Stdout)

// Init installs the swapd log handler as the apex/log default. Level is a
// string ("debug", "info", ...); unknown levels leave the level unchanged.
func Init(level string) {
	log.SetHandler(defaultHandler)
	_ = SetLevelFromString(level)
}

func DefaultHandler() *Handler {
	return defaultHandler
}

func SetLevelFromString(s string) error {
	level, err := log.ParseLevel(s)
	if err != nil {
		return err
	}

	log.SetLevel(level)

	return nil
}

// ForTransfer returns a log entry carrying the identifying fields every
// transfer-related message should have.
func ForTransfer(uuid, username, filename string) *log.Entry {
	return log.WithFields(log.Fields{
		"transfer": uuid,
		"username": username,
		"filename": filename,
	})
}
