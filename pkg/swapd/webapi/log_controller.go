package webapi

import (
	"net/http"
	"os"
	"sync"

	"github.com/apex/log"
	"github.com/labstack/echo/v4"
	"github.com/peershare/swapd/pkg/clog"
	"github.com/pkg/errors"
)

type LogController struct {
	mu              sync.Mutex
	CurrentLogLevel log.Level `json:"current_log_level"`
	CurrentLogFile  string    `json:"current_log_file"`
}

func NewLogController() *LogController {
	return &LogController{
		CurrentLogLevel: log.InfoLevel,
		CurrentLogFile:  "stdout",
	}
}

func (c *LogController) SetLogging(ctx echo.Context) error {
	var req struct {
		LogLevel  string `json:"log_level"`
		LogOutput string `json:"log_output"`
	}

	if err := ctx.Bind(&req); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if req.LogLevel != "" {
		if err := c.setLoggingLevel(req.LogLevel); err != nil {
			return err
		}
	}

	if req.LogOutput != "" {
		if err := c.setLoggingOutput(req.LogOutput); err != nil {
			return err
		}
	}

	return ctx.JSON(http.StatusOK, c)
}

func (c *LogController) ShowCurrentLogging(ctx echo.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return ctx.JSON(http.StatusOK, c)
}

func (c *LogController) setLoggingLevel(logLevel string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %s", logLevel)
	}

	c.CurrentLogLevel = level
	log.SetLevel(level)

	return nil
}

func (c *LogController) setLoggingOutput(logOutput string) error {
	switch logOutput {
	case "stdout":
		clog.DefaultHandler().SetOutput(os.Stdout)
	case "stderr":
		clog.DefaultHandler().SetOutput(os.Stderr)
	default:
		f, err := os.Create(logOutput)
		if err != nil {
			return errors.Wrapf(err, "failed to open log output %s", logOutput)
		}
		clog.DefaultHandler().SetOutput(f)
	}

	c.CurrentLogFile = logOutput

	return nil
}
