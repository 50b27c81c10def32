package webapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/peershare/swapd/pkg/shares"
	"github.com/peershare/swapd/pkg/swapdb/stor"
	"github.com/peershare/swapd/pkg/transfers/uploads"
	"github.com/pkg/errors"
)

type TransfersController struct {
	uploads *uploads.UploadService
}

func NewTransfersController(uploadService *uploads.UploadService) *TransfersController {
	return &TransfersController{uploads: uploadService}
}

func (c *TransfersController) IndexTransfers(ctx echo.Context) error {
	q := stor.TransferQuery{
		Username:       ctx.QueryParam("username"),
		IncludeRemoved: ctx.QueryParam("include_removed") == "true",
	}

	list, err := c.uploads.List(q)
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, list)
}

func (c *TransfersController) GetTransfer(ctx echo.Context) error {
	transfer, err := c.uploads.Get(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, stor.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "no such transfer")
		}
		return err
	}

	return ctx.JSON(http.StatusOK, transfer)
}

// EnqueueTransfer lets the local UI request an upload on a peer's behalf,
// for retrying a failed transfer.
func (c *TransfersController) EnqueueTransfer(ctx echo.Context) error {
	var req struct {
		Username string `json:"username"`
		Filename string `json:"filename"`
	}

	if err := ctx.Bind(&req); err != nil {
		return err
	}

	if req.Username == "" || req.Filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and filename are required")
	}

	if err := c.uploads.Enqueue(req.Username, req.Filename); err != nil {
		if errors.Is(err, shares.ErrNotShared) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return err
	}

	return ctx.NoContent(http.StatusAccepted)
}

func (c *TransfersController) CancelTransfer(ctx echo.Context) error {
	cancelled := c.uploads.TryCancel(ctx.Param("id"))

	return ctx.JSON(http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (c *TransfersController) RemoveTransfer(ctx echo.Context) error {
	err := c.uploads.Remove(ctx.Param("id"))
	switch {
	case err == nil:
		return ctx.NoContent(http.StatusNoContent)
	case errors.Is(err, stor.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "no such transfer")
	case errors.Is(err, uploads.ErrNotCompleted):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return err
	}
}

// GetSchedulerStatus reports the queue and governor snapshots.
func (c *TransfersController) GetSchedulerStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"queue":    c.uploads.Queue.Status(),
		"governor": c.uploads.Governor.Status(),
	})
}
