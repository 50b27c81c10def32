package cmd

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/peershare/swapd/pkg/swapd/webapi"
	"github.com/peershare/swapd/pkg/swapd/wserv"
	"github.com/peershare/swapd/pkg/transfers/uploads"
)

type RouteDependencies struct {
	e       *echo.Echo
	uploads *uploads.UploadService
	hub     *wserv.Hub
}

func setupRoutes(deps RouteDependencies) {
	deps.e.Use(middleware.Recover())

	g := deps.e.Group("/api")

	logController := webapi.NewLogController()
	g.POST("/set-logging", logController.SetLogging)
	g.GET("/show-logging", logController.ShowCurrentLogging)

	transfersController := webapi.NewTransfersController(deps.uploads)
	g.GET("/transfers", transfersController.IndexTransfers)
	g.GET("/transfers/:id", transfersController.GetTransfer)
	g.POST("/transfers", transfersController.EnqueueTransfer)
	g.POST("/transfers/:id/cancel", transfersController.CancelTransfer)
	g.DELETE("/transfers/:id", transfersController.RemoveTransfer)
	g.GET("/scheduler/status", transfersController.GetSchedulerStatus)

	deps.e.GET("/ws/peer", deps.hub.ServePeer)
	deps.e.GET("/ws/events", deps.hub.ServeEvents)
}
