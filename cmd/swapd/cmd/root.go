package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/labstack/echo/v4"
	"github.com/peershare/swapd/pkg/clog"
	"github.com/peershare/swapd/pkg/config"
	"github.com/peershare/swapd/pkg/shares"
	"github.com/peershare/swapd/pkg/swapd/wserv"
	"github.com/peershare/swapd/pkg/swapdb"
	"github.com/peershare/swapd/pkg/swapdb/stor"
	"github.com/peershare/swapd/pkg/transfers/uploads"
	"github.com/peershare/swapd/pkg/users"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "swapd",
	Short: "Peer file-sharing upload daemon",
	Long:  `swapd serves shared files to remote peers, governing upload slots and bandwidth per user group.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		c := config.MustLoadFromSwapdDotenv()
		if err := Run(ctx, args, c); err != nil {
			log.Fatalf("swapd: %s", err)
		}
	},
}

func Run(ctx context.Context, args []string, c config.Configer) error {
	clog.Init(c.GetKeyWithDefault("SWAPD_LOG_LEVEL", "info"))

	sharesDir := c.MustGetKey("SWAPD_SHARES_DIR")
	log.Infof("Shares dir: %s", sharesDir)

	db := swapdb.MustConnectToDB(c)
	stors := stor.NewGormStors(db)

	userService := users.NewService(c)
	resolver := shares.NewDirResolver(sharesDir)
	hub := wserv.NewHub()

	queue := uploads.NewUploadQueue(uploads.QueueConfig{
		MaxGlobalSlots:  c.GetIntKeyWithDefault("SWAPD_SLOTS", 10),
		MaxSlotsPerUser: c.GetIntKeyWithDefault("SWAPD_SLOTS_PER_USER", 1),
	}, userService)

	governor := uploads.NewUploadGovernor(c.GetInt64KeyWithDefault("SWAPD_SPEED_LIMIT", 0), userService)

	uploadService := uploads.NewUploadService(queue, governor, userService, resolver, hub, stors.TransferStor, hub)
	hub.SetUploadService(uploadService)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupRoutes(RouteDependencies{
		e:       e,
		uploads: uploadService,
		hub:     hub,
	})

	addr := c.GetKeyWithDefault("SWAPD_ADDR", "localhost:5030")

	go func() {
		log.Infof("Listening on %s", addr)
		if err := e.Start(addr); err != nil {
			log.Fatalf("Unable to start web server: %s", err)
		}
	}()

	waitForSignal()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return e.Shutdown(shutdownCtx)
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	sig := <-c
	log.Infof("Got %s signal, shutting down...", sig)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
