package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kaspanet/netnode/infrastructure/config"
	"github.com/kaspanet/netnode/infrastructure/logger"
	"github.com/kaspanet/netnode/infrastructure/os/signal"
	"github.com/kaspanet/netnode/util/panics"
	"github.com/kaspanet/netnode/util/profiling"
	"github.com/kaspanet/netnode/version"
)

const shutdownTimeout = 2 * time.Minute

type netnodeApp struct {
	cfg *config.Config
}

// StartApp starts the netnode app, and blocks until it finishes running
func StartApp() error {
	// Load configuration and parse command line. This function also
	// initializes logging and configures it accordingly.
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	if cfg.DebugLevel == "show" {
		// Don't use logger here since the logging subsystems are not yet configured
		fmt.Println("Supported subsystems", logger.SupportedSubsystems())
		os.Exit(0)
	}

	logger.InitLog(filepath.Join(cfg.LogDir, config.DefaultLogFilename),
		filepath.Join(cfg.LogDir, config.DefaultErrLogFilename))
	defer logger.BackendLog.Close()

	err = logger.ParseAndSetLogLevels(cfg.DebugLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	defer panics.HandlePanic(log, "MAIN", nil)

	app := &netnodeApp{cfg: cfg}
	return app.main(nil)
}

func (app *netnodeApp) main(startedChan chan<- struct{}) error {
	// Get a channel that will be closed when a shutdown signal has been
	// triggered from an OS signal such as SIGINT (Ctrl+C).
	interrupt := signal.InterruptListener()
	defer log.Info("Shutdown complete")

	// Show version at startup.
	log.Infof("Version %s", version.Version())
	if len(app.cfg.ConnectPeerAddresses) > 0 {
		peers := make([]string, len(app.cfg.ConnectPeerAddresses))
		for i, peerAddress := range app.cfg.ConnectPeerAddresses {
			peers[i] = peerAddress.String()
		}
		log.Infof("Pinging peers %s", strings.Join(peers, ", "))
	}

	// Enable http profiling server if requested.
	if app.cfg.Profile != "" {
		profilingServer := profiling.Start(app.cfg.Profile, log)
		defer profilingServer.Close()
	}

	componentManager, err := NewComponentManager(app.cfg)
	if err != nil {
		log.Errorf("Unable to start netnode: %+v", err)
		return err
	}

	defer func() {
		log.Infof("Gracefully shutting down netnode...")

		shutdownDone := make(chan struct{})
		spawn("netnodeApp.main-Stop", func() {
			componentManager.Stop()
			close(shutdownDone)
		})

		select {
		case <-shutdownDone:
		case <-time.After(shutdownTimeout):
			log.Criticalf("Graceful shutdown timed out %s. Terminating...", shutdownTimeout)
		}
		log.Infof("Netnode shutdown complete")
	}()

	componentManager.Start()

	if startedChan != nil {
		startedChan <- struct{}{}
	}

	// Wait until the interrupt signal is received from an OS signal or
	// shutdown is requested through one of the subsystems.
	<-interrupt
	return nil
}
