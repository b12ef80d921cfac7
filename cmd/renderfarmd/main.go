// Command renderfarmd runs the render-farm coordinator: the protocol
// listener workers and clients speak to, plus a side-channel admin HTTP
// surface. The command surface is a cobra root command with a single
// long-running "server" subcommand.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"renderfarm/adminhttp"
	"renderfarm/config"
	"renderfarm/credentials"
	"renderfarm/dispatcher"
	"renderfarm/eventlog"
	"renderfarm/jobstore"
	"renderfarm/logger"
	"renderfarm/mirror"
	"renderfarm/mirrorqueue"
	"renderfarm/registry"
	"renderfarm/scheduler"
	"renderfarm/tcpserver"
)

var (
	bindAddr      string
	adminBindAddr string
	dataDir       string
	logFile       string
)

var cmdRoot = &cobra.Command{
	Use:   "renderfarmd",
	Short: "Distributed render farm coordinator",
	Long: `renderfarmd coordinates a pool of render workers: it hands out
frame batches, accepts completed renders, and tracks every job's
progress in a filesystem-backed job store.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

var cmdServer = &cobra.Command{
	Use:   "server",
	Short: "Run the coordinator's protocol and admin listeners",
	RunE:  runServer,
}

func init() {
	cmdServer.Flags().StringVar(&bindAddr, "bind", config.Bind(), "address the render protocol listens on")
	cmdServer.Flags().StringVar(&adminBindAddr, "admin-bind", config.AdminBind(), "address the admin HTTP surface listens on")
	cmdServer.Flags().StringVar(&dataDir, "data-dir", config.DataDir(), "root directory for job, credential, and queue storage")
	cmdServer.Flags().StringVar(&logFile, "log-file", config.LogFile(), "path to append log output to, in addition to the console (empty disables the file sink)")
	cmdRoot.AddCommand(cmdServer)
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := logger.Init(logFile, true); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Close()

	logger.Infof("renderfarmd: starting, data dir %s", dataDir)

	store, err := jobstore.New(dataDir + "/jobs")
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}

	credStore, err := credentials.Open(dataDir + "/credentials.db")
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer credStore.Close()

	events, err := eventlog.Open(dataDir + "/events.db")
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer events.Close()

	backends := mirror.NewRegistry(dataDir + "/mirror-direct")
	mirrorQ, err := mirrorqueue.Open(dataDir+"/mirrorqueue.db", store, credStore, backends)
	if err != nil {
		return fmt.Errorf("open mirror queue: %w", err)
	}
	defer mirrorQ.Close()

	sched := scheduler.New(store)
	workers := registry.New()
	disp := dispatcher.New(store, sched, workers, events, mirrorQ)

	srv := tcpserver.New(bindAddr, disp)

	mirrorCtx, stopMirror := context.WithCancel(context.Background())
	defer stopMirror()
	go mirrorQ.Run(mirrorCtx, config.MirrorWorkers())

	adminSrv := &http.Server{
		Addr:    adminBindAddr,
		Handler: adminhttp.NewHandler(store).Mux(),
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()
	go func() {
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("renderfarmd: admin server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("renderfarmd: received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			logger.Errorf("renderfarmd: protocol server stopped: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Errorf("renderfarmd: protocol server shutdown: %v", err)
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("renderfarmd: admin server shutdown: %v", err)
	}
	stopMirror()

	logger.Info("renderfarmd: shutdown complete")
	return nil
}
