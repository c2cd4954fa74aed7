package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clhorde/clhorde/internal/config"
	"github.com/clhorde/clhorde/internal/debughttp"
	"github.com/clhorde/clhorde/internal/ipcserver"
	"github.com/clhorde/clhorde/internal/notify"
	"github.com/clhorde/clhorde/internal/orchestrator"
	"github.com/clhorde/clhorde/internal/promptstore"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the daemon in the foreground",
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(os.Stderr, "clhorded: ", log.LstdFlags)

	store := promptstore.New(cfg.PromptsDir, cfg.RetentionCap)
	notifier := buildNotifier(cfg, logger)

	orch := orchestrator.New(*cfg, store, notifier, logger)
	if err := orch.LoadStore(); err != nil {
		return fmt.Errorf("loading prompt store: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Println("shutting down...")
		cancel()
	}()

	go orch.Run(ctx)
	go func() {
		<-orch.Done()
		cancel()
	}()

	var debugSrv *debughttp.Server
	if cfg.HealthAddr != "" {
		debugSrv = debughttp.New(cfg.HealthAddr, orch, logger)
		go func() {
			if err := debugSrv.ListenAndServe(); err != nil {
				logger.Printf("debug http server: %v", err)
			}
		}()
	}

	srv := ipcserver.New(orch, cfg.SocketPath, cfg.PIDPath, logger)
	logger.Printf("listening on %s", cfg.SocketPath)
	err = srv.Run(ctx)

	if debugSrv != nil {
		_ = debugSrv.Shutdown(context.Background())
	}
	orch.Shutdown()
	return err
}

func buildNotifier(cfg *config.Config, logger *log.Logger) *notify.Notifier {
	var githubToken, githubRepo, slackToken, slackChannel string
	if cfg.GitHubEnabled() {
		githubToken, githubRepo = cfg.GitHubToken, cfg.GitHubRepo
	}
	if cfg.SlackEnabled() {
		slackToken, slackChannel = cfg.SlackBotToken, cfg.SlackChannel
	}
	return notify.New(githubToken, githubRepo, slackToken, slackChannel, logger)
}
