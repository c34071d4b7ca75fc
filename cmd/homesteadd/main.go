// Command homesteadd is the composition root: it wires storage, every
// store, the scheduler, the model dispatcher, the turn queue, the
// outbox drainer, and the channel drivers into one running process,
// following the teacher pack's cobra-driven main (grounded on
// 88lin-divinesense's cmd/divinesense/main.go).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nicdavidson/homestead/pkg/agentregistry"
	"github.com/nicdavidson/homestead/pkg/allowlist"
	"github.com/nicdavidson/homestead/pkg/channel"
	"github.com/nicdavidson/homestead/pkg/config"
	"github.com/nicdavidson/homestead/pkg/dispatch"
	"github.com/nicdavidson/homestead/pkg/eventlog"
	"github.com/nicdavidson/homestead/pkg/logging"
	"github.com/nicdavidson/homestead/pkg/modeltags"
	"github.com/nicdavidson/homestead/pkg/outbox"
	"github.com/nicdavidson/homestead/pkg/scheduler"
	"github.com/nicdavidson/homestead/pkg/session"
	"github.com/nicdavidson/homestead/pkg/storage"
	"github.com/nicdavidson/homestead/pkg/turnqueue"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "homesteadd",
	Short: "Homestead: a personal AI-infrastructure platform with a Telegram and web interface.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML configuration file")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := storage.Open(ctx, cfg.DatabasePath, logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty}))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	events := eventlog.NewStore(db)
	logger := logging.New(logging.Config{
		Level:    cfg.LogLevel,
		Pretty:   cfg.LogPretty,
		FilePath: cfg.LogFilePath,
	}, eventlog.NewHook(events))

	sessions := session.NewStore(db)
	jobs := scheduler.NewStore(db)
	allowed := allowlist.New(cfg.AllowedChatIDs)
	outboxStore := outbox.NewStore(db, allowed)

	registry, err := agentregistry.Load(cfg.AgentRoot)
	if err != nil {
		return fmt.Errorf("load agent registry: %w", err)
	}

	tags, err := cfg.ModelTagRegistry()
	if err != nil {
		return fmt.Errorf("build model tag registry: %w", err)
	}

	backends := map[modeltags.BackendKind]dispatch.Backend{
		modeltags.BackendSubprocess: &dispatch.SubprocessBackend{
			Binary:   cfg.SubprocessBinary,
			BaseArgs: cfg.SubprocessArgs,
			Log:      logging.WithSource(logger, "homestead.dispatch.subprocess"),
		},
		modeltags.BackendHTTP: dispatch.NewHTTPBackend(cfg.HTTPBaseURL, cfg.HTTPAPIKey, "", cfg.HTTPSystemPrompt),
	}
	dispatcher := dispatch.NewDispatcher(tags, backends).WithTimeout(cfg.TurnTimeout())

	schedulerSvc := scheduler.NewService(jobs, outboxStore, logging.WithSource(logger, "homestead.scheduler"), events)

	coordinator := channel.NewCoordinator(sessions, dispatcher, events, logging.WithSource(logger, "homestead.channel"),
		cfg.TurnTimeout(), cfg.SessionInactivityWindow(), cfg.DefaultModelTag)
	queue := turnqueue.NewManager(cfg.TurnQueueCapacity, coordinator.Process, logging.WithSource(logger, "homestead.turnqueue"))

	var tg *channel.Telegram
	if cfg.TelegramToken != "" {
		tg, err = channel.NewTelegram(cfg.TelegramToken, allowed, coordinator, queue, tags, cfg.DefaultModelTag, logging.WithSource(logger, "homestead.channel.telegram"))
		if err != nil {
			return fmt.Errorf("init telegram channel: %w", err)
		}
	}

	var drainer *outbox.Drainer
	if tg != nil {
		drainer = outbox.NewDrainer(outboxStore, registry, tg, logging.WithSource(logger, "homestead.outbox"))
	}

	ws := channel.NewWebSocket(allowed, queue, logging.WithSource(logger, "homestead.channel.websocket"))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return schedulerSvc.Run(groupCtx) })
	if tg != nil {
		group.Go(func() error { return tg.Run(groupCtx) })
	}
	if drainer != nil {
		group.Go(func() error { return drainer.Run(groupCtx) })
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", ws.Handler())
	httpServer := &http.Server{Addr: ":8765", Handler: mux}
	group.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	logger.Info().Msg("homestead: started")
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
