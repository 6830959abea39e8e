package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wall-e-bot/mergebot/internal/clock"
	"github.com/wall-e-bot/mergebot/internal/config"
	"github.com/wall-e-bot/mergebot/internal/dispatch"
	"github.com/wall-e-bot/mergebot/internal/eventslog"
	"github.com/wall-e-bot/mergebot/internal/eventsource"
	"github.com/wall-e-bot/mergebot/internal/hostclient"
)

const dispatchShutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook listener and merge-queue dispatcher",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg.LogLevel)
	// runID correlates every log line and activity-log entry emitted by this
	// process invocation, the way the teacher's prime_session flow stamps a
	// session with uuid.New().String() when no caller-supplied ID exists.
	runID := uuid.New().String()
	log = log.WithField("run_id", runID)

	token, err := cfg.Token()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := hostclient.NewGitHubClient(ctx, cfg.Owner, cfg.Repo, token, log)
	activity := eventslog.New(os.Stdout)
	streams := eventsource.NewStreams()

	d := dispatch.New(dispatch.Config{
		IntegrationLabel:             cfg.IntegrationLabel,
		TopPriorityLabels:            cfg.TopPriorityLabels,
		RequiresAllStatusChecks:      cfg.RequiresAllStatusChecks,
		StatusChecksTimeout:          cfg.StatusChecksTimeout.Duration,
		IdleMergeServiceCleanupDelay: cfg.IdleMergeServiceCleanupDelay.Duration,
		BotUser:                      cfg.BotUser,
		BootstrapConcurrency:         cfg.BootstrapConcurrency,
	}, client, clock.Real{}, log, activity, streams)

	if err := d.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	go d.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", webhookHandler(streams, []byte(cfg.WebhookSecret()), log))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), dispatchShutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", cfg.ListenAddr).Info("mergebot listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func webhookHandler(streams *eventsource.Streams, secret []byte, log *logrus.Entry) http.HandlerFunc {
	translator := eventsource.NewWebhookTranslator(streams)
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := github.ValidatePayload(r, secret)
		if err != nil {
			log.WithError(err).Warn("rejected webhook delivery")
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
		eventType := github.WebHookType(r)
		if err := translator.Handle(eventType, payload); err != nil {
			log.WithError(err).WithField("event", eventType).Warn("failed to translate webhook delivery")
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func newLogger(level string) *logrus.Entry {
	l := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.JSONFormatter{})
	return logrus.NewEntry(l)
}
