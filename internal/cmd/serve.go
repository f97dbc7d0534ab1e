package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/moshesimon/OpenWork-sub000/internal/config"
	"github.com/moshesimon/OpenWork-sub000/internal/llm"
	"github.com/moshesimon/OpenWork-sub000/internal/secrets"
	"github.com/moshesimon/OpenWork-sub000/internal/server"
	"github.com/moshesimon/OpenWork-sub000/internal/store"
	"github.com/moshesimon/OpenWork-sub000/internal/trigger"
	"github.com/moshesimon/OpenWork-sub000/internal/turn"
)

var serveCron string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the OpenWork API server and bootstrap scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveCron, "bootstrap-cron", trigger.DefaultCron, "cron expression for the bootstrap refresh scan")
	rootCmd.AddCommand(serveCmd)
}

// buildRunner wires the provider stack and turn runner over an open store.
// With no OpenAI key the deterministic provider runs alone, which keeps the
// orchestrator usable (and testable) fully offline.
func buildRunner(cfg *config.Config, st *store.Store) *turn.Runner {
	deterministic := llm.NewDeterministicProvider()

	apiKey := resolveAPIKey(cfg, "runner")
	var primary llm.Provider = deterministic
	var fallback llm.Provider
	if apiKey != "" {
		if cfg.OpenAIBaseURL != "" {
			primary = llm.NewOpenAIProviderWithBaseURL(apiKey, cfg.OpenAIBaseURL)
		} else {
			primary = llm.NewOpenAIProvider(apiKey)
		}
		fallback = deterministic
	} else {
		log.Warn().Msg("openai_api_key not set, using deterministic provider only")
	}

	adapter := llm.NewAdapter(primary, fallback, cfg.OpenAIModel, cfg.MaxToolSteps)
	return turn.NewRunner(turn.RunnerConfig{
		Store:      st,
		Adapter:    adapter,
		TurnBudget: cfg.TurnBudget,
	})
}

// resolveAPIKey prefers the directly configured key, then falls back to the
// credentials vault when a vault key is configured.
func resolveAPIKey(cfg *config.Config, caller string) string {
	if cfg.OpenAIAPIKey != "" {
		return cfg.OpenAIAPIKey
	}
	if cfg.VaultKey == "" {
		return ""
	}
	vault, err := secrets.Open(cfg.CredentialsDBPath(), cfg.VaultKey)
	if err != nil {
		log.Warn().Err(err).Msg("vault_open_failed")
		return ""
	}
	defer vault.Close()
	cred, err := vault.Get(context.Background(), secrets.KeyOpenAIAPIKey, caller)
	if err != nil {
		if !errors.Is(err, secrets.ErrNotFound) {
			log.Warn().Err(err).Msg("vault_read_failed")
		}
		return ""
	}
	return cred.Value
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	st, err := store.Open(cfg.WorkspaceDBPath())
	if err != nil {
		return fmt.Errorf("opening workspace store: %w", err)
	}
	defer st.Close()

	runner := buildRunner(cfg, st)

	staleFor := time.Duration(cfg.BootstrapStaleMS) * time.Millisecond
	scheduler := trigger.NewScheduler(runner, st, staleFor)
	if err := scheduler.Register(serveCron); err != nil {
		return fmt.Errorf("registering bootstrap schedule: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	limiter := server.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	srv := server.NewServer(runner, st, limiter)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", cfg.ListenAddr).
		Int("cron_entries", scheduler.Entries()).
		Dur("turn_budget", cfg.TurnBudget).
		Msg("openwork_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
