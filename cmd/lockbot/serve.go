package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/salini0110200/lockbot/internal/bridge"
	"github.com/salini0110200/lockbot/internal/configstore"
	"github.com/salini0110200/lockbot/internal/conversation"
	"github.com/salini0110200/lockbot/internal/dashboard"
	"github.com/salini0110200/lockbot/internal/engine"
	"github.com/salini0110200/lockbot/internal/loghub"
	"github.com/salini0110200/lockbot/internal/logutil"
	"github.com/salini0110200/lockbot/internal/metrics"
	"github.com/salini0110200/lockbot/internal/policy"
	"github.com/salini0110200/lockbot/internal/replies"
	"github.com/salini0110200/lockbot/internal/statepaths"
	"github.com/salini0110200/lockbot/internal/supervisor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard and, once credentials exist, the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			hub := loghub.New(loghub.DefaultBacklog)
			logger, err := logutil.LoggerFromViper(hub)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := openConfigStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			policyStore := policy.NewStore(policy.Options{
				Persister: store,
				Logger:    logger.With("component", "policy"),
				Metrics:   m,
			})
			seedPolicy(ctx, logger, store, policyStore)

			set, err := repliesFromViper()
			if err != nil {
				return err
			}
			eng, err := engine.New(engine.Options{
				Store:        policyStore,
				Conversation: conversation.New(viper.GetDuration("engine.debounce_window")),
				Replies:      &set,
				Logger:       logger.With("component", "engine"),
				Metrics:      m,
				NicknamePace: viper.GetDuration("engine.nickname_pace"),
			})
			if err != nil {
				return err
			}

			client, err := bridgeFromViper(logger)
			if err != nil {
				return err
			}
			sup, err := supervisor.New(supervisor.Options{
				Client:          client,
				Store:           policyStore,
				Handler:         eng,
				Logger:          logger.With("component", "supervisor"),
				Metrics:         m,
				LoginRetryDelay: viper.GetDuration("supervisor.login_retry_delay"),
				ReconnectDelay:  viper.GetDuration("supervisor.reconnect_delay"),
				SettleDelay:     viper.GetDuration("supervisor.settle_delay"),
				RestorePace:     viper.GetDuration("supervisor.restore_pace"),
				FlushInterval:   viper.GetDuration("supervisor.flush_interval"),
				BaseContext:     ctx,
			})
			if err != nil {
				return err
			}

			dash := dashboard.New(dashboard.Options{
				Store:     policyStore,
				Bot:       sup,
				Hub:       hub,
				Gatherer:  reg,
				Logger:    logger.With("component", "dashboard"),
				AuthToken: viper.GetString("server.auth_token"),
			})
			addr := strings.TrimSpace(viper.GetString("server.listen"))
			srv := &http.Server{
				Addr:              addr,
				Handler:           dash.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			if policyStore.Snapshot().HasCredentials() {
				logger.Info("saved_credentials_found")
				sup.Start(ctx)
			} else {
				logger.Info("no_credentials", "hint", "configure via dashboard")
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("server_start", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("dashboard server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				shutdown(shutdownCtx, logger, srv, sup, policyStore)
				return nil
			})
			return g.Wait()
		},
	}

	cmd.Flags().String("listen", ":20018", "Dashboard listen address.")
	cmd.Flags().String("bridge-url", "", "Websocket URL of the session bridge.")
	cmd.Flags().String("replies-file", "", "YAML file overriding the canned replies.")
	_ = viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("bridge.url", cmd.Flags().Lookup("bridge-url"))
	_ = viper.BindPFlag("replies.file", cmd.Flags().Lookup("replies-file"))

	return cmd
}

type stopper interface {
	Stop()
}

type flusher interface {
	Flush(ctx context.Context) error
}

// shutdown stops serving, releases the chat session and writes the final
// policy snapshot, in that order, so no event can mutate state after the flush.
func shutdown(ctx context.Context, logger *slog.Logger, srv *http.Server, bot stopper, state flusher) {
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("server_shutdown_error", "error", err.Error())
		}
	}
	bot.Stop()
	if err := state.Flush(ctx); err != nil {
		logger.Error("final_flush_failed", "error", err.Error())
	}
	logger.Info("shutdown_complete")
}

func openConfigStore(ctx context.Context) (configstore.Store, error) {
	return configstore.Open(ctx, configstore.Options{
		Backend:  viper.GetString("storage.backend"),
		FilePath: statepaths.ConfigFile(),
		RedisURL: viper.GetString("storage.redis_url"),
		RedisKey: viper.GetString("storage.redis_key"),
	})
}

// seedPolicy loads the persisted configuration into the policy store. A
// missing or unreadable snapshot leaves the defaults in place.
func seedPolicy(ctx context.Context, logger *slog.Logger, store configstore.Store, ps *policy.Store) {
	cfg, ok, err := store.Load(ctx)
	if err != nil {
		logger.Error("config_load_error", "error", err.Error())
	}
	if !ok {
		logger.Info("no_saved_config")
	}
	if strings.TrimSpace(cfg.BotNickname) == "" {
		cfg.BotNickname = viper.GetString("bot.nickname")
	}
	if strings.TrimSpace(cfg.Prefix) == "" {
		cfg.Prefix = viper.GetString("bot.prefix")
	}
	ps.Restore(cfg)
	logger.Info("config_loaded",
		"prefix", ps.Prefix(),
		"bot_nickname", ps.BotNickname(),
		"admin_configured", ps.AdminID() != "",
	)
}

func repliesFromViper() (replies.Set, error) {
	path := strings.TrimSpace(viper.GetString("replies.file"))
	if path == "" {
		return replies.Default(), nil
	}
	return replies.Load(path)
}

func bridgeFromViper(logger *slog.Logger) (*bridge.Client, error) {
	var header map[string]string
	if tok := strings.TrimSpace(viper.GetString("bridge.auth_token")); tok != "" {
		header = map[string]string{"Authorization": "Bearer " + tok}
	}
	return bridge.New(bridge.Options{
		URL:         viper.GetString("bridge.url"),
		Header:      header,
		CallTimeout: viper.GetDuration("bridge.call_timeout"),
		Logger:      logger.With("component", "bridge"),
	})
}
