package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/pinguard/internal/api"
	"github.com/dgnsrekt/pinguard/internal/browser"
	"github.com/dgnsrekt/pinguard/internal/browserhost"
	"github.com/dgnsrekt/pinguard/internal/config"
	"github.com/dgnsrekt/pinguard/internal/controller"
	"github.com/dgnsrekt/pinguard/internal/guard"
	"github.com/dgnsrekt/pinguard/internal/netutil"
	"github.com/dgnsrekt/pinguard/internal/settings"
	"github.com/dgnsrekt/pinguard/internal/storage"
	"github.com/dgnsrekt/pinguard/internal/store"
	"github.com/dgnsrekt/pinguard/internal/stream"
)

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		return err
	}

	slog.Info("pinguard config loaded",
		"cdp_url", cfg.CDPURL(),
		"bind_addr", cfg.BindAddr,
		"port_candidates", cfg.PortCandidates,
		"state_file", cfg.StateFile,
		"audit_dir", cfg.AuditDir,
		"rules_file", cfg.RulesFile,
		"domain_match", cfg.DomainMatch,
		"launch_browser", cfg.LaunchBrowser,
		"log_level", cfg.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress:  cfg.CDPAddress,
			CDPPort:     cfg.CDPPort,
			BrowserPath: cfg.BrowserPath,
			ProfileDir:  cfg.ProfileDir,
			StartURL:    cfg.StartURL,
		})
		if err := launcher.Launch(ctx); err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		defer launcher.Stop()
	}

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	autopin, err := browserhost.NewAutoPin(rules.AutoPin)
	if err != nil {
		return err
	}

	st, err := store.OpenFile(cfg.StateFile)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}

	broker := stream.NewBroker()

	facadeOpts := []settings.Option{settings.WithPublisher(broker)}
	if cfg.AuditDir != "" {
		audit := storage.NewJSONLWriter(cfg.AuditDir, "debug", cfg.AuditBufferSize, cfg.AuditMaxSizeMB)
		defer func() {
			if err := audit.Close(); err != nil {
				slog.Warn("audit mirror close failed", "error", err)
			}
		}()
		facadeOpts = append(facadeOpts, settings.WithMirror(audit))
	}
	facade, err := settings.NewFacade(ctx, st, facadeOpts...)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	defer facade.Close()

	matcher, ok := guard.MatcherByName(cfg.DomainMatch)
	if !ok {
		return fmt.Errorf("unknown domain matcher %q", cfg.DomainMatch)
	}

	host := browserhost.New(cfg.CDPURL(), browserhost.WithAutoPin(autopin))
	if err := host.Connect(ctx); err != nil {
		return fmt.Errorf("connect to browser at %s: %w", cfg.CDPURL(), err)
	}
	defer host.Close()

	session := guard.NewSession(host, st, facade,
		guard.WithDebugSink(facade),
		guard.WithPublisher(broker),
		guard.WithDomainMatcher(matcher),
	)
	if err := host.Listen(ctx, session); err != nil {
		return fmt.Errorf("listen for browser events: %w", err)
	}
	if err := session.Start(ctx); err != nil {
		slog.Warn("initial registry build failed", "error", err)
	}
	slog.Info("guard session started",
		"session_id", session.ID(),
		"pinned", len(session.Entries()),
		"autopin_rules", autopin.Len(),
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		return fmt.Errorf("select bind address: %w", err)
	}

	svc := controller.NewService(host, session, facade, broker)
	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(svc, broker)}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("pinguard listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("api shutdown failed", "error", err)
	}
	return nil
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
