package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	_ "github.com/joho/godotenv/autoload"

	"pathlet/internal/chat"
	"pathlet/internal/config"
	"pathlet/internal/identity"
	"pathlet/internal/insights"
	"pathlet/internal/logger"
	"pathlet/internal/session"
	"pathlet/internal/store"
	"pathlet/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pathlet:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.ValidateEnv(config.RequiredClientVars); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// The screen belongs to bubbletea, so logs go to a file.
	logFile, err := openLog()
	if err != nil {
		return err
	}
	defer logFile.Close()
	log := logger.NewWithWriter(logFile, "pathlet")
	logger.SetDefault(log)

	// With Redis the session survives restarts and can be shared with the server;
	// otherwise it lives as long as the process.
	var sessions store.Store = store.NewMemoryStore()
	if cfg.RedisAddr != "" {
		sessions = store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	}
	defer store.Close(sessions)

	client := identity.NewClient(identity.Options{
		URL:           cfg.AuthURL,
		AnonKey:       cfg.AuthAnonKey,
		RedirectURL:   cfg.AuthRedirectURL,
		Store:         sessions,
		StorageKey:    config.GetEnvOrDefault("PATHLET_PROFILE", "terminal"),
		RefreshMargin: cfg.RefreshMargin,
		Logger:        log.With("component", "identity"),
	})

	refresher := identity.NewRefresher(cfg.RefreshInterval, log.With("component", "refresher"))
	refresher.Track(client)
	if err := refresher.Start(); err != nil {
		return err
	}
	defer refresher.Stop()

	notifier := tui.NewNotifier()
	guard := session.New(client,
		session.WithLogger(log.With("component", "session")),
		session.WithListener(notifier.Listen),
	)
	guard.Initialize(context.Background())
	defer guard.Teardown()

	model := tui.NewModel(tui.Deps{
		Guard:     guard,
		Notifier:  notifier,
		Identity:  client,
		Generator: insights.NewStaticGenerator(),
		Inferer:   chat.NewInferenceClient(cfg.InferenceURL, cfg.InferenceModel, cfg.InferenceAPIKey),
		Logger:    log,
	})

	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("terminal client failed: %w", err)
	}
	log.Info("Terminal client closed", "screen", model.Screen())
	return nil
}

func openLog() (io.WriteCloser, error) {
	path := os.Getenv("PATHLET_LOG_FILE")
	if path == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "pathlet", "pathlet.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
