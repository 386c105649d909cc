package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/gallery/badgerdb"
	"github.com/kozaktomas/face-gallery/internal/gallery/mariadb"
	"github.com/kozaktomas/face-gallery/internal/gallery/memory"
	"github.com/kozaktomas/face-gallery/internal/gallery/postgres"
	"github.com/kozaktomas/face-gallery/internal/logger"
	"github.com/kozaktomas/face-gallery/internal/matcher"
	"github.com/kozaktomas/face-gallery/internal/recognition"
)

// app holds the services shared by every command.
type app struct {
	cfg        *config.Config
	matcher    config.Matcher
	log        *zap.Logger
	gallery    *gallery.Gallery
	comparator *matcher.Comparator
}

// openApp loads the configuration, opens the configured storage backend and
// wires the gallery and comparator.
func openApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	m, err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(m.Debug() || mustGetBool(cmd, "debug"))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	backend, err := openBackend(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		matcher:    m,
		log:        log,
		gallery:    gallery.New(backend, m, gallery.WithLogger(log)),
		comparator: matcher.New(m, matcher.WithLogger(log)),
	}, nil
}

func openBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (gallery.Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendBadger:
		store, err := badgerdb.Open(badgerdb.Options{Dir: cfg.Storage.BadgerDir, Logger: log})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		log.Debug("using badger backend", zap.String("dir", cfg.Storage.BadgerDir))
		return store, nil
	case config.BackendPostgres:
		store, err := postgres.Open(ctx, cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL store: %w", err)
		}
		log.Debug("using PostgreSQL backend")
		return store, nil
	case config.BackendMariaDB:
		store, err := mariadb.Open(ctx, cfg.MariaDB.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open MariaDB store: %w", err)
		}
		log.Debug("using MariaDB backend")
		return store, nil
	default:
		log.Debug("using in-memory backend, enrollments are lost on exit")
		return memory.New(), nil
	}
}

// recognizer returns the image pipeline, or nil when no embedding server is configured.
func (a *app) recognizer(opts ...recognition.Option) *recognition.Recognizer {
	if a.cfg.Extractor.URL == "" {
		return nil
	}
	client := recognition.NewClient(a.cfg.Extractor.URL, a.cfg.Extractor.Timeout)
	opts = append([]recognition.Option{recognition.WithLogger(a.log)}, opts...)
	return recognition.NewRecognizer(client, client, a.gallery, a.comparator, a.matcher, opts...)
}

func (a *app) requireRecognizer(opts ...recognition.Option) (*recognition.Recognizer, error) {
	rec := a.recognizer(opts...)
	if rec == nil {
		return nil, errors.New("EMBEDDING_URL environment variable is required for images")
	}
	return rec, nil
}

func (a *app) Close() {
	if err := a.gallery.Close(); err != nil {
		fmt.Printf("Warning: failed to close gallery: %v\n", err)
	}
	_ = a.log.Sync()
}
