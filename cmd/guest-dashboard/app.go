package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"hotel-messaging/internal/blocklist"
	"hotel-messaging/internal/config"
	"hotel-messaging/internal/handler"
	"hotel-messaging/internal/messages"
	"hotel-messaging/internal/namemap"
	"hotel-messaging/internal/phoneindex"
	"hotel-messaging/internal/snapshot"
	"hotel-messaging/internal/storage"
	"hotel-messaging/internal/whatsapp"
)

// app holds everything one command invocation needs.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	kv       storage.KV
	local    *snapshot.FileSource
	blobs    *snapshot.BlobStore
	messages messages.Source
	whatsapp *whatsapp.Service
	dash     *handler.Dashboard
}

func newLogger(cfg *config.Config, verbose bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	var logger zerolog.Logger
	if cfg.LogFormat == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	kv, err := storage.Open(cfg.StoreBackend, cfg.DataDir, storage.WithLogger(log))
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, kv: kv, local: snapshot.NewFileSource(cfg.SnapshotPath)}

	names, err := namemap.Load(ctx, kv, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	index, err := phoneindex.Load(ctx, kv, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	block, err := blocklist.Load(ctx, kv, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.AzureEnabled() {
		bucket, err := snapshot.NewAzureBucket(cfg.AzureConnectionString)
		if err != nil {
			log.Warn().Err(err).Msg("Remote archive disabled")
		} else {
			a.blobs = snapshot.NewBlobStore(bucket, cfg.ArchiveContainer, cfg.MapsContainer, log)
		}
	}

	if err := a.openMessageSource(ctx); err != nil {
		a.Close()
		return nil, err
	}

	deps := handler.Deps{
		Local:     a.local,
		Blobs:     a.blobs,
		Messages:  a.messages,
		Names:     names,
		Index:     index,
		Blocklist: block,
	}
	if a.whatsapp != nil {
		deps.Sender = a.whatsapp
	}
	a.dash = handler.NewDashboard(deps, &handler.Config{
		ArchiveDirs:   cfg.ArchiveDirs,
		MessageLimit:  cfg.MessageLimit,
		ExcludedNames: cfg.ExcludedNames,
	}, log)
	return a, nil
}

func (a *app) openMessageSource(ctx context.Context) error {
	switch a.cfg.MessageSource {
	case "bird":
		if !a.cfg.BirdEnabled() {
			a.log.Warn().Msg("Bird credentials missing, continuing without messages")
			a.messages = messages.None{}
			return nil
		}
		client, err := messages.NewBirdClient(messages.BirdConfig{
			BaseURL:     a.cfg.BirdBaseURL,
			AccessKey:   a.cfg.BirdAPIKey,
			WorkspaceID: a.cfg.BirdWorkspaceID,
			ChannelID:   a.cfg.BirdChannelID,
		}, a.log)
		if err != nil {
			return err
		}
		a.messages = client
	case "whatsapp":
		svc, err := whatsapp.NewService(ctx, &whatsapp.Config{
			DataDir:     a.cfg.DataDir,
			HistorySize: a.cfg.MessageLimit,
		}, a.log)
		if err != nil {
			return err
		}
		a.whatsapp = svc
		a.messages = svc
	default:
		a.messages = messages.None{}
	}
	return nil
}

// Close releases the store and the WhatsApp session.
func (a *app) Close() {
	if a.whatsapp != nil {
		a.whatsapp.Disconnect()
	}
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close store")
		}
	}
}
