package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/synthlace/gofile-dav/internal/config"
	"github.com/synthlace/gofile-dav/internal/dav"
	"github.com/synthlace/gofile-dav/internal/dircache"
	"github.com/synthlace/gofile-dav/internal/gofile"
	"github.com/synthlace/gofile-dav/internal/logging"
	"github.com/synthlace/gofile-dav/internal/server"
)

var version = "dev"

func main() {
	cfg, err := ParseAndValidate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if cfg.Bypass {
		logger.Warn().Msg("experimental bypass mode enabled")
	}

	client := gofile.NewClient(gofile.Options{
		APIToken:     cfg.APIToken,
		PasswordHash: cfg.PasswordHash(),
		UseBypass:    cfg.Bypass,
		Logger:       logger,
	})

	account, err := client.AccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("looking up account: %w", err)
	}
	logger.Info().Str("account", account.ID).Str("email", account.Email).Str("tier", account.Tier).Msg("authenticated")

	rootID := cfg.RootID
	if rootID == "" {
		rootID = account.RootFolder.String()
	}

	entry, err := client.GetContents(ctx, gofile.ParseContentID(rootID))
	if err != nil {
		return fmt.Errorf("resolving root folder %s: %w", rootID, err)
	}
	root, ok := entry.(*gofile.FolderEntry)
	if !ok {
		return fmt.Errorf("root id %s is a file, not a folder", rootID)
	}
	if !cfg.ReadOnly() && !root.IsOwner {
		return fmt.Errorf("read-write mode requires an owned root folder, but %s belongs to another account", rootID)
	}
	if cfg.Password != "" && root.IsOwner {
		logger.Warn().Msg("password is ignored for folders the account owns")
	}

	cache := dircache.New(root.Code)
	fs := dav.NewFileSystem(client, cache, cfg.ReadOnly(), logger)

	return server.New(cfg, fs, logger).Run(ctx)
}
