package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/synthlace/gofile-dav/internal/config"
)

var (
	rootID      *string
	apiToken    *string
	password    *string
	mode        *string
	host        *string
	port        *int
	bypass      *bool
	auth        *string
	logLevel    *string
	logFile     *string
	showVersion *bool
)

// registerFlags registers all command-line flags. Environment variables
// provide the defaults so containers can run without a command line.
func registerFlags() {
	rootID = flag.String("root-id", envOr("GOFILE_ROOT_ID", ""), "id or share code of the folder to expose as / (default: account root)")
	apiToken = flag.String("api-token", envOr("GOFILE_API_TOKEN", ""), "gofile API token (default: create a guest account)")
	password = flag.String("password", envOr("GOFILE_PASSWORD", ""), "password for protected folders")
	mode = flag.String("mode", envOr("GOFILE_MODE", string(config.ModeReadOnly)), "read-only or read-write")
	host = flag.String("host", envOr("GOFILE_HOST", "127.0.0.1"), "address to bind")
	port = flag.Int("port", envIntOr("GOFILE_PORT", 4914), "port to bind")
	bypass = flag.Bool("bypass", envOr("GOFILE_BYPASS", "") != "", "rewrite download links through the bypass proxy")
	auth = flag.String("auth", envOr("GOFILE_AUTH", ""), "optional user:password protecting the listener")
	logLevel = flag.String("log-level", envOr("GOFILE_LOG_LEVEL", "info"), "log level (trace..error)")
	logFile = flag.String("log-file", envOr("GOFILE_LOG_FILE", ""), "log to this file with rotation instead of stderr")
	showVersion = flag.Bool("version", false, "print version and exit")
}

// ParseAndValidate parses the command line into a validated Config.
func ParseAndValidate() (*config.Config, error) {
	registerFlags()
	flag.Parse()

	if *showVersion {
		fmt.Printf("gofile-dav %s\n", version)
		os.Exit(0)
	}

	cfg := &config.Config{
		RootID:   *rootID,
		APIToken: *apiToken,
		Password: *password,
		Mode:     config.Mode(*mode),
		Host:     *host,
		Port:     *port,
		Bypass:   *bypass,
		Auth:     *auth,
		LogLevel: *logLevel,
		LogFile:  *logFile,
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
