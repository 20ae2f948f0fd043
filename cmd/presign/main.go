// Package main is the entry point for the presign tool, which prints a
// SigV4 presigned URL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/vyrodovalexey/avasdk/internal/config"
	"github.com/vyrodovalexey/avasdk/internal/observability"
	"github.com/vyrodovalexey/avasdk/internal/sigv4"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	method      string
	url         string
	region      string
	service     string
	expires     time.Duration
	logLevel    string
	showVersion bool
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.LookupEnv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "presign: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags.
func parseFlags(args []string, lookup config.LookupFunc) (cliFlags, error) {
	fs := flag.NewFlagSet("presign", flag.ContinueOnError)

	var f cliFlags
	fs.StringVar(&f.configPath, "config", getEnvOrDefault(lookup, "AVASDK_CONFIG_PATH", ""),
		"Path to YAML configuration file")
	fs.StringVar(&f.method, "method", http.MethodGet, "HTTP method of the presigned request")
	fs.StringVar(&f.url, "url", "", "URL to presign")
	fs.StringVar(&f.region, "region", "", "Signing region (overrides configuration)")
	fs.StringVar(&f.service, "service", "", "Signing service name (overrides configuration)")
	fs.DurationVar(&f.expires, "expires", 0, "Validity of the presigned URL (overrides configuration)")
	fs.StringVar(&f.logLevel, "log-level", getEnvOrDefault(lookup, "AVASDK_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error)")
	fs.BoolVar(&f.showVersion, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	if f.showVersion {
		return f, nil
	}
	if f.url == "" {
		return cliFlags{}, errors.New("-url is required")
	}
	return f, nil
}

// printVersion prints version information.
func printVersion(out io.Writer) {
	fmt.Fprintf(out, "presign version %s\n", version)
	fmt.Fprintf(out, "  Build time: %s\n", buildTime)
	fmt.Fprintf(out, "  Git commit: %s\n", gitCommit)
}

func run(ctx context.Context, args []string, out io.Writer, lookup config.LookupFunc) error {
	flags, err := parseFlags(args, lookup)
	if err != nil {
		return err
	}
	if flags.showVersion {
		printVersion(out)
		return nil
	}

	cfg, err := loadConfig(flags, lookup)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	region, service := cfg.SigningRegion(), cfg.Signing.Service
	if region == "" {
		return errors.New("no signing region: set -region, AWS_REGION or region in the config file")
	}
	if service == "" {
		return errors.New("no signing service: set -service or signing.service in the config file")
	}

	resolver, err := newResolver(cfg, lookup, logger)
	if err != nil {
		return err
	}
	id, err := resolver.ResolveIdentity(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, flags.method, flags.url, http.NoBody)
	if err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	settings := sigv4.Settings{
		Location:        sigv4.LocationQuery,
		Expires:         cfg.Signing.PresignExpires,
		ExcludedHeaders: cfg.Signing.ExcludedHeaders,
	}
	if cfg.Signing.DoubleURIEncode {
		settings.PercentEncoding = sigv4.DoubleEncode
	}

	signer := sigv4.NewSigner(sigv4.WithLogger(logger))
	if _, err := signer.Sign(req, &sigv4.Params{
		Identity: id,
		Region:   region,
		Service:  service,
		Payload:  sigv4.UnsignedPayload,
		Settings: settings,
	}); err != nil {
		return fmt.Errorf("failed to presign: %w", err)
	}

	logger.Debug("request presigned",
		observability.String("method", req.Method),
		observability.String("region", region),
		observability.String("service", service),
		observability.Duration("expires", settings.Expires),
		observability.String("provider", id.ProviderName()),
	)

	_, err = fmt.Fprintln(out, req.URL.String())
	return err
}

// loadConfig layers defaults, the environment, the config file and the
// command line flags, in that order.
func loadConfig(flags cliFlags, lookup config.LookupFunc) (*config.Client, error) {
	base := config.Defaults()
	base.Log.Format = "console"
	base.Log.Level = "warn"

	envLayer, err := config.FromEnv(lookup)
	if err != nil {
		return nil, err
	}

	var fileLayer *config.Layer
	if flags.configPath != "" {
		fileLayer, err = config.LoadFile(flags.configPath)
		if err != nil {
			return nil, err
		}
	}

	flagLayer := &config.Layer{Name: "command line"}
	signing := &config.SigningLayer{}
	if flags.region != "" {
		flagLayer.Region = config.Ptr(flags.region)
		signing.Region = config.Ptr(flags.region)
	}
	if flags.service != "" {
		signing.Service = config.Ptr(flags.service)
	}
	if flags.expires != 0 {
		signing.PresignExpires = config.DurationPtr(flags.expires)
	}
	flagLayer.Signing = signing
	if flags.logLevel != "" {
		logCfg := base.Log
		if fileLayer != nil && fileLayer.Log != nil {
			logCfg = *fileLayer.Log
		}
		logCfg.Level = flags.logLevel
		flagLayer.Log = &logCfg
	}

	return config.Resolve(base, envLayer, fileLayer, flagLayer)
}
