package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/buildconf/internal/application"
	"github.com/eugenenazirov/buildconf/internal/buildconfig"
	"github.com/eugenenazirov/buildconf/internal/bundler"
	"github.com/eugenenazirov/buildconf/internal/config"
	"github.com/eugenenazirov/buildconf/internal/logging"
)

const defaultConfigName = "buildconf.yaml"

var signalNotify = signal.Notify

// cli holds the parsed command line. Flags that feed config.Load are global so
// every command honours them.
type cli struct {
	app *kingpin.Application

	configFile     *string
	mode           *string
	root           *string
	port           *string
	rateLimitRPS   *float64
	rateLimitBurst *int
	debug          *bool

	resolveCmd      *kingpin.CmdClause
	format          *string
	fingerprintOnly *bool
	serveCmd        *kingpin.CmdClause
	buildCmd        *kingpin.CmdClause
	devCmd          *kingpin.CmdClause
}

func newCLI() *cli {
	c := &cli{}
	c.app = kingpin.New("buildconf", "Build configuration resolver - derives bundler configuration for development and production builds")
	c.configFile = c.app.Flag("config", "Path to YAML or JSONC configuration file").String()
	c.mode = c.app.Flag("mode", "Build mode; overrides NODE_ENV (development, anything else is production)").String()
	c.root = c.app.Flag("root", "Project root directory").String()
	c.port = c.app.Flag("port", "HTTP port exposed by the service").String()
	c.rateLimitRPS = c.app.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	c.rateLimitBurst = c.app.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()
	c.debug = c.app.Flag("debug", "Enable debug logging").Bool()

	c.resolveCmd = c.app.Command("resolve", "Print the resolved configuration").Default()
	c.format = c.resolveCmd.Flag("format", "Output format").Default("json").Enum("json", "yaml")
	c.fingerprintOnly = c.resolveCmd.Flag("fingerprint", "Print only the configuration fingerprint").Bool()

	c.serveCmd = c.app.Command("serve", "Serve resolved configurations over HTTP")
	c.buildCmd = c.app.Command("build", "Bundle the project once with esbuild")
	c.devCmd = c.app.Command("dev", "Run the esbuild dev server")
	return c
}

// overrides converts the parsed flags into config overrides. Unset flags stay nil.
func (c *cli) overrides() *config.CLIOverrides {
	overrides := &config.CLIOverrides{
		ConfigFile: *c.configFile,
		Debug:      *c.debug,
	}

	if *c.mode != "" {
		overrides.Mode = c.mode
	}

	if *c.root != "" {
		overrides.Root = c.root
	}

	if *c.port != "" {
		overrides.Port = c.port
	}

	if *c.rateLimitRPS >= 0 {
		overrides.RateLimitRPS = c.rateLimitRPS
	}

	if *c.rateLimitBurst >= 0 {
		overrides.RateLimitBurst = c.rateLimitBurst
	}

	return overrides
}

func main() {
	c := newCLI()
	command := kingpin.MustParse(c.app.Parse(os.Args[1:]))

	overrides := c.overrides()
	if overrides.ConfigFile == "" {
		if found, err := application.FindConfigFile(defaultConfigName); err == nil {
			overrides.ConfigFile = found
		}
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Debug("configuration loaded",
		zap.String("mode", string(cfg.Mode)),
		zap.String("root", cfg.Project.Root),
		zap.String("config_file", overrides.ConfigFile),
	)

	resolved := buildconfig.New(cfg.Mode, cfg.Project).Resolve()

	switch command {
	case c.resolveCmd.FullCommand():
		if err := writeConfig(os.Stdout, resolved, *c.format, *c.fingerprintOnly); err != nil {
			logger.Fatal("failed to write configuration", zap.Error(err))
		}

	case c.serveCmd.FullCommand():
		app, err := application.New(cfg, logger)
		if err != nil {
			logger.Fatal("failed to initialize application", zap.Error(err))
		}

		if err := app.Start(); err != nil {
			logger.Fatal("failed to start server", zap.Error(err))
		}

		shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)

	case c.buildCmd.FullCommand():
		if err := bundler.Build(resolved, logger); err != nil {
			logger.Fatal("build failed", zap.Error(err))
		}

	case c.devCmd.FullCommand():
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			waitForSignal()
			cancel()
		}()

		if err := bundler.Serve(ctx, resolved, logger); err != nil {
			logger.Fatal("dev server failed", zap.Error(err))
		}
	}
}

// writeConfig prints cfg, or only its fingerprint, in the requested format.
func writeConfig(w io.Writer, cfg buildconfig.BuildConfig, format string, fingerprintOnly bool) error {
	if fingerprintOnly {
		fingerprint, err := cfg.Fingerprint()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, fingerprint)
		return err
	}

	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	waitForSignal()
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
