package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/specbridge/bridge"
	"github.com/pithecene-io/specbridge/config"
	"github.com/pithecene-io/specbridge/log"
	"github.com/pithecene-io/specbridge/metrics"
)

// Serve defaults applied after the config file and flags.
const (
	defaultListen    = "127.0.0.1:9400"
	defaultPath      = "/__specbridge"
	shutdownGrace    = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// ServeCommand returns the serve command, which runs the secondary context.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the secondary context and handle run:domain:fn flights",
		Flags: []cli.Flag{
			ConfigFlag,
			LogLevelFlag,
			&cli.StringFlag{Name: "bridge-id", Usage: "Bridge identifier (default: random)"},
			&cli.StringFlag{Name: "transport", Usage: "Channel transport: stdio, websocket (default stdio)"},
			&cli.StringFlag{Name: "listen", Usage: "WebSocket listen address (default " + defaultListen + ")"},
			&cli.StringFlag{Name: "path", Usage: "WebSocket endpoint path (default " + defaultPath + ")"},
			&cli.StringFlag{Name: "evaluator", Usage: "Callback evaluator: lua, registry (default lua)"},
			&cli.BoolFlag{Name: "browser", Usage: "Start a Chrome session and register page commands"},
			&cli.BoolFlag{Name: "headed", Usage: "Run Chrome with a window"},
			&cli.StringFlag{Name: "chrome-path", Usage: "Chrome binary path"},
			&cli.BoolFlag{Name: "no-sandbox", Usage: "Disable the Chrome sandbox"},
			&cli.StringFlag{Name: "journal", Usage: "Flight journal backend: none, fs, s3 (default none)"},
			&cli.StringFlag{Name: "journal-path", Usage: "Journal directory (fs) or bucket/prefix (s3)"},
			&cli.StringFlag{Name: "journal-dataset", Usage: "Journal dataset ID (default specbridge)"},
			&cli.StringFlag{Name: "journal-s3-region", Usage: "AWS region for the s3 journal"},
			&cli.StringFlag{Name: "journal-s3-endpoint", Usage: "Custom S3 endpoint (MinIO, R2)"},
			&cli.BoolFlag{Name: "journal-s3-path-style", Usage: "Force path-style S3 addressing"},
			&cli.StringFlag{Name: "adapter", Usage: "Flight notification adapter: webhook, redis"},
			&cli.StringFlag{Name: "adapter-url", Usage: "Webhook URL or redis://host:port/db"},
			&cli.StringFlag{Name: "adapter-channel", Usage: "Redis pub/sub channel"},
			&cli.StringSliceFlag{Name: "adapter-header", Usage: "Webhook header (Key: value), repeatable"},
			&cli.DurationFlag{Name: "adapter-timeout", Usage: "Per-attempt notification timeout"},
			&cli.IntFlag{Name: "adapter-retries", Usage: "Notification retry attempts"},
			&cli.DurationFlag{Name: "adapter-retain-for", Usage: "Keep redis events under specbridge:flight:<id> for this long"},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadServeConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitCallbackError)
	}

	logger, err := log.New(log.Options{Component: "secondary", BridgeID: cfg.BridgeID, Level: cfg.Log.Level})
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid log level: %v", err), exitCallbackError)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewCollector(metrics.Dimensions{
		Component:      "secondary",
		Transport:      cfg.Transport,
		Evaluator:      cfg.Evaluator,
		JournalBackend: cfg.Journal.Backend,
		BridgeID:       cfg.BridgeID,
	})

	sec, err := newSecondary(ctx, cfg, logger, m)
	if err != nil {
		return cli.Exit(err.Error(), exitTransportError)
	}
	defer sec.Close()

	logger.Info("serving", map[string]any{
		"transport": cfg.Transport,
		"evaluator": cfg.Evaluator,
		"journal":   cfg.Journal.Backend,
		"browser":   cfg.Browser.Enabled,
	})

	switch cfg.Transport {
	case config.TransportWebSocket:
		err = serveWebSocket(ctx, cfg, logger, sec)
	default:
		err = sec.Serve(ctx, bridge.NewStreamTransport(os.Stdin, os.Stdout))
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return cli.Exit(fmt.Sprintf("serve: %v", err), exitTransportError)
	}
	return nil
}

func serveWebSocket(ctx context.Context, cfg *config.Config, logger *log.Logger, sec *secondary) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, bridge.WebSocketHandler(logger, func(ctx context.Context, t *bridge.WebSocketTransport) {
		if err := sec.Serve(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("channel ended", map[string]any{"error": err.Error()})
		}
	}))

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info("listening", map[string]any{"addr": ln.Addr().String(), "path": cfg.Path})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// loadServeConfig merges the config file, flags and defaults.
func loadServeConfig(c *cli.Context) (*config.Config, error) {
	path := config.DefaultPath
	if c.IsSet("config") {
		path = c.String("config")
	}
	cfg, err := config.LoadOptional(path, c.IsSet("config"))
	if err != nil {
		return nil, err
	}

	str := func(flag string, dst *string) {
		if c.IsSet(flag) {
			*dst = c.String(flag)
		}
	}
	str("bridge-id", &cfg.BridgeID)
	str("transport", &cfg.Transport)
	str("listen", &cfg.Listen)
	str("path", &cfg.Path)
	str("evaluator", &cfg.Evaluator)
	str("chrome-path", &cfg.Browser.ExecPath)
	str("journal", &cfg.Journal.Backend)
	str("journal-path", &cfg.Journal.Path)
	str("journal-dataset", &cfg.Journal.Dataset)
	str("journal-s3-region", &cfg.Journal.Region)
	str("journal-s3-endpoint", &cfg.Journal.Endpoint)
	str("adapter", &cfg.Adapter.Type)
	str("adapter-url", &cfg.Adapter.URL)
	str("adapter-channel", &cfg.Adapter.Channel)
	str("log-level", &cfg.Log.Level)

	if c.IsSet("browser") {
		cfg.Browser.Enabled = c.Bool("browser")
	}
	if c.IsSet("headed") {
		headless := !c.Bool("headed")
		cfg.Browser.Headless = &headless
	}
	if c.IsSet("no-sandbox") {
		cfg.Browser.NoSandbox = c.Bool("no-sandbox")
	}
	if c.IsSet("journal-s3-path-style") {
		cfg.Journal.S3PathStyle = c.Bool("journal-s3-path-style")
	}
	if c.IsSet("adapter-header") {
		h, err := parseHeaders(c.StringSlice("adapter-header"))
		if err != nil {
			return nil, err
		}
		if cfg.Adapter.Headers == nil {
			cfg.Adapter.Headers = make(map[string]string, len(h))
		}
		for k := range h {
			cfg.Adapter.Headers[k] = h.Get(k)
		}
	}
	if c.IsSet("adapter-timeout") {
		cfg.Adapter.Timeout = config.Duration{Duration: c.Duration("adapter-timeout")}
	}
	if c.IsSet("adapter-retain-for") {
		cfg.Adapter.RetainFor = config.Duration{Duration: c.Duration("adapter-retain-for")}
	}
	if c.IsSet("adapter-retries") {
		retries := c.Int("adapter-retries")
		cfg.Adapter.Retries = &retries
	}

	applyServeDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyServeDefaults(cfg *config.Config) {
	if cfg.BridgeID == "" {
		cfg.BridgeID = uuid.NewString()
	}
	if cfg.Transport == "" {
		cfg.Transport = config.TransportStdio
	}
	if cfg.Listen == "" {
		cfg.Listen = defaultListen
	}
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	if cfg.Evaluator == "" {
		cfg.Evaluator = config.EvaluatorLua
	}
	if cfg.Journal.Backend == "" {
		cfg.Journal.Backend = config.JournalNone
	}
}
