package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/specbridge/bridge"
	"github.com/pithecene-io/specbridge/coordinator"
	"github.com/pithecene-io/specbridge/log"
	"github.com/pithecene-io/specbridge/render"
	"github.com/pithecene-io/specbridge/types"
)

// Exit codes for switch.
const (
	exitSuccess           = 0
	exitCallbackError     = 1
	exitTransportError    = 2
	exitContractViolation = 3
)

const defaultSwitchTimeout = 30 * time.Second

// SwitchCommand returns the switch command, which acts as the primary
// context for a single flight.
func SwitchCommand() *cli.Command {
	return &cli.Command{
		Name:  "switch",
		Usage: "Run a callback in a secondary context and report its outcome",
		Flags: append([]cli.Flag{
			LogLevelFlag,
			&cli.StringFlag{Name: "url", Usage: "Secondary endpoint, e.g. ws://127.0.0.1:9400/__specbridge", Required: true},
			&cli.StringFlag{Name: "fn", Usage: "Callback source (Lua) or registered callback name", Required: true},
			&cli.StringFlag{Name: "data", Usage: "Callback arguments as JSON; a non-array value is a single argument"},
			&cli.StringFlag{Name: "config-json", Usage: "Configuration snapshot as a JSON object"},
			&cli.StringFlag{Name: "env-json", Usage: "Environment snapshot as a JSON object"},
			&cli.StringFlag{Name: "state", Usage: "YAML file with the engine state snapshot (runnable, viewport)"},
			&cli.BoolFlag{Name: "skip-config-validation", Usage: "Do not validate the configuration in the secondary"},
			&cli.StringSliceFlag{Name: "header", Usage: "Handshake header (Key: value), repeatable"},
			&cli.DurationFlag{Name: "timeout", Value: defaultSwitchTimeout, Usage: "Give up waiting for the outcome after this long"},
		}, OutputFlags()...),
		Action: switchAction,
	}
}

func switchAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	opts, err := buildRunOptions(switchInput{
		fn:                   c.String("fn"),
		data:                 c.String("data"),
		configJSON:           c.String("config-json"),
		envJSON:              c.String("env-json"),
		statePath:            c.String("state"),
		skipConfigValidation: c.Bool("skip-config-validation"),
	})
	if err != nil {
		return cli.Exit(err.Error(), exitCallbackError)
	}
	header, err := parseHeaders(c.StringSlice("header"))
	if err != nil {
		return cli.Exit(err.Error(), exitCallbackError)
	}

	logger, err := log.New(log.Options{Component: "primary", Level: c.String("log-level")})
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid log level: %v", err), exitCallbackError)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
	defer cancel()

	outcome, err := runSwitch(ctx, c.String("url"), header, opts, logger)
	if err != nil {
		return cli.Exit(err.Error(), exitTransportError)
	}
	if err := r.Render(outcome); err != nil {
		return err
	}
	return cli.Exit("", outcomeToExitCode(outcome.Status))
}

// runSwitch dials the secondary, runs one flight and hangs up.
func runSwitch(ctx context.Context, url string, header http.Header, opts types.RunDomainFnOptions, logger *log.Logger) (*types.Outcome, error) {
	t, err := bridge.DialWebSocket(ctx, url, header)
	if err != nil {
		return nil, err
	}
	comm := bridge.New(bridge.Options{Transport: t, Logger: logger})
	coord := coordinator.New(coordinator.Options{
		Communicator: comm,
		Logger:       logger,
		OnLateFailure: func(flightID string, p *types.ErrorPayload) {
			fmt.Fprintf(os.Stderr, "late failure in flight %s: %s\n", flightID, p.Error())
		},
	})

	serveCtx, stopServe := context.WithCancel(ctx)
	served := make(chan error, 1)
	go func() { served <- coord.Serve(serveCtx) }()

	outcome, err := coord.Switch(ctx, opts)

	stopServe()
	_ = comm.Close()
	if serveErr := <-served; serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logger.Debug("channel closed", map[string]any{"error": serveErr.Error()})
	}
	if err != nil {
		return nil, fmt.Errorf("flight did not complete: %w", err)
	}
	return outcome, nil
}

type switchInput struct {
	fn                   string
	data                 string
	configJSON           string
	envJSON              string
	statePath            string
	skipConfigValidation bool
}

func buildRunOptions(in switchInput) (types.RunDomainFnOptions, error) {
	opts := types.RunDomainFnOptions{
		Fn:                   in.fn,
		Data:                 []any{},
		Config:               map[string]any{},
		Env:                  map[string]any{},
		SkipConfigValidation: in.skipConfigValidation,
	}
	if opts.Fn == "" {
		return opts, errors.New("--fn is required")
	}

	if in.data != "" {
		var data any
		if err := json.Unmarshal([]byte(in.data), &data); err != nil {
			return opts, fmt.Errorf("invalid --data JSON: %w", err)
		}
		if arr, ok := data.([]any); ok {
			opts.Data = arr
		} else {
			opts.Data = []any{data}
		}
	}
	if in.configJSON != "" {
		if err := json.Unmarshal([]byte(in.configJSON), &opts.Config); err != nil {
			return opts, fmt.Errorf("invalid --config-json: %w", err)
		}
	}
	if in.envJSON != "" {
		if err := json.Unmarshal([]byte(in.envJSON), &opts.Env); err != nil {
			return opts, fmt.Errorf("invalid --env-json: %w", err)
		}
	}
	if in.statePath != "" {
		raw, err := os.ReadFile(in.statePath)
		if err != nil {
			return opts, fmt.Errorf("read --state: %w", err)
		}
		if err := yaml.Unmarshal(raw, &opts.State); err != nil {
			return opts, fmt.Errorf("invalid --state %s: %w", in.statePath, err)
		}
	}
	return opts, nil
}

func outcomeToExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeSuccess:
		return exitSuccess
	case types.OutcomeTransportError:
		return exitTransportError
	case types.OutcomeContractViolation:
		return exitContractViolation
	default:
		return exitCallbackError
	}
}
