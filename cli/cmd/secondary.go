package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pithecene-io/specbridge/adapter"
	"github.com/pithecene-io/specbridge/adapter/redis"
	"github.com/pithecene-io/specbridge/adapter/webhook"
	"github.com/pithecene-io/specbridge/bridge"
	"github.com/pithecene-io/specbridge/browser"
	"github.com/pithecene-io/specbridge/config"
	"github.com/pithecene-io/specbridge/domainfn"
	"github.com/pithecene-io/specbridge/engine"
	"github.com/pithecene-io/specbridge/eval"
	"github.com/pithecene-io/specbridge/journal"
	"github.com/pithecene-io/specbridge/log"
	"github.com/pithecene-io/specbridge/metrics"
	"github.com/pithecene-io/specbridge/types"
)

// secondary holds the collaborators shared by every channel a serve
// process accepts. Each channel gets its own engine and runner.
type secondary struct {
	logger    *log.Logger
	metrics   *metrics.Collector
	evaluator eval.Evaluator
	session   *browser.Session
	journal   *journal.Journal
	notifier  *adapter.Notifier

	// Serializes flights across channels; they share the evaluator and
	// the browser tab.
	tabMu sync.Mutex
}

func newSecondary(ctx context.Context, cfg *config.Config, logger *log.Logger, m *metrics.Collector) (*secondary, error) {
	s := &secondary{logger: logger, metrics: m}

	ev, err := buildEvaluator(cfg.Evaluator)
	if err != nil {
		return nil, err
	}
	s.evaluator = ev

	if s.journal, err = buildJournal(ctx, cfg, logger, m); err != nil {
		return nil, err
	}

	notifier, err := buildNotifier(cfg, logger, m)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.notifier = notifier

	if cfg.Browser.Enabled {
		s.session, err = browser.New(ctx, browser.Options{
			Headless:  cfg.Browser.IsHeadless(),
			ExecPath:  cfg.Browser.ExecPath,
			NoSandbox: cfg.Browser.NoSandbox,
			Logger:    logger,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Serve runs one channel until it closes.
func (s *secondary) Serve(ctx context.Context, t bridge.Transport) error {
	var taps []bridge.Tap
	var observers []domainfn.FlightObserver
	if s.journal != nil {
		taps = append(taps, s.journal)
		observers = append(observers, s.journal)
	}
	if s.notifier != nil {
		observers = append(observers, s.notifier)
	}

	comm := bridge.New(bridge.Options{Transport: t, Logger: s.logger, Metrics: s.metrics, Taps: taps})
	eng := engine.New(engine.Options{Logger: s.logger, Metrics: s.metrics})
	opts := domainfn.Options{
		Engine:    eng,
		Evaluator: s.evaluator,
		Forwarder: comm,
		Logger:    s.logger,
		Metrics:   s.metrics,
		Observers: observers,
	}
	if s.session != nil {
		s.session.Register(eng)
		opts.Viewport = s.session
	}
	runner := domainfn.NewRunner(opts)
	comm.OnRunDomainFn(func(ctx context.Context, flightID string, o types.RunDomainFnOptions) error {
		s.tabMu.Lock()
		defer s.tabMu.Unlock()
		return runner.HandleRunDomainFn(ctx, flightID, o)
	})

	err := comm.Serve(ctx)
	eng.Stop()
	return err
}

// Close flushes the journal and waits for pending notifications.
func (s *secondary) Close() {
	if s.session != nil {
		_ = s.session.Close()
	}
	if s.notifier != nil {
		if err := s.notifier.Close(); err != nil {
			s.logger.Warn("closing notifier", map[string]any{"error": err.Error()})
		}
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			s.logger.Warn("final journal flush failed", map[string]any{"error": err.Error()})
		}
	}
}

func buildEvaluator(name string) (eval.Evaluator, error) {
	switch name {
	case config.EvaluatorLua, "":
		return eval.NewLuaEvaluator(), nil
	case config.EvaluatorRegistry:
		return builtinCallbacks(), nil
	default:
		return nil, fmt.Errorf("unknown evaluator: %s (must be lua or registry)", name)
	}
}

// buildJournal returns nil when journaling is off.
func buildJournal(ctx context.Context, cfg *config.Config, logger *log.Logger, m *metrics.Collector) (*journal.Journal, error) {
	jcfg := journal.Config{
		Dataset:   cfg.Journal.Dataset,
		Component: "secondary",
		BridgeID:  cfg.BridgeID,
	}
	opts := journal.Options{Logger: logger, Metrics: m}

	switch cfg.Journal.Backend {
	case config.JournalNone, "":
		return nil, nil
	case config.JournalFS:
		if cfg.Journal.Path == "" {
			return nil, errors.New("journal path is required for the fs backend")
		}
		return journal.NewFS(jcfg, cfg.Journal.Path, opts)
	case config.JournalS3:
		bucket, prefix := journal.ParseS3Path(cfg.Journal.Path)
		return journal.NewS3(ctx, jcfg, journal.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       cfg.Journal.Region,
			Endpoint:     cfg.Journal.Endpoint,
			UsePathStyle: cfg.Journal.S3PathStyle,
		}, opts)
	default:
		return nil, fmt.Errorf("unknown journal backend: %s (must be none, fs or s3)", cfg.Journal.Backend)
	}
}

// buildNotifier returns nil when no adapter is configured.
func buildNotifier(cfg *config.Config, logger *log.Logger, m *metrics.Collector) (*adapter.Notifier, error) {
	ac := cfg.Adapter
	if ac.Type == "" {
		return nil, nil
	}

	var a adapter.Adapter
	var err error
	switch ac.Type {
	case config.AdapterWebhook:
		wc := webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
			Retries: webhook.DefaultRetries,
			Backoff: ac.Backoff.Duration,
		}
		if ac.Retries != nil {
			wc.Retries = *ac.Retries
		}
		a, err = webhook.New(wc)
	case config.AdapterRedis:
		rc := redis.Config{
			URL:       ac.URL,
			Channel:   ac.Channel,
			RetainFor: ac.RetainFor.Duration,
			Timeout:   ac.Timeout.Duration,
			Retries:   redis.DefaultRetries,
			Backoff:   ac.Backoff.Duration,
		}
		if ac.Retries != nil {
			rc.Retries = *ac.Retries
		}
		a, err = redis.New(rc)
	default:
		return nil, fmt.Errorf("unknown adapter type: %s (must be webhook or redis)", ac.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%s adapter: %w", ac.Type, err)
	}

	return adapter.NewNotifier(adapter.NotifierOptions{
		Component: "secondary",
		BridgeID:  cfg.BridgeID,
		Logger:    logger,
		Metrics:   m,
	}, a), nil
}
