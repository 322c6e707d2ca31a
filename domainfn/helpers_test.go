package domainfn

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pithecene-io/specbridge/engine"
	"github.com/pithecene-io/specbridge/eval"
	"github.com/pithecene-io/specbridge/ipc"
	"github.com/pithecene-io/specbridge/types"
)

type sentMessage struct {
	FlightID string
	Event    types.EventType
	Payload  any
	Opts     *types.SendOptions
}

func (m sentMessage) syncConfig() bool {
	return m.Opts != nil && m.Opts.SyncConfig
}

// recordingForwarder records forwarded events. Payloads are run through the
// wire codec so unencodable values fail the way a real transport would.
type recordingForwarder struct {
	mu     sync.Mutex
	msgs   []sentMessage
	failOn types.EventType
}

func (f *recordingForwarder) ToPrimary(_ context.Context, flightID string, event types.EventType, payload any, opts *types.SendOptions) error {
	if _, err := ipc.EncodePayload(payload); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if event == f.failOn {
		return errors.New("transport down")
	}
	f.msgs = append(f.msgs, sentMessage{FlightID: flightID, Event: event, Payload: payload, Opts: opts})
	return nil
}

func (f *recordingForwarder) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.msgs...)
}

// withoutViewport drops sync:viewport messages.
func (f *recordingForwarder) withoutViewport() []sentMessage {
	var out []sentMessage
	for _, m := range f.messages() {
		if m.Event != types.EventSyncViewport {
			out = append(out, m)
		}
	}
	return out
}

func terminalCount(msgs []sentMessage) int {
	n := 0
	for _, m := range msgs {
		switch p := m.Payload.(type) {
		case *types.RanDomainFnPayload:
			if p.IsTerminal() {
				n++
			}
		case *types.QueueFinishedPayload:
			n++
		}
	}
	return n
}

type recordingObserver struct {
	mu      sync.Mutex
	records []types.FlightRecord
}

func (o *recordingObserver) FlightCompleted(_ context.Context, rec types.FlightRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, rec)
}

func (o *recordingObserver) all() []types.FlightRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]types.FlightRecord(nil), o.records...)
}

type harness struct {
	engine   *engine.Engine
	registry *eval.Registry
	fwd      *recordingForwarder
	observer *recordingObserver
	runner   *Runner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		engine:   engine.New(engine.Options{}),
		registry: eval.NewRegistry(),
		fwd:      &recordingForwarder{},
		observer: &recordingObserver{},
	}
	h.runner = NewRunner(Options{
		Engine:    h.engine,
		Evaluator: h.registry,
		Forwarder: h.fwd,
		Observers: []FlightObserver{h.observer},
	})
	return h
}

func testOptions(fn string) types.RunDomainFnOptions {
	return types.RunDomainFnOptions{
		Config: map[string]any{"viewportWidth": 1000, "viewportHeight": 660},
		Env:    map[string]any{"FOO": "bar"},
		Fn:     fn,
		State: types.StateSnapshot{
			Runnable: &types.SerializedRunnable{
				ID:        "r3",
				Type:      types.RunnableTypeTest,
				Title:     "visits the other domain",
				Ctx:       map[string]any{},
				Timeout:   4000,
				TitlePath: []string{"multi-domain", "visits the other domain"},
				Parent: &types.SerializedRunnable{
					ID:        "r1",
					Type:      types.RunnableTypeSuite,
					Title:     "multi-domain",
					TitlePath: []string{"multi-domain"},
				},
			},
			ViewportWidth:  1000,
			ViewportHeight: 660,
		},
	}
}

func ranPayload(t *testing.T, m sentMessage) *types.RanDomainFnPayload {
	t.Helper()
	if m.Event != types.EventRanDomainFn {
		t.Fatalf("event = %s, want %s", m.Event, types.EventRanDomainFn)
	}
	p, ok := m.Payload.(*types.RanDomainFnPayload)
	if !ok {
		t.Fatalf("payload = %T", m.Payload)
	}
	return p
}

func queuePayload(t *testing.T, m sentMessage) *types.QueueFinishedPayload {
	t.Helper()
	if m.Event != types.EventQueueFinished {
		t.Fatalf("event = %s, want %s", m.Event, types.EventQueueFinished)
	}
	p, ok := m.Payload.(*types.QueueFinishedPayload)
	if !ok {
		t.Fatalf("payload = %T", m.Payload)
	}
	return p
}
