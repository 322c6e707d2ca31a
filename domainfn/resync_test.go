package domainfn

import (
	"context"
	"errors"
	"testing"

	"pgregory.net/rapid"

	"github.com/pithecene-io/specbridge/engine"
	"github.com/pithecene-io/specbridge/types"
)

func TestResync_MergesSnapshot(t *testing.T) {
	e := engine.New(engine.Options{})
	e.State().Set("stale", "left over")
	_ = e.Enqueue("wrap", 1)

	snap := types.StateSnapshot{
		Runnable: &types.SerializedRunnable{
			ID:        "r1",
			Type:      types.RunnableTypeTest,
			Title:     "t",
			Ctx:       map[string]any{"user": "alice"},
			TitlePath: []string{"t"},
		},
		ViewportWidth:    1280,
		ViewportHeight:   720,
		RedirectionCount: map[string]int{"http://a.test": 3},
		Extra:            map[string]any{"url": "http://b.test", "runnable": "overridden"},
	}

	if err := Resync(t.Context(), e, snap, nil); err != nil {
		t.Fatalf("Resync failed: %v", err)
	}

	st := e.State()
	if st.Get("stale") != nil {
		t.Error("stale state survived resync")
	}
	if e.Queue().Len() != 0 {
		t.Error("queue survived resync")
	}
	if st.Get("url") != "http://b.test" {
		t.Errorf("extra field not merged: %v", st.Get("url"))
	}
	rc, ok := st.Get(engine.KeyRedirectionCount).(map[string]int)
	if !ok || len(rc) != 0 {
		t.Errorf("redirectionCount = %#v, want empty map", st.Get(engine.KeyRedirectionCount))
	}

	r := e.Runnable()
	if r == nil || r.ID != "r1" {
		t.Fatalf("runnable = %#v, want live runnable r1", st.Get(engine.KeyRunnable))
	}
	ctx, ok := st.Get(engine.KeyCtx).(map[string]any)
	if !ok || ctx["user"] != "alice" {
		t.Fatalf("ctx = %#v", st.Get(engine.KeyCtx))
	}
	ctx["late"] = 1
	if r.Ctx["late"] != 1 {
		t.Error("state ctx and runnable ctx diverged")
	}

	if w, h := e.Viewport(); w != 1280 || h != 720 {
		t.Errorf("viewport = %dx%d", w, h)
	}
	if stable, reason := e.Stable(); stable || reason != StableReasonDomainStart {
		t.Errorf("stable = %v %q", stable, reason)
	}
}

func TestResync_ViewportBeforeCommit(t *testing.T) {
	e := engine.New(engine.Options{})
	e.State().Set("stale", true)

	var gotW, gotH int
	var sawRunnable bool
	syncer := ViewportSyncerFunc(func(_ context.Context, w, h int) error {
		gotW, gotH = w, h
		sawRunnable = e.State().Get(engine.KeyRunnable) != nil
		if e.State().Get("stale") != nil {
			t.Error("viewport sync ran before reset")
		}
		return nil
	})

	snap := types.StateSnapshot{
		Runnable:       &types.SerializedRunnable{ID: "r", Type: types.RunnableTypeTest},
		ViewportWidth:  375,
		ViewportHeight: 812,
	}
	if err := Resync(t.Context(), e, snap, syncer); err != nil {
		t.Fatal(err)
	}
	if gotW != 375 || gotH != 812 {
		t.Errorf("synced viewport = %dx%d", gotW, gotH)
	}
	if sawRunnable {
		t.Error("state was committed before the viewport sync")
	}
}

func TestResync_ViewportErrorPropagates(t *testing.T) {
	e := engine.New(engine.Options{})
	boom := errors.New("resize failed")

	err := Resync(t.Context(), e, types.StateSnapshot{ViewportWidth: 1}, ViewportSyncerFunc(func(context.Context, int, int) error {
		return boom
	}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected viewport error, got %v", err)
	}
	if e.State().Get(engine.KeyViewportWidth) != nil {
		t.Error("state committed despite viewport failure")
	}
}

func TestViewportSyncers_StopAtFirstError(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	s := ViewportSyncers{
		ViewportSyncerFunc(func(context.Context, int, int) error { calls = append(calls, "a"); return nil }),
		nil,
		ViewportSyncerFunc(func(context.Context, int, int) error { calls = append(calls, "b"); return boom }),
		ViewportSyncerFunc(func(context.Context, int, int) error { calls = append(calls, "c"); return nil }),
	}

	if err := s.SyncViewport(t.Context(), 1, 1); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Errorf("calls = %v", calls)
	}
}

func TestResync_RedirectionCountAlwaysEmpty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := engine.New(engine.Options{})
		counts := rapid.MapOf(rapid.StringMatching(`https?://[a-z]{1,8}\.test`), rapid.IntRange(0, 20)).Draw(t, "counts")
		extra := map[string]any{}
		if rapid.Bool().Draw(t, "extraRedirects") {
			extra[engine.KeyRedirectionCount] = map[string]int{"http://x.test": 1}
		}

		snap := types.StateSnapshot{
			Runnable:         &types.SerializedRunnable{ID: "r", Type: types.RunnableTypeTest},
			ViewportWidth:    rapid.IntRange(1, 4000).Draw(t, "w"),
			ViewportHeight:   rapid.IntRange(1, 4000).Draw(t, "h"),
			RedirectionCount: counts,
			Extra:            extra,
		}
		if err := Resync(context.Background(), e, snap, nil); err != nil {
			t.Fatal(err)
		}

		rc, ok := e.State().Get(engine.KeyRedirectionCount).(map[string]int)
		if !ok || len(rc) != 0 {
			t.Fatalf("redirectionCount = %#v", e.State().Get(engine.KeyRedirectionCount))
		}
	})
}
