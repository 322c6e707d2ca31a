package domainfn

import (
	"context"
	"fmt"
	"maps"

	"github.com/pithecene-io/specbridge/engine"
	"github.com/pithecene-io/specbridge/types"
)

// StableReasonDomainStart tags the stability flag cleared by Resync.
const StableReasonDomainStart = "multi-domain-start"

// ViewportSyncer receives the primary's viewport before state is committed.
type ViewportSyncer interface {
	SyncViewport(ctx context.Context, width, height int) error
}

// ViewportSyncerFunc adapts a function to ViewportSyncer.
type ViewportSyncerFunc func(ctx context.Context, width, height int) error

// SyncViewport implements ViewportSyncer.
func (f ViewportSyncerFunc) SyncViewport(ctx context.Context, width, height int) error {
	return f(ctx, width, height)
}

// ViewportSyncers fans a viewport change out in order, stopping at the
// first error. Nil entries are skipped.
type ViewportSyncers []ViewportSyncer

// SyncViewport implements ViewportSyncer.
func (s ViewportSyncers) SyncViewport(ctx context.Context, width, height int) error {
	for _, syncer := range s {
		if syncer == nil {
			continue
		}
		if err := syncer.SyncViewport(ctx, width, height); err != nil {
			return err
		}
	}
	return nil
}

// Resync replaces the engine's state with the primary's snapshot.
//
// The engine is reset, the snapshot merged with redirection counts cleared
// and the runnable rehydrated, the viewport pushed to viewport, and the
// merged state committed in one SetAll. The ctx key then mirrors the
// runnable's ctx map and the page is marked unstable.
func Resync(ctx context.Context, e *engine.Engine, snap types.StateSnapshot, viewport ViewportSyncer) error {
	e.Reset()

	updates := make(map[string]any, len(snap.Extra)+4)
	maps.Copy(updates, snap.Extra)
	updates[engine.KeyViewportWidth] = snap.ViewportWidth
	updates[engine.KeyViewportHeight] = snap.ViewportHeight
	updates[engine.KeyRedirectionCount] = map[string]int{}

	runnable := Rehydrate(snap.Runnable)
	updates[engine.KeyRunnable] = runnable

	if viewport != nil {
		if err := viewport.SyncViewport(ctx, snap.ViewportWidth, snap.ViewportHeight); err != nil {
			return fmt.Errorf("sync viewport: %w", err)
		}
	}

	e.State().SetAll(updates)

	var runCtx map[string]any
	if runnable != nil {
		runCtx = runnable.Ctx
	}
	e.State().Set(engine.KeyCtx, runCtx)

	e.SetStable(false, StableReasonDomainStart)
	return nil
}
