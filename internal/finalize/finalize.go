// Package finalize implements the Finalizer phase: the last step
// before the Sink persists the graph. It redirects every placeholder's
// RealType edge past any replacement the Acyclic Merger performed on
// the type it stands for, then deletes every entry the merger marked
// replaced, leaving only chosen representatives and placeholders.
package finalize

import "github.com/ThinkerYzu/trace-dwarf/internal/dwtypes"

// Run performs both finalization steps and reports, via the logger,
// any type that survived without ever being marked chosen — a sign a
// round of the Acyclic Merger terminated before every out-edge
// resolved, which is logged rather than treated as fatal since the
// Sink can still persist an un-chosen type's fields verbatim.
func Run(ctx *dwtypes.Context) {
	redirectPlaceholders(ctx)
	removeReplaced(ctx)
}

func redirectPlaceholders(ctx *dwtypes.Context) {
	ctx.Types.Range(func(t *dwtypes.Type) {
		if t.MetaType != dwtypes.MetaPlaceholder {
			return
		}
		real := ctx.Types.Get(t.RealType)
		if real == nil {
			ctx.Log.Warnw("placeholder real_type missing", "placeholder_addr", t.Addr, "real_type_addr", t.RealType)
			return
		}
		if real.ReplacedBy >= 0 {
			t.RealType = real.ReplacedBy
			if target := ctx.Types.Get(t.RealType); target != nil && !target.Chosen {
				ctx.Log.Warnw("placeholder redirected to a type that was never chosen", "placeholder_addr", t.Addr, "real_type_addr", t.RealType)
			}
		}
	})
}

func removeReplaced(ctx *dwtypes.Context) {
	var toDelete []dwtypes.Addr
	nonChosen := 0
	ctx.Types.Range(func(t *dwtypes.Type) {
		if t.ReplacedBy >= 0 {
			if t.Chosen {
				ctx.Log.Warnw("type marked both chosen and replaced", "addr", t.Addr, "replaced_by", t.ReplacedBy)
			}
			toDelete = append(toDelete, t.Addr)
			return
		}
		if !t.Chosen {
			nonChosen++
		}
	})
	for _, addr := range toDelete {
		ctx.Types.Delete(addr)
	}
	if nonChosen > 0 {
		ctx.Log.Warnw("types left the merger without being chosen", "count", nonChosen)
	}
}
