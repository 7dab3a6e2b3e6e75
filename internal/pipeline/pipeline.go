// Package pipeline sequences the type-graph canonicalization phases
// over one already-ingested Context: reference resolution, transit
// naming, cycle breaking, partitioning, acyclic merging and
// finalization, in the fixed order later phases depend on. It is the
// single place that order is expressed, so cmd/mk-dwarf-db never has
// to know it.
package pipeline

import (
	"time"

	"github.com/pkg/errors"

	"github.com/ThinkerYzu/trace-dwarf/internal/cycle"
	"github.com/ThinkerYzu/trace-dwarf/internal/dwtypes"
	"github.com/ThinkerYzu/trace-dwarf/internal/finalize"
	"github.com/ThinkerYzu/trace-dwarf/internal/merge"
	"github.com/ThinkerYzu/trace-dwarf/internal/partition"
	"github.com/ThinkerYzu/trace-dwarf/internal/resolve"
	"github.com/ThinkerYzu/trace-dwarf/internal/transit"
)

// Run drives every canonicalization phase over ctx, which must
// already hold the fully ingested Types and Subprograms tables (the
// DIE Ingestor is internal/ingest's responsibility, run before this).
func Run(ctx *dwtypes.Context) error {
	phases := []struct {
		name string
		fn   func(*dwtypes.Context) error
	}{
		{"reference resolver", func(c *dwtypes.Context) error { return resolve.Run(c) }},
		{"transit namer", func(c *dwtypes.Context) error { transit.Run(c); return nil }},
		{"cycle breaker", func(c *dwtypes.Context) error { cycle.Run(c); return nil }},
		{"cycle check", cycle.CheckAcyclic},
		{"partition engine", partition.Run},
		{"acyclic merger", merge.Run},
		{"finalizer", func(c *dwtypes.Context) error { finalize.Run(c); return nil }},
	}

	for _, p := range phases {
		start := time.Now()
		ctx.Log.Infow("phase starting", "phase", p.name, "types", ctx.Types.Len(), "subprograms", ctx.Subprograms.Len())
		if err := p.fn(ctx); err != nil {
			return errors.Wrapf(err, "pipeline: phase %q failed", p.name)
		}
		ctx.Log.Infow("phase done", "phase", p.name, "elapsed", time.Since(start), "types", ctx.Types.Len(), "subprograms", ctx.Subprograms.Len())
	}
	return nil
}
