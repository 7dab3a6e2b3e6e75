// Package resolve implements the Reference Resolver phase: it cleans
// up cross-entry references left loose by ingestion before the
// naming and cycle-breaking phases run. It assumes the DIE Ingestor
// has already run to completion (including its Finish pass).
package resolve

import (
	"fmt"

	"github.com/ThinkerYzu/trace-dwarf/internal/dwtypes"
)

// Run executes every reference-resolution step in the fixed order the
// original implementation relies on: later steps assume earlier ones
// have already normalized their inputs (set_call_names, for instance,
// needs redirect_calls_to_origin's rewritten callee addrs).
func Run(ctx *dwtypes.Context) error {
	redirectCallsToOrigin(ctx)
	borrowNameFromSpecification(ctx)
	setCallNames(ctx)
	replaceDeclarationRefs(ctx)
	removeExternalMembers(ctx)
	return nil
}

// redirectCallsToOrigin rewrites every call edge that currently points
// at a non-original subprogram (one deferring to another via Origin)
// so that it points directly at the original. The ingestor's Finish
// pass deletes only inlined non-original entries; out-of-line
// non-original entries stay in the table, and calls aimed at them are
// retargeted here. This step is also an idempotent safety
// net for any origin chains introduced after ingestion, and the only
// step the original groups it with.
func redirectCallsToOrigin(ctx *dwtypes.Context) {
	ctx.Subprograms.Range(func(caller *dwtypes.Subprogram) {
		for i, callee := range caller.Calls {
			seen := map[dwtypes.Addr]struct{}{}
			for {
				calleeSubp := ctx.Subprograms.Get(callee)
				if calleeSubp == nil || calleeSubp.Origin == dwtypes.NoAddr {
					break
				}
				if _, ok := seen[callee]; ok {
					break
				}
				seen[callee] = struct{}{}
				callee = calleeSubp.Origin
			}
			caller.Calls[i] = callee
		}
	})
}

// borrowNameFromSpecification gives an unnamed subprogram the name of
// the declaration it specifies, when one is recorded. A subprogram
// counts as unnamed while it carries either the sentinel name or the
// address-derived name the ingestor's Finish pass gave it.
func borrowNameFromSpecification(ctx *dwtypes.Context) {
	ctx.Subprograms.Range(func(subp *dwtypes.Subprogram) {
		if subp.Specification == dwtypes.NoAddr {
			return
		}
		if subp.Name != dwtypes.UnknownName() && subp.Name != fmt.Sprintf("%s%x", dwtypes.UnknownName(), subp.Addr) {
			return
		}
		spec := ctx.Subprograms.Get(subp.Specification)
		if spec == nil {
			return
		}
		subp.Name = spec.SymbolName()
	})
}

// setCallNames renders each original subprogram's CallNames from its
// (now origin-redirected) Calls addrs, deduplicating callees the way
// the source deduplicates with a set before rendering names.
func setCallNames(ctx *dwtypes.Context) {
	ctx.Subprograms.Range(func(subp *dwtypes.Subprogram) {
		if len(subp.Calls) == 0 || !subp.IsOriginal() {
			return
		}
		seen := map[dwtypes.Addr]struct{}{}
		var names []string
		for _, callee := range subp.Calls {
			if _, ok := seen[callee]; ok {
				continue
			}
			seen[callee] = struct{}{}
			if target := ctx.Subprograms.Get(callee); target != nil {
				names = append(names, target.SymbolName())
			}
		}
		subp.CallNames = names
	})
}

type defKey struct {
	meta dwtypes.MetaType
	name string
}

// replaceDeclarationRefs retargets every reference to a forward
// declaration at the one definition sharing its meta type and name,
// then drops any declaration no longer referenced by a definition.
// Declarations with no matching definition are left exactly as they
// were: unresolved declarations are a normal outcome, not an error.
func replaceDeclarationRefs(ctx *dwtypes.Context) {
	defTypes := make(map[defKey]dwtypes.Addr)
	ctx.Types.Range(func(t *dwtypes.Type) {
		if t.Declaration {
			return
		}
		key := defKey{t.MetaType, t.SymbolName()}
		if _, ok := defTypes[key]; !ok {
			defTypes[key] = t.Addr
		}
	})

	replace := func(addr dwtypes.Addr) dwtypes.Addr {
		target := ctx.Types.Get(addr)
		if target == nil || !target.Declaration {
			return addr
		}
		key := defKey{target.MetaType, target.SymbolName()}
		def, ok := defTypes[key]
		if !ok {
			return addr
		}
		target.Visited = 1
		return def
	}

	ctx.Types.Range(func(t *dwtypes.Type) {
		if t.Declaration {
			return
		}
		if t.Type != dwtypes.NoAddr {
			t.Type = replace(t.Type)
		}
		switch t.ParamKind {
		case dwtypes.ParamMembers, dwtypes.ParamParams:
			for i := range t.Params {
				t.Params[i].Value = replace(t.Params[i].Value)
			}
		}
	})

	var toDelete []dwtypes.Addr
	ctx.Types.Range(func(t *dwtypes.Type) {
		if t.Declaration && t.Visited >= 0 {
			toDelete = append(toDelete, t.Addr)
		}
	})
	for _, addr := range toDelete {
		ctx.Types.Delete(addr)
	}
}

// removeExternalMembers drops member fields marked external: DWARF
// emits these for static data members defined out of line, and they
// carry no information the canonicalized schema needs to keep.
func removeExternalMembers(ctx *dwtypes.Context) {
	ctx.Types.Range(func(t *dwtypes.Type) {
		if t.ParamKind != dwtypes.ParamMembers {
			return
		}
		kept := t.Params[:0]
		for _, p := range t.Params {
			if !p.External {
				kept = append(kept, p)
			}
		}
		t.Params = kept
	})
}
