// Package partition implements the Partition Engine phase: starting
// from the set of types a placeholder now stands in for, it refines
// merge-sets of structurally-equivalent types first by a recursive
// content signature and then by a fixed-point pass over each type's
// dependent merge-sets, and finally elects one representative per
// merge-set for the Acyclic Merger to collapse onto.
package partition

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/ThinkerYzu/trace-dwarf/internal/dwtypes"
	"lukechampine.com/blake3"
)

// maxSigDepth caps the recursion of the signature walk. The walk stops
// at placeholders and never follows their RealType edge, so after the
// Cycle Breaker has run, hitting the cap means either a cycle survived
// cutting or a chain of edges is deeper than the cap.
const maxSigDepth = 200

// Run executes the full partition pipeline: seed, refine by
// signature, refine by dependent merge-sets to a fixed point, then
// elect representatives. It must run after the Cycle Breaker and its
// CheckAcyclic validation.
func Run(ctx *dwtypes.Context) error {
	seed(ctx)
	if err := divideBySignature(ctx); err != nil {
		return err
	}
	divideByDependents(ctx)
	electRepresentatives(ctx)
	return nil
}

// seed puts every type whose name is one a placeholder was created
// for into the merge-set for that name: these are exactly the types
// the Cycle Breaker judged might have duplicate structural copies
// across translation units.
func seed(ctx *dwtypes.Context) {
	byName := make(map[string]*dwtypes.MergeSet, len(ctx.PlaceholderNames))
	for name := range ctx.PlaceholderNames {
		byName[name] = dwtypes.NewMergeSet()
	}

	ctx.Types.Range(func(t *dwtypes.Type) {
		ms, ok := byName[t.SymbolName()]
		if !ok {
			return
		}
		ms.Add(t.Addr)
		ctx.TypeMergeSets[t.Addr] = ms
		t.SetMergeSet(ms)
	})

	sets := make([]*dwtypes.MergeSet, 0, len(byName))
	for _, ms := range byName {
		sets = append(sets, ms)
	}
	ctx.MergeSets = sets
	ctx.Log.Infow("partition engine seeded merge sets", "count", len(sets))
}

// divideBySignature splits every merge-set into subsets sharing the
// same recursive content signature, so only types genuinely
// structurally identical (down through their full member/param
// trees, up to the placeholder boundary) stay grouped together.
func divideBySignature(ctx *dwtypes.Context) error {
	var newSets []*dwtypes.MergeSet
	for _, ms := range ctx.MergeSets {
		subsets := make(map[string]*dwtypes.MergeSet)
		var order []string
		for addr := range ms.Members {
			t := ctx.Types.Get(addr)
			sig, err := recursiveSignature(t, ctx.Types, 0)
			if err != nil {
				return err
			}
			sub, ok := subsets[sig]
			if !ok {
				sub = dwtypes.NewMergeSet()
				subsets[sig] = sub
				order = append(order, sig)
			}
			sub.Add(addr)
			ctx.TypeMergeSets[addr] = sub
			t.SetMergeSet(sub)
		}
		for _, sig := range order {
			newSets = append(newSets, subsets[sig])
		}
	}
	ctx.MergeSets = newSets
	ctx.Log.Infow("partition engine divided by signature", "count", len(newSets))
	return nil
}

// recursiveSignature renders t's full structural signature,
// descending through Type/Params edges and stopping at placeholders
// (whose own name already captures their identity) or named base
// types. The result is memoized on t.Sig since the same subtree is
// visited repeatedly while refining sibling merge-sets.
func recursiveSignature(t *dwtypes.Type, types *dwtypes.TypeTable, depth int) (string, error) {
	if t.Sig != "" {
		return t.Sig, nil
	}
	if depth >= maxSigDepth {
		return "", fmt.Errorf("partition: signature recursion exceeded %d at type %#x (%s)", maxSigDepth, t.Addr, t.SymbolName())
	}
	switch t.MetaType {
	case dwtypes.MetaPlaceholder, dwtypes.MetaBase, dwtypes.MetaUnspecified:
		return t.SymbolName(), nil
	}

	var b strings.Builder
	if t.Declaration {
		fmt.Fprintf(&b, "%s+%s", t.MetaType, t.SymbolName())
	} else {
		fmt.Fprintf(&b, "%s %s", t.MetaType, t.SymbolName())
	}

	if t.Type != dwtypes.NoAddr {
		sub := types.Get(t.Type)
		if sub == nil {
			return "", fmt.Errorf("partition: type %#x has dangling type edge %#x", t.Addr, t.Type)
		}
		subSig, err := recursiveSignature(sub, types, depth+1)
		if err != nil {
			return "", err
		}
		b.WriteByte(' ')
		b.WriteString(subSig)
	}

	switch t.ParamKind {
	case dwtypes.ParamMembers:
		b.WriteString(" {")
		for i, m := range t.Params {
			if i > 0 {
				b.WriteByte(',')
			}
			mt := types.Get(m.Value)
			if mt == nil {
				return "", fmt.Errorf("partition: member %q of %#x has dangling value edge %#x", m.SymbolName(), t.Addr, m.Value)
			}
			subSig, err := recursiveSignature(mt, types, depth+1)
			if err != nil {
				return "", err
			}
			b.WriteString(m.SymbolName())
			b.WriteByte(':')
			b.WriteString(subSig)
		}
		b.WriteByte('}')
	case dwtypes.ParamValues:
		b.WriteString(" {")
		for i, v := range t.Params {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%s:%d", v.SymbolName(), v.Value)
		}
		b.WriteByte('}')
	case dwtypes.ParamParams:
		b.WriteByte('(')
		for i, p := range t.Params {
			if i > 0 {
				b.WriteByte(',')
			}
			pt := types.Get(p.Value)
			if pt == nil {
				return "", fmt.Errorf("partition: param %d of %#x has dangling value edge %#x", i, t.Addr, p.Value)
			}
			subSig, err := recursiveSignature(pt, types, depth+1)
			if err != nil {
				return "", err
			}
			b.WriteString(subSig)
		}
		b.WriteByte(')')
	}

	sum := blake3.Sum256([]byte(b.String()))
	sig := hex.EncodeToString(sum[:])
	t.Sig = sig
	return sig, nil
}

// divideByDependents repeatedly splits each merge-set by the tuple of
// dependent merge-sets its members reach through a placeholder,
// re-grouping until a pass leaves the number of merge-sets unchanged.
// Two structurally-identical types can still be distinct if the
// placeholders they (transitively) point at turn out, once those
// placeholders' own merge-sets stabilize, to represent different
// things.
func divideByDependents(ctx *dwtypes.Context) {
	sets := ctx.MergeSets
	for {
		var newSets []*dwtypes.MergeSet
		for _, ms := range sets {
			newSets = append(newSets, divideOneByDependents(ms, ctx)...)
		}
		if len(newSets) == len(sets) {
			sets = newSets
			break
		}
		sets = newSets
		for _, ms := range sets {
			for addr := range ms.Members {
				ctx.TypeMergeSets[addr] = ms
				ctx.Types.Get(addr).SetMergeSet(ms)
			}
		}
	}
	ctx.MergeSets = sets
	ctx.Log.Infow("partition engine divided by dependents", "count", len(sets))
}

func divideOneByDependents(ms *dwtypes.MergeSet, ctx *dwtypes.Context) []*dwtypes.MergeSet {
	type bucket struct {
		key string
		set *dwtypes.MergeSet
	}
	buckets := make(map[string]*dwtypes.MergeSet)
	var order []string
	for addr := range ms.Members {
		t := ctx.Types.Get(addr)
		deps := dependentMergeSetKeys(t, ctx)
		key := strings.Join(deps, "\x1f")
		b, ok := buckets[key]
		if !ok {
			b = dwtypes.NewMergeSet()
			buckets[key] = b
			order = append(order, key)
		}
		b.Add(addr)
	}
	out := make([]*dwtypes.MergeSet, 0, len(order))
	for _, k := range order {
		out = append(out, buckets[k])
	}
	return out
}

// dependentMergeSetKeys walks t's Type/Params/Members edges until it
// hits a placeholder, recording a stable identifier for the
// placeholder target's current merge-set membership. Unlike the
// Python original, which uses id(set) (object identity) as the dict
// key, this builds a sorted, stringified key from merge-set member
// addrs so that equal membership always compares equal even though Go
// doesn't let us hash a pointer into a map key the same way twice
// across rebuilt sets.
func dependentMergeSetKeys(t *dwtypes.Type, ctx *dwtypes.Context) []string {
	var deps []string
	var walk func(n *dwtypes.Type)
	seen := make(map[dwtypes.Addr]struct{})
	walk = func(n *dwtypes.Type) {
		if n == nil {
			return
		}
		if _, ok := seen[n.Addr]; ok {
			return
		}
		seen[n.Addr] = struct{}{}
		if n.MetaType == dwtypes.MetaPlaceholder {
			if ms, ok := ctx.TypeMergeSets[n.RealType]; ok {
				deps = append(deps, mergeSetKey(ms))
			} else {
				deps = append(deps, "?"+fmt.Sprint(n.RealType))
			}
			return
		}
		if n.Type != dwtypes.NoAddr {
			walk(ctx.Types.Get(n.Type))
		}
		switch n.ParamKind {
		case dwtypes.ParamMembers, dwtypes.ParamParams:
			for _, p := range n.Params {
				walk(ctx.Types.Get(p.Value))
			}
		}
	}
	walk(t)
	sort.Strings(deps)
	return deps
}

func mergeSetKey(ms *dwtypes.MergeSet) string {
	addrs := make([]int, 0, len(ms.Members))
	for a := range ms.Members {
		addrs = append(addrs, int(a))
	}
	sort.Ints(addrs)
	var b strings.Builder
	for i, a := range addrs {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%x", a)
	}
	return b.String()
}

// electRepresentatives marks, for every merge-set with more than one
// member, its lowest-addr member Chosen and redirects every other
// member's ReplacedBy at it. Choosing the lowest addr (rather than an
// arbitrary set member, as the original does) makes the result
// reproducible across runs over identical input.
func electRepresentatives(ctx *dwtypes.Context) {
	for _, ms := range ctx.MergeSets {
		if len(ms.Members) <= 1 {
			continue
		}
		var rep dwtypes.Addr = -1
		for addr := range ms.Members {
			if rep == -1 || addr < rep {
				rep = addr
			}
		}
		repType := ctx.Types.Get(rep)
		repType.Chosen = true
		for addr := range ms.Members {
			if addr == rep {
				continue
			}
			ctx.Types.Get(addr).ReplacedBy = rep
		}
	}
}
