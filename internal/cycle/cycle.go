// Package cycle implements the Cycle Breaker phase: it walks the full
// type graph, finds cycles, and cuts each one by redirecting a
// pointer-family edge through a synthesized placeholder entry so that
// every later phase can assume the graph is acyclic.
package cycle

import (
	"fmt"

	"github.com/ThinkerYzu/trace-dwarf/internal/dwtypes"
)

// pathNode is a persistent cons cell used to represent the ancestor
// chain of the type currently being visited. Pushing a child task
// only ever allocates one new node and shares the rest of the chain
// with its siblings, so the DFS below stays cheap even on the deep,
// branchy graphs DWARF produces; only the (rare) moment a cycle is
// actually found pays the cost of materializing the chain into a
// slice.
type pathNode struct {
	addr dwtypes.Addr
	prev *pathNode
}

func materialize(p *pathNode) []dwtypes.Addr {
	var out []dwtypes.Addr
	for n := p; n != nil; n = n.prev {
		out = append(out, n.addr)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func indexOfAddr(path []dwtypes.Addr, addr dwtypes.Addr) int {
	for i, a := range path {
		if a == addr {
			return i
		}
	}
	return -1
}

type task struct {
	addr      dwtypes.Addr
	path      *pathNode
	startAddr dwtypes.Addr
}

// Run finds every cycle reachable through a type's Type edge or its
// member/parameter values and cuts it by inserting a placeholder.
// ctx.PlaceholderNames is populated with the name of every type a
// placeholder now stands in for, so later phases can recognize that a
// cut has already happened for that name. Each call starts from an
// empty set.
func Run(ctx *dwtypes.Context) {
	placeholderNames := make(map[string]struct{})
	ctx.PlaceholderNames = placeholderNames
	if ctx.Types.Len() == 0 {
		return
	}

	addrs := ctx.Types.Addrs()
	next := 0
	var tasks []task
	popCnt := 0

	for {
		if len(tasks) == 0 {
			if next >= len(addrs) {
				break
			}
			start := addrs[next]
			next++
			tasks = append(tasks, task{addr: start, startAddr: start})
			continue
		}

		cur := tasks[len(tasks)-1]
		tasks = tasks[:len(tasks)-1]
		popCnt++
		if popCnt%10000 == 0 {
			ctx.Log.Debugw("cycle breaker progress", "tasks_popped", popCnt)
		}
		t := ctx.Types.Get(cur.addr)
		if t == nil {
			continue
		}

		if t.Visited >= 0 && t.Visited != cur.startAddr {
			continue
		}

		if t.Visited == cur.startAddr {
			ancestors := materialize(cur.path)
			idx := indexOfAddr(ancestors, t.Addr)
			if idx >= 0 {
				circularPath := ancestors[idx:]
				breakCircularPath(circularPath, ctx.Types, placeholderNames, ctx.Log)
				continue
			}
			if !t.ToLoopHead {
				continue
			}
			// Revisited under the current root, off the materialized
			// path, but downstream of an earlier cut (ToLoopHead):
			// fall through and re-push its children so cycles hiding
			// below that cut are still found instead of being
			// silently skipped.
		}

		t.Visited = cur.startAddr
		withSelf := &pathNode{addr: t.Addr, prev: cur.path}

		pushChild := func(child dwtypes.Addr) {
			if child == dwtypes.NoAddr {
				return
			}
			tasks = append(tasks, task{addr: child, path: withSelf, startAddr: cur.startAddr})
		}

		switch t.ParamKind {
		case dwtypes.ParamMembers:
			for _, p := range t.Params {
				pushChild(p.Value)
			}
		}
		pushChild(t.Type)
		switch t.ParamKind {
		case dwtypes.ParamParams:
			for _, p := range t.Params {
				pushChild(p.Value)
			}
		}
	}

	createPlaceholders(ctx.Types, placeholderNames)
}

// breakCircularPath cuts the cycle described by circularPath: the
// type at index i has an out-edge (its Type edge or a member/param
// value) to the addr at index i+1, wrapping back to index 0 at the
// end; only the pointer-family types on it are candidates for a cut. It
// prefers reusing a placeholder already created for a type of the
// same name over minting a new one, and otherwise cuts the last
// pointer-family edge in the path whose target is named, so that as
// many future loops through that name are broken as possible in one
// step.
func breakCircularPath(circularPath []dwtypes.Addr, types *dwtypes.TypeTable, placeholderNames map[string]struct{}, log dwtypes.Logger) {
	if tryExistingPlaceholders(circularPath, types, placeholderNames) {
		return
	}

	var ptrs []dwtypes.Addr
	for _, addr := range circularPath {
		t := types.Get(addr)
		if !t.MetaType.PointerLike() {
			continue
		}
		pointed := types.Get(t.Type)
		if pointed != nil && pointed.Named() {
			ptrs = append(ptrs, addr)
		}
	}
	if len(ptrs) == 0 {
		log.Warnw("no pointer-family type found in circular path", "path_len", len(circularPath))
		return
	}

	cutAddr := ptrs[len(ptrs)-1]
	cut := types.Get(cutAddr)
	placeholderNames[types.Get(cut.Type).SymbolName()] = struct{}{}
	cut.Type = createPlaceholder(cut.Type, types)

	idx := indexOfAddr(circularPath, cutAddr)
	for _, addr := range circularPath[idx+1:] {
		types.Get(addr).ToLoopHead = true
	}
}

// tryExistingPlaceholders looks for a pointer-family type in the path
// whose target already shares a name with an existing placeholder,
// reusing that name's cut instead of minting an unrelated one.
func tryExistingPlaceholders(circularPath []dwtypes.Addr, types *dwtypes.TypeTable, placeholderNames map[string]struct{}) bool {
	for _, addr := range circularPath {
		t := types.Get(addr)
		if !t.MetaType.PointerLike() {
			continue
		}
		pointed := types.Get(t.Type)
		if pointed == nil {
			continue
		}
		if _, ok := placeholderNames[pointed.SymbolName()]; !ok {
			continue
		}
		if pointed.MetaType != dwtypes.MetaPlaceholder {
			t.Type = createPlaceholder(t.Type, types)
		}
		idx := indexOfAddr(circularPath, addr)
		for _, a := range circularPath[idx+1:] {
			types.Get(a).ToLoopHead = true
		}
		return true
	}
	return false
}

// createPlaceholders makes one final sweep for pointer-family types
// whose target carries a name a placeholder has already been minted
// for elsewhere in the graph, so that every occurrence of a cut name
// ends up pointing at the same placeholder rather than leaving some
// edges still pointing at the real (and still cyclic) type.
func createPlaceholders(types *dwtypes.TypeTable, placeholderNames map[string]struct{}) {
	for _, addr := range types.Addrs() {
		t := types.Get(addr)
		if !t.MetaType.PointerLike() {
			continue
		}
		pointed := types.Get(t.Type)
		if pointed == nil || pointed.MetaType == dwtypes.MetaPlaceholder {
			continue
		}
		if _, ok := placeholderNames[pointed.SymbolName()]; ok {
			t.Type = createPlaceholder(t.Type, types)
		}
	}
}

func createPlaceholder(addr dwtypes.Addr, types *dwtypes.TypeTable) dwtypes.Addr {
	placeholderAddr := addr | dwtypes.PlaceholderFlag
	if types.Has(placeholderAddr) {
		return placeholderAddr
	}
	real := types.Get(addr)
	ph := dwtypes.NewType(placeholderAddr, dwtypes.MetaPlaceholder)
	ph.Name = "<placeholder>:" + real.SymbolName()
	ph.RealType = addr
	types.Insert(ph)
	return placeholderAddr
}

// CheckAcyclic re-walks the full graph after cutting and fails loudly
// if a cycle still exists: a bug in the cut logic above, not a normal
// outcome, so this returns an error the pipeline driver treats as
// fatal rather than something a phase silently tolerates.
func CheckAcyclic(ctx *dwtypes.Context) error {
	ctx.Types.Range(func(t *dwtypes.Type) {
		t.Visited = dwtypes.NoAddr
	})

	addrs := ctx.Types.Addrs()
	next := 0
	var tasks []task

	for {
		if len(tasks) == 0 {
			if next >= len(addrs) {
				return nil
			}
			tasks = append(tasks, task{addr: addrs[next]})
			next++
			continue
		}
		cur := tasks[len(tasks)-1]
		tasks = tasks[:len(tasks)-1]
		t := ctx.Types.Get(cur.addr)
		if t == nil {
			continue
		}
		if t.Visited >= 0 {
			if indexOfAddr(materialize(cur.path), t.Addr) >= 0 {
				return fmt.Errorf("cycle: circular type %s", t.SymbolName())
			}
			continue
		}
		t.Visited = 1
		withSelf := &pathNode{addr: t.Addr, prev: cur.path}

		pushChild := func(child dwtypes.Addr) {
			if child == dwtypes.NoAddr {
				return
			}
			tasks = append(tasks, task{addr: child, path: withSelf})
		}
		switch t.ParamKind {
		case dwtypes.ParamMembers:
			for _, p := range t.Params {
				pushChild(p.Value)
			}
		}
		pushChild(t.Type)
		switch t.ParamKind {
		case dwtypes.ParamParams:
			for _, p := range t.Params {
				pushChild(p.Value)
			}
		}
	}
}
