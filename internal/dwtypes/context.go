package dwtypes

// Logger is the structured-logging surface every phase uses for
// progress and warning output. *zap.SugaredLogger satisfies this
// interface directly; tests can pass a no-op implementation.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infow(string, ...interface{})  {}
func (nopLogger) Warnw(string, ...interface{})  {}
func (nopLogger) Debugw(string, ...interface{}) {}

// NopLogger returns a Logger that discards everything, for tests that
// don't care about progress output.
func NopLogger() Logger { return nopLogger{} }

// Context is the explicit, per-run scratchpad threaded through every
// phase: the two owned tables plus the handful of cross-phase values
// phases after the Cycle Breaker need to see. There is no
// module-level mutable state anywhere in the pipeline; everything
// lives here.
type Context struct {
	Types       *TypeTable
	Subprograms *SubprogramTable
	Log         Logger

	// PlaceholderNames is populated by the Cycle Breaker: the set of
	// type names that have had at least one placeholder created for
	// them.
	PlaceholderNames map[string]struct{}

	// MergeSets is the Partition Engine's working set of partition
	// classes, live only during that phase's fixed-point loop.
	MergeSets []*MergeSet

	// TypeMergeSets maps every type participating in partitioning to
	// its current merge-set. Where the Partition Engine needs a
	// comparable identity for a merge-set, it derives one from the
	// set's sorted member addrs (partition.mergeSetKey), not from the
	// pointer.
	TypeMergeSets map[Addr]*MergeSet
}

// NewContext creates a Context ready for the first pipeline phase.
func NewContext(log Logger) *Context {
	if log == nil {
		log = NopLogger()
	}
	return &Context{
		Types:            NewTypeTable(),
		Subprograms:      NewSubprogramTable(),
		Log:              log,
		PlaceholderNames: make(map[string]struct{}),
		TypeMergeSets:    make(map[Addr]*MergeSet),
	}
}

// RealType follows a placeholder's RealType edge; for a non-placeholder
// it returns the type itself. This is the single place the
// "placeholders resolve through real_type" rule is implemented so
// every phase and the sink apply it identically.
func (c *Context) RealType(addr Addr) *Type {
	t := c.Types.Get(addr)
	if t == nil {
		return nil
	}
	if t.MetaType == MetaPlaceholder {
		return c.Types.Get(t.RealType)
	}
	return t
}
