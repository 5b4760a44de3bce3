package merge

// Strategy selects how two sequence values at the same field are combined.
type Strategy string

const (
	// StrategyReplace discards the base sequence in favor of the overlay.
	// This is the default for every field without an annotation.
	StrategyReplace Strategy = "replace"

	// StrategyAppend concatenates base and overlay, keeping duplicates.
	StrategyAppend Strategy = "append"

	// StrategySetUnionStable concatenates base and overlay, then drops
	// duplicates while preserving first-occurrence order.
	StrategySetUnionStable Strategy = "set-union-stable"
)

// ParseStrategy maps an annotation value to a Strategy. Unknown values
// fall back to replace, matching the permissive failure model of the
// engine as a whole.
func ParseStrategy(s string) Strategy {
	switch Strategy(s) {
	case StrategyAppend:
		return StrategyAppend
	case StrategySetUnionStable:
		return StrategySetUnionStable
	default:
		return StrategyReplace
	}
}

// StrategyResolver supplies the merge strategy for a field, identified by
// its path from the document root. Implementations are typically backed by
// a schema document with x-merge-strategy annotations; the engine itself
// never reads schema files.
type StrategyResolver interface {
	Resolve(path []string) Strategy
}

// ResolverFunc adapts a function to the StrategyResolver interface.
type ResolverFunc func(path []string) Strategy

// Resolve implements StrategyResolver.
func (f ResolverFunc) Resolve(path []string) Strategy {
	return f(path)
}

// DefaultResolver returns replace for every field. Used when no schema is
// available.
func DefaultResolver() StrategyResolver {
	return ResolverFunc(func([]string) Strategy { return StrategyReplace })
}
