package merge

import (
	"reflect"
	"strings"
)

// Document is the untyped policy tree produced by YAML decoding: nested
// map[string]any, []any, and scalar values.
type Document = map[string]any

const securityNamePrefix = "security-"

// SetUnionStable concatenates base and overlay, dropping duplicates while
// preserving the order of first occurrence. Elements whose type does not
// support equality (nested maps or sequences) are appended unconditionally
// rather than causing a failure.
func SetUnionStable(base, overlay []any) []any {
	result := make([]any, 0, len(base)+len(overlay))
	seen := make(map[any]struct{}, len(base)+len(overlay))

	for _, item := range append(append([]any{}, base...), overlay...) {
		if !isComparable(item) {
			result = append(result, item)
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		result = append(result, item)
	}
	return result
}

// isComparable reports whether a value can safely be used as a map key.
// This is an explicit capability check, not an exception-driven branch.
func isComparable(v any) bool {
	if v == nil {
		return true
	}
	return reflect.TypeOf(v).Comparable()
}

// Merge deep-merges overlay onto base, consulting resolver for the
// strategy of any field where both sides hold sequences. Neither input is
// mutated. Shape mismatches never fail: any combination other than
// sequence/sequence or mapping/mapping degrades to last-write-wins, so a
// miswritten fragment may silently replace data but cannot crash the
// pipeline.
func Merge(base, overlay Document, resolver StrategyResolver) Document {
	if resolver == nil {
		resolver = DefaultResolver()
	}
	return mergeAt(base, overlay, resolver, nil)
}

func mergeAt(base, overlay Document, resolver StrategyResolver, path []string) Document {
	result := make(Document, len(base)+len(overlay))
	for k, v := range base {
		result[k] = v
	}

	for key, value := range overlay {
		existing, present := result[key]
		if !present {
			result[key] = value
			continue
		}

		fieldPath := append(append([]string{}, path...), key)

		switch ov := value.(type) {
		case []any:
			ex, ok := existing.([]any)
			if !ok {
				result[key] = value
				continue
			}
			switch resolver.Resolve(fieldPath) {
			case StrategySetUnionStable:
				result[key] = SetUnionStable(ex, ov)
			case StrategyAppend:
				merged := make([]any, 0, len(ex)+len(ov))
				merged = append(merged, ex...)
				merged = append(merged, ov...)
				result[key] = merged
			default:
				result[key] = ov
			}

		case Document:
			ex, ok := existing.(Document)
			if !ok {
				result[key] = value
				continue
			}
			result[key] = mergeAt(ex, ov, resolver, fieldPath)

		default:
			// Scalar or type mismatch: last write wins.
			result[key] = value
		}
	}
	return result
}

// IsSecurityFragment reports whether a fragment document carries security
// policy, either by domain or by the security- name prefix.
func IsSecurityFragment(doc Document) bool {
	metadata, _ := doc["metadata"].(Document)
	domain, _ := metadata["domain"].(string)
	name, _ := metadata["name"].(string)
	return domain == "security" || strings.HasPrefix(name, securityNamePrefix)
}

// ReorderForSecurity partitions fragments into non-security and security
// groups, preserving relative order within each, and applies security
// last. Whatever order the manifest author declared, security policy is
// merged after everything else and cannot be weakened by a later
// non-security fragment.
func ReorderForSecurity(fragments []Document) []Document {
	ordered := make([]Document, 0, len(fragments))
	security := make([]Document, 0, len(fragments))

	for _, frag := range fragments {
		if IsSecurityFragment(frag) {
			security = append(security, frag)
		} else {
			ordered = append(ordered, frag)
		}
	}
	return append(ordered, security...)
}

// ApplySecurityVeto strips entries from rules.material.stack's
// allowed_libraries that also appear in banned_libraries. This is the
// final backstop: an explicit ban wins regardless of merge order. The
// veto governs only this one field path. The input is not mutated, since
// its subtrees may be shared with the fragments that produced it; the
// returned document rewrites only the vetoed path.
func ApplySecurityVeto(merged Document) (Document, []string) {
	rules, _ := merged["rules"].(Document)
	material, _ := rules["material"].(Document)
	stack, _ := material["stack"].(Document)
	if stack == nil {
		return merged, nil
	}

	banned := make(map[string]struct{})
	if bannedList, ok := stack["banned_libraries"].([]any); ok {
		for _, item := range bannedList {
			if s, ok := item.(string); ok {
				banned[s] = struct{}{}
			}
		}
	}
	if len(banned) == 0 {
		return merged, nil
	}

	allowed, ok := stack["allowed_libraries"].([]any)
	if !ok {
		return merged, nil
	}

	kept := make([]any, 0, len(allowed))
	var vetoed []string
	for _, item := range allowed {
		if s, ok := item.(string); ok {
			if _, isBanned := banned[s]; isBanned {
				vetoed = append(vetoed, s)
				continue
			}
		}
		kept = append(kept, item)
	}
	if len(vetoed) == 0 {
		return merged, nil
	}

	newStack := copyDocument(stack)
	newStack["allowed_libraries"] = kept
	newMaterial := copyDocument(material)
	newMaterial["stack"] = newStack
	newRules := copyDocument(rules)
	newRules["material"] = newMaterial
	result := copyDocument(merged)
	result["rules"] = newRules
	return result, vetoed
}

func copyDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// MergeDocuments merges fragment contents in manifest order: security
// reordering first, then a fold-left strategy merge starting from the
// empty tree, then the security veto pass. Empty input yields an empty
// document.
func MergeDocuments(fragments []Document, resolver StrategyResolver) Document {
	if len(fragments) == 0 {
		return Document{}
	}

	result := Document{}
	for _, frag := range ReorderForSecurity(fragments) {
		result = Merge(result, frag, resolver)
	}
	result, _ = ApplySecurityVeto(result)
	return result
}
