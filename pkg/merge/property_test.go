package merge

import (
	"reflect"
	"testing"

	"pgregory.net/rapid"
)

func drawStringList(t *rapid.T, label string) []any {
	items := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,4}`), 0, 8).Draw(t, label)
	list := make([]any, len(items))
	for i, s := range items {
		list[i] = s
	}
	return list
}

// Every element of L1 ∪ L2 appears exactly once, with L1's elements in
// their original relative order followed by L2's unseen elements in theirs.
func TestSetUnionStableLaw(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l1 := drawStringList(t, "l1")
		l2 := drawStringList(t, "l2")

		result := SetUnionStable(l1, l2)

		seen := make(map[any]int)
		for _, item := range result {
			seen[item]++
		}
		for item, count := range seen {
			if count != 1 {
				t.Fatalf("element %v appears %d times", item, count)
			}
		}

		expected := make([]any, 0, len(l1)+len(l2))
		mark := make(map[any]struct{})
		for _, item := range append(append([]any{}, l1...), l2...) {
			if _, ok := mark[item]; ok {
				continue
			}
			mark[item] = struct{}{}
			expected = append(expected, item)
		}
		if !reflect.DeepEqual(result, expected) {
			t.Fatalf("got %v, want %v", result, expected)
		}
	})
}

func TestSetUnionStableIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := drawStringList(t, "l")
		once := SetUnionStable(l, nil)
		twice := SetUnionStable(once, l)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("union not idempotent: %v vs %v", once, twice)
		}
	})
}

func drawFragment(t *rapid.T, label string, domain string) Document {
	name := rapid.StringMatching(`[a-z]{2,6}`).Draw(t, label+"_name")
	if domain == "security" {
		name = "security-" + name
	}
	return Document{
		"kind": "GovernanceFragment",
		"metadata": Document{
			"name":   name,
			"domain": domain,
		},
		"rules": Document{
			"material": Document{
				"stack": Document{
					"posture":           rapid.SampledFrom([]string{"open", "strict", "audit"}).Draw(t, label+"_posture"),
					"allowed_libraries": drawStringList(t, label+"_allowed"),
					"banned_libraries":  drawStringList(t, label+"_banned"),
				},
			},
		},
	}
}

// Interleaving non-security fragments among security fragments never
// changes the merged security-governed fields: the result equals merging
// with all security fragments explicitly moved to the end.
func TestSecurityOrderingInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numSec := rapid.IntRange(1, 3).Draw(t, "num_security")
		numOther := rapid.IntRange(1, 3).Draw(t, "num_other")

		var security, other []Document
		for i := 0; i < numSec; i++ {
			security = append(security, drawFragment(t, rapid.StringMatching(`s[0-9]`).Draw(t, "slabel"), "security"))
		}
		for i := 0; i < numOther; i++ {
			other = append(other, drawFragment(t, rapid.StringMatching(`o[0-9]`).Draw(t, "olabel"), "stack"))
		}

		// Build a random interleaving that preserves each group's order.
		interleaved := make([]Document, 0, numSec+numOther)
		si, oi := 0, 0
		for si < numSec || oi < numOther {
			takeSecurity := false
			switch {
			case si == numSec:
				takeSecurity = false
			case oi == numOther:
				takeSecurity = true
			default:
				takeSecurity = rapid.Bool().Draw(t, "pick")
			}
			if takeSecurity {
				interleaved = append(interleaved, security[si])
				si++
			} else {
				interleaved = append(interleaved, other[oi])
				oi++
			}
		}

		canonical := append(append([]Document{}, other...), security...)

		got := MergeDocuments(interleaved, nil)
		want := MergeDocuments(canonical, nil)

		gotStack := got["rules"].(Document)["material"].(Document)["stack"].(Document)
		wantStack := want["rules"].(Document)["material"].(Document)["stack"].(Document)
		if !reflect.DeepEqual(gotStack, wantStack) {
			t.Fatalf("security-governed fields differ:\ngot  %v\nwant %v", gotStack, wantStack)
		}
	})
}

// After the veto pass, allowed_libraries never intersects banned_libraries
// and nothing else is removed.
func TestVetoBackstopProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		allowed := drawStringList(t, "allowed")
		banned := drawStringList(t, "banned")

		doc := Document{"rules": Document{"material": Document{"stack": Document{
			"allowed_libraries": allowed,
			"banned_libraries":  banned,
		}}}}

		result, vetoed := ApplySecurityVeto(doc)
		stack := result["rules"].(Document)["material"].(Document)["stack"].(Document)
		after, _ := stack["allowed_libraries"].([]any)

		bannedSet := make(map[any]struct{})
		for _, b := range banned {
			bannedSet[b] = struct{}{}
		}
		for _, a := range after {
			if _, ok := bannedSet[a]; ok {
				t.Fatalf("banned library %v survived the veto", a)
			}
		}
		// Survivors are exactly the non-banned entries in original order.
		expected := make([]any, 0, len(allowed))
		for _, a := range allowed {
			if _, ok := bannedSet[a]; !ok {
				expected = append(expected, a)
			}
		}
		if !reflect.DeepEqual(append([]any{}, after...), expected) {
			t.Fatalf("veto removed the wrong entries: got %v, want %v", after, expected)
		}
		if len(vetoed)+len(expected) != len(allowed) {
			t.Fatalf("vetoed %d + kept %d != allowed %d", len(vetoed), len(expected), len(allowed))
		}
	})
}

// Merging a single well-formed document is the identity, modulo the veto
// pass which is a no-op when no banned library is also allowed.
func TestIdentityMergeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := drawFragment(t, "solo", "stack")
		stack := doc["rules"].(Document)["material"].(Document)["stack"].(Document)
		stack["banned_libraries"] = []any{}

		merged := MergeDocuments([]Document{doc}, nil)
		if !reflect.DeepEqual(merged, doc) {
			t.Fatalf("single-document merge is not identity:\ngot  %v\nwant %v", merged, doc)
		}
	})
}
