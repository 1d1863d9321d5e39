// Package normalize turns raw surface text into normalized names and
// applies the declarative correction rules.
package normalize

import "strings"

// maxPasses bounds the fixpoint loop. The default rules only ever shorten
// a name so they converge long before this.
const maxPasses = 32

// Normalizer applies the normalize-stage rules of a rule table. It holds no
// mutable state and is safe for concurrent use.
type Normalizer struct {
	rules []Rule
}

// New builds a Normalizer from the normalize stage of t.
func New(t RuleTable) *Normalizer {
	return &Normalizer{rules: t.Stage(StageNormalize)}
}

var defaultNormalizer = New(DefaultRules())

// Default returns the Normalizer for the built-in rule table.
func Default() *Normalizer {
	return defaultNormalizer
}

// Normalize applies the default rules.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// Normalize returns the normalized form of raw. It never returns an empty
// string for input that contains a non-space character; when the rules
// would erase everything the whitespace-collapsed input is returned.
//
// The rules are repeated until nothing changes, so the result is a fixpoint
// and Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(raw string) string {
	base := collapseWhitespace(raw)
	if base == "" {
		return ""
	}

	cur := base
	for range maxPasses {
		next := cur
		for _, r := range n.rules {
			next = r.Apply(next)
		}
		next = collapseWhitespace(next)
		if next == cur {
			break
		}
		cur = next
	}

	if cur == "" {
		return base
	}
	return cur
}

// Key is the lookup key of a name: whitespace collapsed and lower-cased.
func Key(name string) string {
	return strings.ToLower(collapseWhitespace(name))
}

// HasDuplicateLeadingToken reports whether name still starts with a
// repeated token, the signature of the OCR duplication artifact.
func HasDuplicateLeadingToken(name string) bool {
	tokens := strings.Fields(name)
	return len(tokens) >= 2 && tokens[0] == tokens[1]
}

// Expander applies the expand-stage rules for the resolver.
type Expander struct {
	rules []Rule
}

// NewExpander builds an Expander from the expand stage of t.
func NewExpander(t RuleTable) *Expander {
	return &Expander{rules: t.Stage(StageExpand)}
}

// Expand applies every expand rule in order and returns the rewritten name
// together with the names of the rules that changed it. known reports
// whether a candidate name is known to the mapping store; a rule marked
// RequireMatch only keeps its rewrite when known returns true.
func (e *Expander) Expand(name string, known func(string) bool) (string, []string) {
	var applied []string
	cur := name
	for _, r := range e.rules {
		next := collapseWhitespace(r.Apply(cur))
		if next == cur || next == "" {
			continue
		}
		if r.RequireMatch && (known == nil || !known(next)) {
			continue
		}
		cur = next
		applied = append(applied, r.Name)
	}
	return cur, applied
}
