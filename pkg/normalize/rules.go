package normalize

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Stage selects which pipeline step consumes a rule.
type Stage string

const (
	// StageNormalize rules run inside Normalize and must be pure string
	// cleanups.
	StageNormalize Stage = "normalize"
	// StageExpand rules run in the resolver after the first mapping lookup
	// missed (titles, abbreviations, name order).
	StageExpand Stage = "expand"
)

// Action is what a rule does to a name.
type Action string

const (
	ActionCollapseWhitespace    Action = "collapse_whitespace"
	ActionCollapseDuplicateLead Action = "collapse_duplicate_leading_token"
	ActionStripTrailingPunct    Action = "strip_trailing_punct"
	ActionCollapseSeparators    Action = "collapse_separators"
	ActionReplace               Action = "replace"
	ActionExpandAbbreviation    Action = "expand_abbreviation"
	ActionStripTitle            Action = "strip_title"
	ActionSwapNameOrder         Action = "swap_name_order"
)

const defaultTrailingPunct = ",;:.-_/|\\*#~`"

// Rule is one declarative correction. Pattern is a regular expression for
// ActionReplace and a character set for ActionStripTrailingPunct. Match
// holds the leading tokens for ActionExpandAbbreviation and
// ActionStripTitle.
type Rule struct {
	Name        string   `yaml:"name"`
	Stage       Stage    `yaml:"stage"`
	Action      Action   `yaml:"action"`
	Pattern     string   `yaml:"pattern,omitempty"`
	Replacement string   `yaml:"replacement,omitempty"`
	Match       []string `yaml:"match,omitempty"`
	// RequireMatch keeps an expand rule's rewrite only when the rewritten
	// name is known to the mapping store.
	RequireMatch bool `yaml:"require_match,omitempty"`

	re *regexp.Regexp
}

// RuleTable is an ordered list of rules. Order is significant.
type RuleTable struct {
	Rules []Rule `yaml:"rules"`
}

var separatorRunRe = regexp.MustCompile(`([,;|])(?:\s*[,;|])+`)
var spaceBeforeSepRe = regexp.MustCompile(`\s+([,;])`)

// DefaultRules is the built-in table: the three normalizer steps plus the
// common honorifics.
func DefaultRules() RuleTable {
	t := RuleTable{Rules: []Rule{
		{Name: "whitespace", Stage: StageNormalize, Action: ActionCollapseWhitespace},
		{Name: "ocr-duplicate-leading-token", Stage: StageNormalize, Action: ActionCollapseDuplicateLead},
		{Name: "trailing-punctuation", Stage: StageNormalize, Action: ActionStripTrailingPunct},
		{Name: "repeated-separators", Stage: StageNormalize, Action: ActionCollapseSeparators},
		{
			Name:   "titles",
			Stage:  StageExpand,
			Action: ActionStripTitle,
			Match:  []string{"Mr", "Mrs", "Ms", "Miss", "Dr", "Prof", "Sir", "Dame", "Hon", "Rev", "Sen", "Gov", "Rep"},
		},
		{Name: "last-comma-first", Stage: StageExpand, Action: ActionSwapNameOrder, RequireMatch: true},
	}}
	_ = t.compile()
	return t
}

// ParseRules decodes a YAML rule table.
func ParseRules(data []byte) (RuleTable, error) {
	var t RuleTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return RuleTable{}, fmt.Errorf("failed to parse rule table: %w", err)
	}
	if err := t.compile(); err != nil {
		return RuleTable{}, err
	}
	return t, nil
}

// LoadRules reads a YAML rule table from path.
func LoadRules(path string) (RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleTable{}, fmt.Errorf("failed to read rule table: %w", err)
	}
	return ParseRules(data)
}

func (t *RuleTable) compile() error {
	for i := range t.Rules {
		r := &t.Rules[i]
		if r.Stage == "" {
			r.Stage = StageNormalize
		}
		if r.Stage != StageNormalize && r.Stage != StageExpand {
			return fmt.Errorf("rule %q: unknown stage %q", r.Name, r.Stage)
		}
		switch r.Action {
		case ActionReplace:
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return fmt.Errorf("rule %q: invalid pattern: %w", r.Name, err)
			}
			r.re = re
		case ActionExpandAbbreviation:
			if len(r.Match) == 0 || r.Replacement == "" {
				return fmt.Errorf("rule %q: expand_abbreviation needs match and replacement", r.Name)
			}
		case ActionStripTitle:
			if len(r.Match) == 0 {
				return fmt.Errorf("rule %q: strip_title needs match", r.Name)
			}
		case ActionCollapseWhitespace, ActionCollapseDuplicateLead, ActionStripTrailingPunct,
			ActionCollapseSeparators, ActionSwapNameOrder:
		default:
			return fmt.Errorf("rule %q: unknown action %q", r.Name, r.Action)
		}
	}
	return nil
}

// Stage returns the rules of one stage, in table order.
func (t RuleTable) Stage(s Stage) []Rule {
	out := make([]Rule, 0, len(t.Rules))
	for _, r := range t.Rules {
		if r.Stage == s {
			out = append(out, r)
		}
	}
	return out
}

// Merge appends the rules of other after t's.
func (t RuleTable) Merge(other RuleTable) RuleTable {
	rules := make([]Rule, 0, len(t.Rules)+len(other.Rules))
	rules = append(rules, t.Rules...)
	rules = append(rules, other.Rules...)
	return RuleTable{Rules: rules}
}

// Apply runs the rule once on s.
func (r Rule) Apply(s string) string {
	switch r.Action {
	case ActionCollapseWhitespace:
		return collapseWhitespace(s)
	case ActionCollapseDuplicateLead:
		return collapseDuplicateLeadingToken(s)
	case ActionStripTrailingPunct:
		set := r.Pattern
		if set == "" {
			set = defaultTrailingPunct
		}
		return strings.TrimRight(s, set+" \t")
	case ActionCollapseSeparators:
		s = separatorRunRe.ReplaceAllString(s, "$1")
		return spaceBeforeSepRe.ReplaceAllString(s, "$1")
	case ActionReplace:
		if r.re == nil {
			return s
		}
		return r.re.ReplaceAllString(s, r.Replacement)
	case ActionExpandAbbreviation:
		return expandLeadingToken(s, r.Match, r.Replacement)
	case ActionStripTitle:
		return stripLeadingTitles(s, r.Match)
	case ActionSwapNameOrder:
		return swapNameOrder(s)
	}
	return s
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func collapseDuplicateLeadingToken(s string) string {
	tokens := strings.Fields(s)
	if len(tokens) < 2 || tokens[0] != tokens[1] {
		return s
	}
	for len(tokens) >= 2 && tokens[0] == tokens[1] {
		tokens = tokens[1:]
	}
	return strings.Join(tokens, " ")
}

func tokenMatches(token string, candidates []string) bool {
	token = strings.TrimSuffix(token, ".")
	for _, c := range candidates {
		if strings.EqualFold(token, strings.TrimSuffix(c, ".")) {
			return true
		}
	}
	return false
}

func expandLeadingToken(s string, match []string, full string) string {
	tokens := strings.Fields(s)
	if len(tokens) < 2 || !tokenMatches(tokens[0], match) {
		return s
	}
	tokens[0] = full
	return strings.Join(tokens, " ")
}

func stripLeadingTitles(s string, titles []string) string {
	tokens := strings.Fields(s)
	for len(tokens) >= 2 && tokenMatches(tokens[0], titles) {
		tokens = tokens[1:]
	}
	return strings.Join(tokens, " ")
}

// swapNameOrder turns "Last, First [Middle]" into "First [Middle] Last".
func swapNameOrder(s string) string {
	if strings.Count(s, ",") != 1 {
		return s
	}
	parts := strings.SplitN(s, ",", 2)
	last := strings.Fields(parts[0])
	first := strings.Fields(parts[1])
	if len(last) != 1 || len(first) == 0 || len(first) > 2 {
		return s
	}
	for _, tok := range append(append([]string{}, last...), first...) {
		if !isNameToken(tok) {
			return s
		}
	}
	return strings.Join(append(first, last...), " ")
}

func isNameToken(tok string) bool {
	tok = strings.TrimSuffix(tok, ".")
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if r != '-' && r != '\'' && !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
