package classify

import (
	"context"
	"strings"
	"unicode"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
)

// Curated token sets. Matching is per whole token and case-insensitive, so
// "Boardman" never matches "board".
var (
	organizationKeywords = []string{
		"foundation", "trust", "inc", "incorporated", "llc", "ltd", "limited", "corp",
		"corporation", "company", "co", "group", "holdings", "partners", "associates",
		"organization", "organisation", "institute", "university", "college", "school",
		"bank", "capital", "fund", "investments", "management", "enterprises", "ventures",
		"airlines", "airways", "aviation", "charter", "society", "association", "council",
		"committee", "board", "department", "agency", "bureau", "office", "court",
		"police", "sheriff", "church", "hospital", "clinic", "museum", "magazine",
		"news", "times", "press", "records", "studios", "gmbh", "plc", "lp", "llp",
	}
	organizationAcronyms = []string{
		"FBI", "CIA", "DOJ", "IRS", "SEC", "NSA", "DEA", "ATF", "FAA", "NYPD", "LAPD",
		"PBPD", "USVI", "UN", "NASA", "MIT", "JPMORGAN", "JPM", "HSBC", "UBS",
	}
	locationKeywords = []string{
		"island", "islands", "cay", "beach", "ranch", "avenue", "ave", "street", "st",
		"road", "rd", "boulevard", "blvd", "drive", "estate", "airport", "airfield",
		"county", "city", "state", "province", "bay", "harbor", "harbour", "port",
		"mountain", "valley", "river", "heights", "village",
	}
	locationNames = []string{
		"new york", "palm beach", "new mexico", "paris", "london", "santa fe",
		"little st james", "great st james", "st thomas", "virgin islands", "teterboro",
		"florida", "manhattan", "miami",
	}
	// A leading honorific marks a person.
	personTitles = []string{"mr", "mrs", "ms", "miss", "dr", "prof", "sir", "dame", "lady", "lord"}
)

// Keywords is the deterministic keyword tier. Keywords are checked before
// the name-shape heuristic.
type Keywords struct {
	org      map[string]struct{}
	acronyms map[string]struct{}
	loc      map[string]struct{}
	places   []string
	titles   map[string]struct{}
}

// NewKeywords returns the classifier with the built-in token sets.
func NewKeywords() *Keywords {
	return &Keywords{
		org:      toSet(organizationKeywords, strings.ToLower),
		acronyms: toSet(organizationAcronyms, strings.ToUpper),
		loc:      toSet(locationKeywords, strings.ToLower),
		places:   locationNames,
		titles:   toSet(personTitles, strings.ToLower),
	}
}

// WithOrganizationKeywords adds curated organization tokens. Tokens are
// matched case-insensitively unless they are all upper case, in which case
// they are treated as acronyms.
func (k *Keywords) WithOrganizationKeywords(tokens ...string) *Keywords {
	for _, t := range tokens {
		if isUpper(t) {
			k.acronyms[t] = struct{}{}
		} else {
			k.org[strings.ToLower(t)] = struct{}{}
		}
	}
	return k
}

// WithLocationKeywords adds curated location tokens.
func (k *Keywords) WithLocationKeywords(tokens ...string) *Keywords {
	for _, t := range tokens {
		k.loc[strings.ToLower(t)] = struct{}{}
	}
	return k
}

func (k *Keywords) Name() string { return "keywords" }

// Classify implements Classifier.
func (k *Keywords) Classify(_ context.Context, name string, _ *common.MentionContext) (Result, error) {
	tokens := Tokens(name)
	if len(tokens) == 0 {
		return Result{}, nil
	}

	if _, ok := k.titles[strings.ToLower(tokens[0])]; ok && len(tokens) > 1 {
		return Result{Type: common.EntityPerson, Confidence: 0.9, Tier: k.Name(), Conclusive: true}, nil
	}

	orgHit, locHit := false, false
	for _, tok := range tokens {
		lower := strings.ToLower(tok)
		if _, ok := k.org[lower]; ok {
			orgHit = true
		}
		if _, ok := k.acronyms[tok]; ok {
			orgHit = true
		}
		if _, ok := k.loc[lower]; ok {
			locHit = true
		}
	}
	if k.matchesPlace(tokens) {
		locHit = true
	}

	switch {
	case orgHit && !locHit:
		return Result{Type: common.EntityOrganization, Confidence: 0.85, Tier: k.Name(), Conclusive: true}, nil
	case locHit && !orgHit:
		return Result{Type: common.EntityLocation, Confidence: 0.85, Tier: k.Name(), Conclusive: true}, nil
	case orgHit && locHit:
		// "Palm Beach Police" is an organization named after a place: the
		// last keyword decides.
		last := strings.ToLower(tokens[len(tokens)-1])
		if _, ok := k.loc[last]; ok {
			return Result{Type: common.EntityLocation, Confidence: 0.6, Tier: k.Name(), Conclusive: true}, nil
		}
		return Result{Type: common.EntityOrganization, Confidence: 0.6, Tier: k.Name(), Conclusive: true}, nil
	}

	if looksLikePersonName(tokens) {
		return Result{Type: common.EntityPerson, Confidence: 0.7, Tier: "name-shape", Conclusive: true}, nil
	}
	return Result{}, nil
}

func (k *Keywords) matchesPlace(tokens []string) bool {
	joined := " " + strings.ToLower(strings.Join(tokens, " ")) + " "
	for _, p := range k.places {
		if strings.Contains(joined, " "+p+" ") {
			return true
		}
	}
	return false
}

// Tokens splits a name on anything that is not a letter, digit, apostrophe
// or period inside a word. Surrounding periods are trimmed so "Inc." yields
// "Inc".
func Tokens(name string) []string {
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '.' || r == '&')
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".'")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// looksLikePersonName is the name-shape heuristic: two to four capitalized
// alphabetic tokens, initials allowed.
func looksLikePersonName(tokens []string) bool {
	if len(tokens) < 2 || len(tokens) > 4 {
		return false
	}
	for _, tok := range tokens {
		runes := []rune(tok)
		if !unicode.IsUpper(runes[0]) {
			return false
		}
		for _, r := range runes {
			if !unicode.IsLetter(r) && r != '\'' && r != '-' && r != '.' {
				return false
			}
		}
	}
	return true
}

func isUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

func toSet(values []string, fold func(string) string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[fold(v)] = struct{}{}
	}
	return out
}
