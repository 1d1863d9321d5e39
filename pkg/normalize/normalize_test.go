package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Identity", "Jeffrey Epstein", "Jeffrey Epstein"},
		{"Whitespace", "  Jeffrey \t  Epstein\n", "Jeffrey Epstein"},
		{"DuplicateLeadingToken", "Ghislaine Ghislaine", "Ghislaine"},
		{"DuplicateLeadingTokenWithRest", "Je        Je Epstein", "Je Epstein"},
		{"TripleDuplicate", "Bill Bill Bill Clinton", "Bill Clinton"},
		{"DuplicateIsCaseSensitive", "Ghislaine ghislaine", "Ghislaine ghislaine"},
		{"TrailingPunctuation", "Jean-Luc Brunel.,", "Jean-Luc Brunel"},
		{"RepeatedSeparators", "Epstein,, Jeffrey", "Epstein, Jeffrey"},
		{"SpaceBeforeSeparator", "Epstein , Jeffrey", "Epstein, Jeffrey"},
		{"PunctuationExposesDuplicate", "Sarah, Sarah Kellen", "Sarah, Sarah Kellen"},
		{"OnlyPunctuation", " ... ", "..."},
		{"Empty", "", ""},
		{"Blank", "   \t ", ""},
		{"Unicode", "José  Martínez", "José Martínez"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Ghislaine Ghislaine",
		"Je        Je Epstein",
		"Doe Doe.. Doe",
		"A, , ;; B,,",
		"x x, x",
		"Kellen;;",
		"   ",
		"-- --",
		"Nadia Nadia Marcinkova ,,",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalizeNeverEmptyForNonBlank(t *testing.T) {
	for _, in := range []string{".", ",,,", " ; ", "|", "*"} {
		assert.NotEmpty(t, Normalize(in), "input %q", in)
	}
}

func TestDuplicateTokenCollapse(t *testing.T) {
	assert.Equal(t, Normalize("Ghislaine"), Normalize("Ghislaine Ghislaine"))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "jeffrey epstein", Key("  JEFFREY   Epstein "))
	assert.Equal(t, Key("Jeffrey Epstein"), Key("JEFFREY EPSTEIN"))
}

func TestHasDuplicateLeadingToken(t *testing.T) {
	assert.True(t, HasDuplicateLeadingToken("Je Je Epstein"))
	assert.False(t, HasDuplicateLeadingToken("Je Epstein"))
	assert.False(t, HasDuplicateLeadingToken("Je"))
}

func TestExpand(t *testing.T) {
	table := DefaultRules().Merge(RuleTable{Rules: []Rule{
		{Name: "je", Stage: StageExpand, Action: ActionExpandAbbreviation, Match: []string{"Je"}, Replacement: "Jeffrey"},
	}})
	require.NoError(t, table.compile())
	e := NewExpander(table)

	got, applied := e.Expand("Je Epstein", nil)
	assert.Equal(t, "Jeffrey Epstein", got)
	assert.Equal(t, []string{"je"}, applied)

	got, applied = e.Expand("Dr. Mr Larry Visoski", nil)
	assert.Equal(t, "Larry Visoski", got)
	assert.Equal(t, []string{"titles"}, applied)

	// name order swap requires the result to be known
	got, applied = e.Expand("Epstein, Jeffrey", nil)
	assert.Equal(t, "Epstein, Jeffrey", got)
	assert.Empty(t, applied)

	known := func(s string) bool { return s == "Jeffrey Epstein" }
	got, applied = e.Expand("Epstein, Jeffrey", known)
	assert.Equal(t, "Jeffrey Epstein", got)
	assert.Equal(t, []string{"last-comma-first"}, applied)

	// a lone title is not stripped
	got, _ = e.Expand("Dr", nil)
	assert.Equal(t, "Dr", got)
}

func TestParseRules(t *testing.T) {
	data := []byte(`
rules:
  - name: whitespace
    action: collapse_whitespace
  - name: llc-dots
    action: replace
    pattern: '\bL\.L\.C\b\.?'
    replacement: LLC
  - name: gmax
    stage: expand
    action: expand_abbreviation
    match: [GM]
    replacement: Ghislaine
`)
	table, err := ParseRules(data)
	require.NoError(t, err)
	require.Len(t, table.Rules, 3)
	assert.Equal(t, StageNormalize, table.Rules[0].Stage)

	n := New(table)
	assert.Equal(t, "Southern Trust LLC", n.Normalize("Southern  Trust L.L.C."))

	got, _ := NewExpander(table).Expand("GM Maxwell", nil)
	assert.Equal(t, "Ghislaine Maxwell", got)
}

func TestParseRulesRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"UnknownAction", "rules: [{name: x, action: teleport}]"},
		{"UnknownStage", "rules: [{name: x, stage: later, action: collapse_whitespace}]"},
		{"BadPattern", "rules: [{name: x, action: replace, pattern: '(']}"},
		{"AbbreviationWithoutReplacement", "rules: [{name: x, action: expand_abbreviation, match: [A]}]"},
		{"TitleWithoutMatch", "rules: [{name: x, action: strip_title}]"},
		{"NotYAML", "rules: [unterminated"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}

func TestSwapNameOrder(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Epstein, Jeffrey", "Jeffrey Epstein"},
		{"Epstein, Jeffrey E.", "Jeffrey E. Epstein"},
		{"O'Neill, Mary-Kate", "Mary-Kate O'Neill"},
		{"Trust, Southern Financial Group", "Trust, Southern Financial Group"},
		{"Palm Beach, FL 33480", "Palm Beach, FL 33480"},
		{"A, B, C", "A, B, C"},
		{"NoComma", "NoComma"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, swapNameOrder(tc.in), "input %q", tc.in)
	}
}
