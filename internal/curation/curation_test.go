package curation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
aliases:
  - variant: Je Je Epstein
    canonical: Jeffrey Epstein
    entity_type: person
exclusions:
  - name: NPA
    entity_type: location
    reason: administrative placeholder
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, f.Aliases, 1)
	assert.Equal(t, "Jeffrey Epstein", f.Aliases[0].Canonical)
	require.Len(t, f.Exclusions, 1)
	assert.Equal(t, common.EntityLocation, f.Exclusions[0].EntityType)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"AliasWithoutCanonical", "aliases:\n  - variant: x\n"},
		{"AliasBadType", "aliases:\n  - variant: x\n    canonical: y\n    entity_type: planet\n"},
		{"ExclusionWithoutTarget", "exclusions:\n  - reason: r\n"},
		{"ExclusionWithoutReason", "exclusions:\n  - name: NPA\n"},
		{"NotYAML", "aliases: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.in))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingIsEmpty(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, f.Aliases)
	assert.Empty(t, f.Exclusions)
}

func TestAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "curation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	id, err := Append(path, File{
		Aliases:    []common.AliasMapping{{Variant: "G. Maxwell", Canonical: "Ghislaine Maxwell"}},
		Exclusions: []Exclusion{{Name: "Unknown Passenger", Reason: "placeholder"}},
	}, at)
	require.NoError(t, err)
	assert.Len(t, id, 21)

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Aliases, 2)
	assert.Equal(t, common.ProvenanceCurated, f.Aliases[1].Provenance)
	assert.Equal(t, "2024-05-01T12:00:00Z", f.Aliases[1].Timestamp)
	require.Len(t, f.Exclusions, 2)
	assert.Equal(t, id, f.Exclusions[1].SubmissionID)
	assert.Empty(t, f.Exclusions[0].SubmissionID)

	_, err = Append(path, File{Exclusions: []Exclusion{{Reason: "no target"}}}, at)
	assert.ErrorIs(t, err, common.ErrMalformedInput)
}

func entities() []common.CanonicalEntity {
	return []common.CanonicalEntity{
		{ID: "jeffrey-epstein", CanonicalName: "Jeffrey Epstein", EntityType: common.EntityPerson},
		{ID: "npa", CanonicalName: "NPA", EntityType: common.EntityLocation, Aliases: []string{"N.P.A"}, FlightCount: 2},
		{ID: "palm-beach", CanonicalName: "Palm Beach", EntityType: common.EntityLocation},
	}
}

func TestApplyExcludesByNameAndType(t *testing.T) {
	events := []common.Event{
		{ID: "f1", Participants: []string{"jeffrey-epstein", "npa", "palm-beach"}},
		{ID: "f2", Participants: []string{"npa", "jeffrey-epstein"}},
	}
	in := entities()
	kept, keptEvents, log := Apply(in, events, []Exclusion{
		{Name: "npa", EntityType: common.EntityLocation, Reason: "administrative placeholder", SubmissionID: "s1"},
		{Name: "Palm Beach", EntityType: common.EntityPerson, Reason: "wrong type"},
	})

	require.Len(t, kept, 2)
	for _, e := range kept {
		assert.NotEqual(t, "npa", e.ID)
	}
	require.Len(t, log.Excluded, 1)
	assert.Equal(t, ExclusionRecord{
		EntityID: "npa", CanonicalName: "NPA", EntityType: common.EntityLocation, FlightCount: 2,
		Rule: 0, Reason: "administrative placeholder", SubmissionID: "s1",
	}, log.Excluded[0])
	require.Len(t, log.Unmatched, 1)
	assert.Equal(t, "Palm Beach", log.Unmatched[0].Name)

	assert.Equal(t, []string{"jeffrey-epstein", "palm-beach"}, keptEvents[0].Participants)
	assert.Equal(t, []string{"jeffrey-epstein"}, keptEvents[1].Participants)
	assert.Equal(t, []string{"jeffrey-epstein", "npa", "palm-beach"}, events[0].Participants)
	assert.Len(t, in, 3)
}

func TestApplyMatchesIDAndAlias(t *testing.T) {
	kept, _, log := Apply(entities(), nil, []Exclusion{
		{ID: "palm-beach", Reason: "r"},
		{Name: "N.P.A.", Reason: "alias"},
	})
	require.Len(t, kept, 1)
	assert.Equal(t, "jeffrey-epstein", kept[0].ID)
	assert.Len(t, log.Excluded, 2)
	assert.Empty(t, log.Unmatched)
}

func TestApplyNoExclusions(t *testing.T) {
	in := entities()
	kept, _, log := Apply(in, nil, nil)
	assert.Equal(t, in, kept)
	assert.Empty(t, log.Excluded)
	assert.NotNil(t, log.Excluded)
}
