package mapping

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
)

var header = []string{"variant", "canonical", "provenance", "entity_type", "timestamp"}

// Encode writes entries as a tab separated table, one mapping per line,
// preceded by a header row. Output order is the order of entries.
func Encode(w io.Writer, entries []common.AliasMapping) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{e.Variant, e.Canonical, string(e.Provenance), string(e.EntityType), e.Timestamp}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Decode reads a table written by Encode.
func Decode(r io.Reader) ([]common.AliasMapping, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.Comment = '#'

	var out []common.AliasMapping
	line := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read mapping table: %w", err)
		}
		line++
		if line == 1 && len(row) > 0 && strings.EqualFold(row[0], header[0]) {
			continue
		}
		if len(row) < 2 {
			return nil, fmt.Errorf("%w: mapping line %d has %d fields", common.ErrMalformedInput, line, len(row))
		}
		e := common.AliasMapping{Variant: row[0], Canonical: row[1], Provenance: common.ProvenanceCurated}
		if len(row) > 2 && row[2] != "" {
			e.Provenance = common.Provenance(row[2])
		}
		if len(row) > 3 && row[3] != "" {
			t, ok := common.ParseEntityType(row[3])
			if !ok {
				return nil, fmt.Errorf("%w: mapping line %d has unknown entity type %q", common.ErrMalformedInput, line, row[3])
			}
			e.EntityType = t
		}
		if len(row) > 4 {
			e.Timestamp = row[4]
		}
		out = append(out, e)
	}
	return out, nil
}
