package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Sort fields accepted by SearchEntities.
const (
	SortName        = "canonical_name"
	SortConnections = "connection_count"
	SortFlights     = "flight_count"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// SearchRequest selects entities. An empty Query matches every entity.
type SearchRequest struct {
	Query          string                `json:"q" query:"q"`
	Types          []common.EntityType   `json:"types" query:"type"`
	MinConnections int                   `json:"min_connections" query:"min_connections" validate:"min=0"`
	Confidence     common.ConfidenceFlag `json:"confidence" query:"confidence"`
	SortBy         string                `json:"sort" query:"sort"`
	Desc           bool                  `json:"desc" query:"desc"`
	Offset         int                   `json:"offset" query:"offset" validate:"min=0"`
	Limit          int                   `json:"limit" query:"limit" validate:"min=0"`
}

// SearchResult is one page of entities plus the total number of matches.
type SearchResult struct {
	Total    int                      `json:"total"`
	Offset   int                      `json:"offset"`
	Limit    int                      `json:"limit"`
	Entities []common.CanonicalEntity `json:"entities"`
}

// SearchEntities runs a full-text query over names and aliases, applies the
// filters and returns one page. The order is stable: the requested field
// first, then canonical name, then id.
func (s *Snapshot) SearchEntities(ctx context.Context, req SearchRequest, opts ...QueryOption) (SearchResult, error) {
	o := applyOptions(opts)
	if req.Offset < 0 || req.MinConnections < 0 {
		return SearchResult{}, fmt.Errorf("%w: negative offset or min_connections", common.ErrMalformedInput)
	}
	less, err := sortFunc(req.SortBy, req.Desc)
	if err != nil {
		return SearchResult{}, err
	}
	types := make(map[common.EntityType]struct{}, len(req.Types))
	for _, t := range req.Types {
		if !t.Valid() {
			return SearchResult{}, fmt.Errorf("%w: unknown entity type %q", common.ErrMalformedInput, t)
		}
		types[t] = struct{}{}
		RecordQueriedEntityTypes(o.tracer, string(t))
	}

	candidates, err := s.match(ctx, req.Query)
	if err != nil {
		return SearchResult{}, err
	}
	RecordMatchedEntityIDs(o.tracer, candidateIDs(s, candidates)...)

	hits := make([]common.CanonicalEntity, 0, len(candidates))
	for _, i := range candidates {
		e := s.entities[i]
		if _, ok := types[e.EntityType]; len(types) > 0 && !ok {
			continue
		}
		if e.ConnectionCount < req.MinConnections {
			continue
		}
		if req.Confidence != "" && e.ConfidenceFlag != req.Confidence {
			continue
		}
		hits = append(hits, e)
	}
	sort.SliceStable(hits, func(i, j int) bool { return less(hits[i], hits[j]) })

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	res := SearchResult{Total: len(hits), Offset: req.Offset, Limit: limit, Entities: []common.CanonicalEntity{}}
	if req.Offset < len(hits) {
		res.Entities = hits[req.Offset:min(req.Offset+limit, len(hits))]
	}

	returned := make([]string, len(res.Entities))
	for i, e := range res.Entities {
		returned[i] = e.ID
	}
	RecordReturnedEntityIDs(o.tracer, returned...)
	return res, nil
}

// match returns the indexes of entities matching text, in id order.
func (s *Snapshot) match(ctx context.Context, text string) ([]int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		all := make([]int, len(s.entities))
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	if len(s.entities) == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(textQuery(text), len(s.entities), 0, false)
	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	out := make([]int, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if i, ok := s.byID[hit.ID]; ok {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out, nil
}

// textQuery matches all words of text in the name or in an alias, or the
// last word as a prefix of a name word so partial input still finds hits.
func textQuery(text string) query.Query {
	byName := bleve.NewMatchQuery(text)
	byName.SetField("name")
	byName.SetOperator(query.MatchQueryOperatorAnd)

	byAlias := bleve.NewMatchQuery(text)
	byAlias.SetField("aliases")
	byAlias.SetOperator(query.MatchQueryOperatorAnd)

	queries := []query.Query{byName, byAlias}
	if words := strings.Fields(strings.ToLower(text)); len(words) > 0 {
		prefix := bleve.NewPrefixQuery(words[len(words)-1])
		prefix.SetField("name")
		if len(words) == 1 {
			queries = append(queries, prefix)
		} else {
			rest := bleve.NewMatchQuery(strings.Join(words[:len(words)-1], " "))
			rest.SetField("name")
			rest.SetOperator(query.MatchQueryOperatorAnd)
			queries = append(queries, bleve.NewConjunctionQuery(rest, prefix))
		}
	}
	return bleve.NewDisjunctionQuery(queries...)
}

func sortFunc(field string, desc bool) (func(a, b common.CanonicalEntity) bool, error) {
	var primary func(a, b common.CanonicalEntity) int
	switch field {
	case "", SortName:
		primary = func(a, b common.CanonicalEntity) int { return strings.Compare(a.CanonicalName, b.CanonicalName) }
	case SortConnections:
		primary = func(a, b common.CanonicalEntity) int { return a.ConnectionCount - b.ConnectionCount }
	case SortFlights:
		primary = func(a, b common.CanonicalEntity) int { return a.FlightCount - b.FlightCount }
	default:
		return nil, fmt.Errorf("%w: unknown sort field %q", common.ErrMalformedInput, field)
	}
	return func(a, b common.CanonicalEntity) bool {
		c := primary(a, b)
		if desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		if a.CanonicalName != b.CanonicalName {
			return a.CanonicalName < b.CanonicalName
		}
		return a.ID < b.ID
	}, nil
}

func candidateIDs(s *Snapshot, idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = s.entities[j].ID
	}
	return out
}
