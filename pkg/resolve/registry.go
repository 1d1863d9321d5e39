package resolve

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/normalize"
)

// Registry accumulates resolved mentions into canonical entities and
// co-occurrence events. Add may be called concurrently; the result of
// Finalize does not depend on the order of Add calls.
type Registry struct {
	mu      sync.Mutex
	records map[recordKey]*record
	events  map[string]*eventRecord
}

type recordKey struct {
	name string
	typ  common.EntityType
}

type record struct {
	key      recordKey
	spelling map[string]int
	curated  map[string]struct{}
	aliases  map[string]struct{}
	sources  map[string]struct{}
	events   map[string]struct{}
	high     bool
	tier     string
	conf     float64
}

type eventRecord struct {
	date, route string
	members     map[recordKey]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[recordKey]*record),
		events:  make(map[string]*eventRecord),
	}
}

// Add records one resolved mention. eventKey may be empty for mentions that
// belong to no co-occurrence event.
func (r *Registry) Add(e *common.CanonicalEntity, tr Trace, eventKey string, mctx *common.MentionContext) {
	key := recordKey{name: normalize.Key(e.CanonicalName), typ: e.EntityType}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[key]
	if !ok {
		rec = &record{
			key:      key,
			spelling: make(map[string]int),
			curated:  make(map[string]struct{}),
			aliases:  make(map[string]struct{}),
			sources:  make(map[string]struct{}),
			events:   make(map[string]struct{}),
		}
		r.records[key] = rec
	}
	rec.spelling[e.CanonicalName]++
	if tr.Curated {
		rec.curated[e.CanonicalName] = struct{}{}
	}
	for _, a := range e.Aliases {
		rec.aliases[a] = struct{}{}
	}
	for _, s := range e.Sources {
		rec.sources[s] = struct{}{}
	}
	if e.ConfidenceFlag == common.ConfidenceHigh {
		rec.high = true
	}
	conf := 1.0
	if tr.Classification != nil {
		conf = tr.Classification.Confidence
	}
	if tr.TypeSource != "" && (rec.tier == "" || conf > rec.conf || (conf == rec.conf && tr.TypeSource < rec.tier)) {
		rec.tier, rec.conf = tr.TypeSource, conf
	}

	if eventKey == "" {
		return
	}
	rec.events[eventKey] = struct{}{}
	ev, ok := r.events[eventKey]
	if !ok {
		ev = &eventRecord{members: make(map[recordKey]struct{})}
		r.events[eventKey] = ev
	}
	ev.members[key] = struct{}{}
	if mctx != nil {
		ev.date = minNonEmpty(ev.date, strings.TrimSpace(mctx.Date))
		ev.route = minNonEmpty(ev.route, strings.TrimSpace(mctx.Route))
	}
}

// Len is the number of distinct (name, type) records.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Result is the finalized registry.
type Result struct {
	Entities []common.CanonicalEntity
	Events   []common.Event
}

// Finalize merges records and assigns ids. Entities are sorted by id,
// events by id. FlightCount is the number of distinct events an entity took
// part in; ConnectionCount is left for the graph builder.
//
// A name that was only typed by the fallback is folded into a confidently
// typed record of the same name, so one unlucky mention does not split an
// entity in two.
func (r *Registry) Finalize() Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	redirect := r.foldFallbacks()

	merged := make(map[recordKey]*record)
	for key, rec := range r.records {
		target := key
		if to, ok := redirect[key]; ok {
			target = to
		}
		dst, ok := merged[target]
		if !ok {
			dst = r.records[target].clone()
			merged[target] = dst
		}
		if key != target {
			absorb(dst, rec)
		}
	}

	entities := make([]common.CanonicalEntity, 0, len(merged))
	slugs := make(map[string]int)
	for _, rec := range merged {
		slugs[Slug(displayName(rec))]++
	}
	ids := make(map[recordKey]string, len(merged))
	for key, rec := range merged {
		name := displayName(rec)
		guid := GUID(name, key.typ)
		id := Slug(name)
		if slugs[id] > 1 {
			id = disambiguatedID(id, guid)
		}
		ids[key] = id

		flag := common.ConfidenceLow
		if rec.high {
			flag = common.ConfidenceHigh
		}
		var metadata map[string]string
		if rec.tier != "" {
			metadata = map[string]string{"type_source": rec.tier}
		}
		entities = append(entities, common.CanonicalEntity{
			ID:             id,
			GUID:           guid,
			CanonicalName:  name,
			EntityType:     key.typ,
			Aliases:        aliasesOf(rec, name),
			Sources:        sortedKeys(rec.sources),
			FlightCount:    len(rec.events),
			Metadata:       metadata,
			ConfidenceFlag: flag,
		})
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })

	events := make([]common.Event, 0, len(r.events))
	for id, ev := range r.events {
		seen := make(map[string]struct{}, len(ev.members))
		for member := range ev.members {
			if to, ok := redirect[member]; ok {
				member = to
			}
			seen[ids[member]] = struct{}{}
		}
		events = append(events, common.Event{
			ID:           id,
			Date:         ev.date,
			Route:        ev.route,
			Participants: sortedKeys(seen),
		})
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })

	return Result{Entities: entities, Events: events}
}

// foldFallbacks maps every low-confidence record onto the high-confidence
// record of the same name with the most mentions, when one exists.
func (r *Registry) foldFallbacks() map[recordKey]recordKey {
	byName := make(map[string][]*record)
	for _, rec := range r.records {
		byName[rec.key.name] = append(byName[rec.key.name], rec)
	}
	redirect := make(map[recordKey]recordKey)
	for _, group := range byName {
		if len(group) < 2 {
			continue
		}
		var best *record
		for _, rec := range group {
			if !rec.high {
				continue
			}
			if best == nil || mentions(rec) > mentions(best) ||
				(mentions(rec) == mentions(best) && typeRank(rec.key.typ) < typeRank(best.key.typ)) {
				best = rec
			}
		}
		if best == nil {
			continue
		}
		for _, rec := range group {
			if !rec.high && rec != best {
				redirect[rec.key] = best.key
			}
		}
	}
	return redirect
}

func (rec *record) clone() *record {
	cp := &record{
		key:      rec.key,
		spelling: make(map[string]int, len(rec.spelling)),
		curated:  make(map[string]struct{}, len(rec.curated)),
		aliases:  make(map[string]struct{}, len(rec.aliases)),
		sources:  make(map[string]struct{}, len(rec.sources)),
		events:   make(map[string]struct{}, len(rec.events)),
		high:     rec.high,
		tier:     rec.tier,
		conf:     rec.conf,
	}
	absorb(cp, rec)
	return cp
}

func absorb(dst, src *record) {
	for k, v := range src.spelling {
		dst.spelling[k] += v
	}
	for k := range src.curated {
		dst.curated[k] = struct{}{}
	}
	for k := range src.aliases {
		dst.aliases[k] = struct{}{}
	}
	for k := range src.sources {
		dst.sources[k] = struct{}{}
	}
	for k := range src.events {
		dst.events[k] = struct{}{}
	}
}

func mentions(rec *record) int {
	n := 0
	for _, c := range rec.spelling {
		n += c
	}
	return n
}

func typeRank(t common.EntityType) int {
	for i, et := range common.EntityTypes {
		if et == t {
			return i
		}
	}
	return len(common.EntityTypes)
}

// displayName picks the spelling shown for an entity: a curated spelling,
// else the most frequent spelling that is not all upper case, else the most
// frequent spelling. Ties go to the lexically smallest.
func displayName(rec *record) string {
	if len(rec.curated) > 0 {
		return sortedKeys(rec.curated)[0]
	}
	best, bestCount, bestMixed := "", -1, false
	for _, s := range sortedKeys(rec.spelling) {
		count := rec.spelling[s]
		mixed := !allUpper(s)
		switch {
		case mixed && !bestMixed:
			best, bestCount, bestMixed = s, count, true
		case mixed == bestMixed && count > bestCount:
			best, bestCount = s, count
		}
	}
	return best
}

func aliasesOf(rec *record, name string) []string {
	out := make([]string, 0, len(rec.aliases)+len(rec.spelling))
	seen := map[string]struct{}{name: {}}
	for _, set := range []map[string]struct{}{rec.aliases, keySet(rec.spelling)} {
		for a := range set {
			if _, dup := seen[a]; dup {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}

func allUpper(s string) bool {
	letters := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return letters
}

func keySet[V any](m map[string]V) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func minNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case b < a:
		return b
	}
	return a
}
