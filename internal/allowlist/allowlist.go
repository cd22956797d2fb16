package allowlist

import (
	"sort"
	"strconv"
	"strings"

	"github.com/SteelMorgan/telemetry-ingest/internal/domain"
)

// List is an ordered set of permitted parameter names for one tm_id
type List struct {
	params []string
	set    map[string]struct{}
}

// NewList builds a list from raw names, lowercasing and trimming each one.
// Empty names are ignored and duplicates keep their first position.
func NewList(names []string) *List {
	l := &List{set: make(map[string]struct{}, len(names))}
	for _, name := range names {
		n := strings.ToLower(strings.TrimSpace(name))
		if n == "" {
			continue
		}
		if _, dup := l.set[n]; dup {
			continue
		}
		l.set[n] = struct{}{}
		l.params = append(l.params, n)
	}
	return l
}

// Contains reports whether name (already lowercased) is permitted
func (l *List) Contains(name string) bool {
	if l == nil {
		return false
	}
	_, ok := l.set[name]
	return ok
}

// Params returns the permitted names in file order
func (l *List) Params() []string {
	if l == nil {
		return nil
	}
	out := make([]string, len(l.params))
	copy(out, l.params)
	return out
}

// Config holds the allow-lists of every subsystem, keyed by integer tm_id.
// It is read-only after construction and safe for concurrent use.
type Config struct {
	subsystems map[domain.Category]map[int]*List
}

// FromMap builds a Config from subsystem -> tm_id string -> names, the shape of the
// configuration files. Non-numeric tm_id keys are skipped.
func FromMap(raw map[domain.Category]map[string][]string) *Config {
	cfg := &Config{subsystems: make(map[domain.Category]map[int]*List, len(raw))}
	for sub, entries := range raw {
		lists, _ := buildLists(entries)
		cfg.subsystems[sub] = lists
	}
	return cfg
}

// Lookup returns the allow-list of a tm_id within a subsystem
func (c *Config) Lookup(sub domain.Category, tmID int) (*List, bool) {
	if c == nil {
		return nil, false
	}
	l, ok := c.subsystems[sub][tmID]
	return l, ok
}

// HasTMID reports whether the subsystem has an entry for the tm_id
func (c *Config) HasTMID(sub domain.Category, tmID int) bool {
	_, ok := c.Lookup(sub, tmID)
	return ok
}

// TMIDs returns the configured tm_ids of a subsystem in ascending order
func (c *Config) TMIDs(sub domain.Category) []int {
	if c == nil {
		return nil
	}
	ids := make([]int, 0, len(c.subsystems[sub]))
	for id := range c.subsystems[sub] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// buildLists converts string-keyed entries into integer-keyed lists.
// Returns the keys that could not be parsed as tm_ids.
func buildLists(entries map[string][]string) (map[int]*List, []string) {
	lists := make(map[int]*List, len(entries))
	var invalid []string
	for key, names := range entries {
		tmID, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			invalid = append(invalid, key)
			continue
		}
		lists[tmID] = NewList(names)
	}
	sort.Strings(invalid)
	return lists, invalid
}
