package mapping

import (
	"github.com/SteelMorgan/telemetry-ingest/internal/domain"
)

// CategoryRange assigns an inclusive tm_id range to a subsystem category
type CategoryRange struct {
	Min      int
	Max      int
	Category domain.Category
}

// DefaultRanges are the tm_id ranges of the telemetry streams. The ranges are disjoint.
var DefaultRanges = []CategoryRange{
	{Min: 200, Max: 300, Category: domain.CategoryEPS},
	{Min: 500, Max: 650, Category: domain.CategoryOBC},
	{Min: 800, Max: 900, Category: domain.CategoryUHF},
}

// Categorize returns the subsystem category of a tm_id
// Returns domain.CategoryUnknown when the tm_id is outside every range
func Categorize(tmID int) domain.Category {
	for _, r := range DefaultRanges {
		if tmID >= r.Min && tmID <= r.Max {
			return r.Category
		}
	}
	return domain.CategoryUnknown
}

// Partition groups records by category, preserving input order within each group
func Partition(records []domain.TelemetryRecord) map[domain.Category][]domain.TelemetryRecord {
	groups := make(map[domain.Category][]domain.TelemetryRecord)
	for _, rec := range records {
		c := Categorize(rec.TMID)
		groups[c] = append(groups[c], rec)
	}
	return groups
}
