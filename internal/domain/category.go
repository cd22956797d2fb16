package domain

// Category is the subsystem bucket a tm_id belongs to
type Category string

const (
	CategoryEPS     Category = "eps" // primary power
	CategoryOBC     Category = "obc" // onboard computer
	CategoryUHF     Category = "uhf" // uplink/downlink radio
	CategoryUnknown Category = "unknown"
)

// PersistedCategories lists the categories that have a storage target, in write order
var PersistedCategories = []Category{CategoryEPS, CategoryUHF, CategoryOBC}

// Collection returns the storage collection (or table) name for the category
func (c Category) Collection() string {
	switch c {
	case CategoryEPS, CategoryOBC, CategoryUHF:
		return string(c) + "_telemetry"
	default:
		return ""
	}
}

// Collections returns all storage collection names
func Collections() []string {
	names := make([]string, 0, len(PersistedCategories))
	for _, c := range PersistedCategories {
		names = append(names, c.Collection())
	}
	return names
}
