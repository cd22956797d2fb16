package domain

import (
	"fmt"
	"math"
)

// TelemetryRecord is a single parameter reading extracted from the telemetry log.
// Value holds int64, float64, string or nil.
type TelemetryRecord struct {
	Timestamp int64  `json:"tm_received_time" bson:"tm_received_time"`
	TMID      int    `json:"tm_id" bson:"tm_id"`
	Parameter string `json:"parameter" bson:"parameter"`
	Value     any    `json:"value" bson:"value"`
}

// RecordKey is the identity of a record in storage
type RecordKey struct {
	Timestamp int64
	TMID      int
	Parameter string
}

// Key returns the identity key of the record
func (r TelemetryRecord) Key() RecordKey {
	return RecordKey{Timestamp: r.Timestamp, TMID: r.TMID, Parameter: r.Parameter}
}

// String formats the key for logs
func (k RecordKey) String() string {
	return fmt.Sprintf("%d/%d/%s", k.Timestamp, k.TMID, k.Parameter)
}

// Value kinds as stored by the column-oriented backends
const (
	ValueKindNull   = "null"
	ValueKindInt    = "int"
	ValueKindFloat  = "float"
	ValueKindString = "string"
)

// ValueColumns splits a record value into typed columns.
// Exactly one of the returned pointers is non-nil unless the kind is null.
func ValueColumns(v any) (kind string, i *int64, f *float64, s *string) {
	switch val := v.(type) {
	case nil:
		return ValueKindNull, nil, nil, nil
	case int64:
		return ValueKindInt, &val, nil, nil
	case int:
		n := int64(val)
		return ValueKindInt, &n, nil, nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			str := fmt.Sprint(val)
			return ValueKindString, nil, nil, &str
		}
		return ValueKindFloat, nil, &val, nil
	case string:
		return ValueKindString, nil, nil, &val
	default:
		str := fmt.Sprint(val)
		return ValueKindString, nil, nil, &str
	}
}
