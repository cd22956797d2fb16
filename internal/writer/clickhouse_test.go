package writer

import (
	"strings"
	"testing"
)

func TestClickHouseTableDDL(t *testing.T) {
	ddl := clickHouseTableDDL("uhf_telemetry")

	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS uhf_telemetry",
		"ENGINE = ReplacingMergeTree(version)",
		"ORDER BY (tm_received_time, tm_id, parameter)",
		"value_int Nullable(Int64)",
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL missing %q:\n%s", want, ddl)
		}
	}
}
