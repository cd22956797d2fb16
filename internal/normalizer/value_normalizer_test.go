package normalizer

import (
	"testing"
)

func TestCanonicalizeParameterName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "already canonical", input: "bus_voltage", expected: "bus_voltage"},
		{name: "upper case with spaces", input: "Bus Voltage", expected: "bus_voltage"},
		{name: "surrounding whitespace", input: "  Batt Temp  ", expected: "batt_temp"},
		{name: "punctuation run", input: "PA-Temp (C)", expected: "pa_temp_c"},
		{name: "repeated underscores", input: "a__b___c", expected: "a_b_c"},
		{name: "leading and trailing separators", input: "__[rx gain]__", expected: "rx_gain"},
		{name: "slash and dot", input: "O/P Conv.Volt", expected: "o_p_conv_volt"},
		{name: "non ascii letters", input: "température", expected: "temp_rature"},
		{name: "only separators", input: "== --", expected: ""},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanonicalizeParameterName(tt.input)
			if result != tt.expected {
				t.Errorf("CanonicalizeParameterName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCanonicalizeParameterName_Idempotent(t *testing.T) {
	inputs := []string{
		"Bus Voltage",
		"__x__",
		"CHNL 1/2",
		"a-b-c",
		"ÄÖÜ value",
		"rssi_value_dbm",
		"  ",
		"12 = 4",
		"mixed_Case__and  spaces",
	}

	for _, input := range inputs {
		once := CanonicalizeParameterName(input)
		twice := CanonicalizeParameterName(once)
		if once != twice {
			t.Errorf("not idempotent for %q: once=%q twice=%q", input, once, twice)
		}
	}
}

func TestCoerceValue(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected any
	}{
		{name: "integer", input: "12", expected: int64(12)},
		{name: "float", input: "12.5", expected: 12.5},
		{name: "negative integer", input: "-75", expected: int64(-75)},
		{name: "unit suffix", input: "7.4V", expected: 7.4},
		{name: "unit suffix with space", input: "25 degC", expected: int64(25)},
		{name: "leading equals", input: "= 42", expected: int64(42)},
		{name: "leading arrow", input: "=> 3.3 V", expected: 3.3},
		{name: "surrounding whitespace", input: "   8   ", expected: int64(8)},
		{name: "non numeric string", input: "A1B2", expected: "A1B2"},
		{name: "version-like string", input: "1.2.3", expected: "1.2.3"},
		{name: "alphanumeric keeps digits tail", input: "mode 3", expected: "mode 3"},
		{name: "purely alphabetic becomes null", input: "OK", expected: nil},
		{name: "empty", input: "", expected: nil},
		{name: "only operators", input: "=>", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CoerceValue(tt.input)
			if result != tt.expected {
				t.Errorf("CoerceValue(%q) = %#v, want %#v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestCoerceValue_NumericRoundTrip(t *testing.T) {
	for _, n := range []string{"0", "1", "12", "-3", "1048576"} {
		if _, ok := CoerceValue(n).(int64); !ok {
			t.Errorf("CoerceValue(%q) should be int64, got %T", n, CoerceValue(n))
		}
	}
	for _, f := range []string{"0.0", "12.5", "-0.25", "4.20"} {
		if _, ok := CoerceValue(f).(float64); !ok {
			t.Errorf("CoerceValue(%q) should be float64, got %T", f, CoerceValue(f))
		}
	}
}
