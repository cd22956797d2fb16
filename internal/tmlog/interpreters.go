package tmlog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/SteelMorgan/telemetry-ingest/internal/allowlist"
	"github.com/SteelMorgan/telemetry-ingest/internal/normalizer"
)

// Reading is a parameter/value pair extracted from one line
type Reading struct {
	Parameter string
	Value     any
}

// Interpreter extracts readings from a single line in the context of the current frame.
// claimed reports whether the line belongs to this interpreter; once a line is
// claimed no later interpreter sees it, even if no reading was produced.
type Interpreter interface {
	Name() string
	Interpret(line string, state ParseState) (readings []Reading, claimed bool)
}

// DefaultChain returns the interpreters in priority order
func DefaultChain(allow *allowlist.Config) []Interpreter {
	return []Interpreter{
		MemoryInterpreter{},
		UHFInterpreter{Allow: allow},
		ConverterDualInterpreter{},
		ConverterSingleInterpreter{},
		BatteryTempInterpreter{},
		ChannelPortInterpreter{},
		TotalBatteryInterpreter{},
		KeyValueInterpreter{},
	}
}

// memoryPattern maps one labelled byte count to a parameter per memory section
type memoryPattern struct {
	re     *regexp.Regexp
	params map[Section]string
}

// Pattern order matters: "TOTAL:" (no space) names the bank totals, "TOTAL :" the heap totals.
var memoryPatterns = []memoryPattern{
	{
		re: regexp.MustCompile(`^TOTAL:\s*([\d,]+)\s*bytes`),
		params: map[Section]string{
			SectionERAM:   "total_eram_memory_bytes",
			SectionEFlash: "total_eflash_qspi_memory_bytes",
			SectionFlash:  "total_flash_fmc_memory_bytes",
		},
	},
	{
		re: regexp.MustCompile(`^USED\s*:\s*([\d,]+)\s*bytes`),
		params: map[Section]string{
			SectionERAM:   "used_eram_memory_bytes",
			SectionEFlash: "used_eflash_qspi_memory_bytes",
			SectionFlash:  "used_flash_fmc_memory_bytes",
		},
	},
	{
		re: regexp.MustCompile(`^TOTAL\s*:\s*([\d,]+)\s*bytes`),
		params: map[Section]string{
			SectionIRAM: "total_iram_heap_memory_bytes",
			SectionERAM: "total_eram_heap_memory_bytes",
		},
	},
	{
		re: regexp.MustCompile(`^REMAINING\s*:\s*([\d,]+)\s*bytes`),
		params: map[Section]string{
			SectionIRAM: "remaining_iram_heap_memory_bytes",
			SectionERAM: "remaining_eram_heap_memory_bytes",
		},
	},
}

// MemoryInterpreter reads TOTAL/USED/REMAINING byte counts inside memory sections
type MemoryInterpreter struct{}

func (MemoryInterpreter) Name() string { return "memory" }

func (MemoryInterpreter) Interpret(line string, state ParseState) ([]Reading, bool) {
	if !state.Section.IsMemory() {
		return nil, false
	}

	for _, p := range memoryPatterns {
		m := p.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		param, ok := p.params[state.Section]
		if !ok {
			continue
		}
		// The 5xx stream reports memory without the unit suffix
		if strings.HasPrefix(state.TMIDString(), "5") {
			param = strings.ReplaceAll(param, "_memory_bytes", "")
		}
		value := normalizer.CoerceValue(strings.ReplaceAll(m[1], ",", ""))
		return []Reading{{Parameter: param, Value: value}}, true
	}

	return nil, false
}

var converterDualPattern = regexp.MustCompile(`^(\d+)\s*=\s*\[([^\]]+)\]\s*V\s*\[([^\]]+)\]\s*A`)

// ConverterDualInterpreter reads "<n> = [v] V [i] A" voltage/current pairs
type ConverterDualInterpreter struct{}

func (ConverterDualInterpreter) Name() string { return "converter_dual" }

func (ConverterDualInterpreter) Interpret(line string, state ParseState) ([]Reading, bool) {
	m := converterDualPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}

	prefix := "panel"
	if state.Section == SectionMPPT {
		prefix = "mppt"
	}
	return []Reading{
		{Parameter: fmt.Sprintf("%s_conv_%s_voltage", prefix, m[1]), Value: normalizer.CoerceValue(m[2])},
		{Parameter: fmt.Sprintf("%s_conv_%s_current", prefix, m[1]), Value: normalizer.CoerceValue(m[3])},
	}, true
}

var converterSinglePattern = regexp.MustCompile(`^(\d+)\s*=\s*\[([^\]]+)\]\s*V`)

// ConverterSingleInterpreter reads "<n> = [v] V" voltages without a current term
type ConverterSingleInterpreter struct{}

func (ConverterSingleInterpreter) Name() string { return "converter_single" }

func (ConverterSingleInterpreter) Interpret(line string, state ParseState) ([]Reading, bool) {
	m := converterSinglePattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}

	prefix := "output"
	if state.Section == SectionMPPT {
		prefix = "mppt"
	}
	return []Reading{
		{Parameter: fmt.Sprintf("%s_conv_%s_voltage", prefix, m[1]), Value: normalizer.CoerceValue(m[2])},
	}, true
}

var batteryTempPattern = regexp.MustCompile(`(?i)Btry temp\s*\[(\d+)\]\s*=\s*\[?([\d.]+)\]?\s*degC`)

// BatteryTempInterpreter reads "Btry temp [n] = [t] degC"
type BatteryTempInterpreter struct{}

func (BatteryTempInterpreter) Name() string { return "battery_temp" }

func (BatteryTempInterpreter) Interpret(line string, _ ParseState) ([]Reading, bool) {
	m := batteryTempPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	return []Reading{{Parameter: "btry_temp_" + m[1], Value: normalizer.CoerceValue(m[2])}}, true
}

var channelPortPattern = regexp.MustCompile(`^CHNL\[(.+?)\]\s*=>\s*PORT\[(\d+)\]=(\w+)`)

// ChannelPortInterpreter reads "CHNL[c] => PORT[p]=STATUS"; the status stays a raw token
type ChannelPortInterpreter struct{}

func (ChannelPortInterpreter) Name() string { return "channel_port" }

func (ChannelPortInterpreter) Interpret(line string, _ ParseState) ([]Reading, bool) {
	m := channelPortPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	param := fmt.Sprintf("%s_port_%s_status", normalizer.CanonicalizeParameterName(m[1]), m[2])
	return []Reading{{Parameter: param, Value: strings.TrimSpace(m[3])}}, true
}

var totalBatteryPattern = regexp.MustCompile(`\[([\d.]+)\]\s*V\s*\[([\d.]+)\]\s*A`)

// TotalBatteryInterpreter reads the "Totl Btry reading [v] V [i] A" summary line
type TotalBatteryInterpreter struct{}

func (TotalBatteryInterpreter) Name() string { return "total_battery" }

func (TotalBatteryInterpreter) Interpret(line string, _ ParseState) ([]Reading, bool) {
	if !strings.Contains(line, "Totl Btry reading") {
		return nil, false
	}
	m := totalBatteryPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	return []Reading{
		{Parameter: "total_battery_voltage", Value: normalizer.CoerceValue(m[1])},
		{Parameter: "total_battery_current", Value: normalizer.CoerceValue(m[2])},
	}, true
}

// KeyValueInterpreter is the fallback for "key = value" lines
type KeyValueInterpreter struct{}

func (KeyValueInterpreter) Name() string { return "key_value" }

func (KeyValueInterpreter) Interpret(line string, _ ParseState) ([]Reading, bool) {
	key, raw, found := strings.Cut(line, "=")
	if !found {
		return nil, false
	}

	value := normalizer.CoerceValue(raw)
	if value == nil {
		return nil, false
	}
	param := normalizer.CanonicalizeParameterName(key)
	if param == "" {
		return nil, false
	}
	return []Reading{{Parameter: param, Value: value}}, true
}
