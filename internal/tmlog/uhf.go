package tmlog

import (
	"strings"

	"github.com/SteelMorgan/telemetry-ingest/internal/allowlist"
	"github.com/SteelMorgan/telemetry-ingest/internal/domain"
	"github.com/SteelMorgan/telemetry-ingest/internal/normalizer"
)

const rssiPhrase = "RSSI value in dBm is"

// uhfShape recognises one UHF line layout. claimed stops the search even when the
// key is not allow-listed.
type uhfShape func(line string, allowed *allowlist.List) (reading *Reading, claimed bool)

// uhfShapes are tried in order; the first shape present on the line decides
var uhfShapes = []uhfShape{
	separatorShape(":"),
	separatorShape("="),
	separatorShape("=>"),
	adcShape,
	rssiShape,
}

// UHFInterpreter handles every line of an 8xx frame. Only parameters listed in the
// "uhf" allow-list for the frame's tm_id are emitted; a tm_id without an entry
// yields nothing at all.
type UHFInterpreter struct {
	Allow *allowlist.Config
}

func (UHFInterpreter) Name() string { return "uhf" }

func (u UHFInterpreter) Interpret(line string, state ParseState) ([]Reading, bool) {
	if !strings.HasPrefix(state.TMIDString(), "8") {
		return nil, false
	}

	allowed, ok := u.Allow.Lookup(domain.CategoryUHF, state.TMID)
	if !ok {
		return nil, true
	}

	for _, shape := range uhfShapes {
		reading, claimed := shape(line, allowed)
		if !claimed {
			continue
		}
		if reading == nil {
			return nil, true
		}
		return []Reading{*reading}, true
	}
	return nil, true
}

func adcShape(line string, allowed *allowlist.List) (*Reading, bool) {
	if !strings.HasPrefix(line, "adc:") {
		return nil, false
	}
	if !allowed.Contains("adc") {
		return nil, true
	}
	raw := strings.Split(line, ":")[1]
	return &Reading{Parameter: "adc", Value: normalizer.CoerceValue(raw)}, true
}

func separatorShape(sep string) uhfShape {
	return func(line string, allowed *allowlist.List) (*Reading, bool) {
		key, raw, found := strings.Cut(line, sep)
		if !found {
			return nil, false
		}
		key = strings.TrimSpace(key)
		param := normalizer.CanonicalizeParameterName(key)
		if !allowed.Contains(strings.ToLower(key)) && !allowed.Contains(param) {
			return nil, true
		}
		return &Reading{Parameter: param, Value: normalizer.CoerceValue(raw)}, true
	}
}

func rssiShape(line string, allowed *allowlist.List) (*Reading, bool) {
	if !strings.Contains(line, rssiPhrase) {
		return nil, false
	}
	if !allowed.Contains("rssi") {
		return nil, true
	}
	fields := strings.Fields(line)
	return &Reading{Parameter: "rssi_value_dbm", Value: normalizer.CoerceValue(fields[len(fields)-1])}, true
}
