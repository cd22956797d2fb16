package tmlog

import (
	"reflect"
	"testing"
)

func TestDefaultChain_Lines(t *testing.T) {
	chain := DefaultChain(testAllowList())

	tests := []struct {
		name        string
		state       ParseState
		line        string
		interpreter string
		want        []Reading
	}{
		{
			name:        "eflash used",
			state:       ParseState{TMID: 610, HasTMID: true, Section: SectionEFlash},
			line:        "USED : 4,096 bytes",
			interpreter: "memory",
			want:        []Reading{{Parameter: "used_eflash_qspi_memory_bytes", Value: int64(4096)}},
		},
		{
			name:        "heap total uses spaced colon",
			state:       ParseState{TMID: 610, HasTMID: true, Section: SectionERAM},
			line:        "TOTAL : 100 bytes",
			interpreter: "memory",
			want:        []Reading{{Parameter: "total_eram_heap_memory_bytes", Value: int64(100)}},
		},
		{
			name:        "panel converter",
			state:       ParseState{TMID: 220, HasTMID: true, Section: SectionPanel},
			line:        "2 = [5.0] V [0.3] A",
			interpreter: "converter_dual",
			want: []Reading{
				{Parameter: "panel_conv_2_voltage", Value: 5.0},
				{Parameter: "panel_conv_2_current", Value: 0.3},
			},
		},
		{
			name:        "output converter voltage",
			state:       ParseState{TMID: 220, HasTMID: true, Section: SectionOutput},
			line:        "1 = [3.3] V",
			interpreter: "converter_single",
			want:        []Reading{{Parameter: "output_conv_1_voltage", Value: 3.3}},
		},
		{
			name:        "battery temperature",
			state:       ParseState{TMID: 220, HasTMID: true},
			line:        "btry TEMP [2] = [18.5] degC",
			interpreter: "battery_temp",
			want:        []Reading{{Parameter: "btry_temp_2", Value: 18.5}},
		},
		{
			name:        "channel port status",
			state:       ParseState{TMID: 220, HasTMID: true},
			line:        "CHNL[OBC 1] => PORT[3]=ON",
			interpreter: "channel_port",
			want:        []Reading{{Parameter: "obc_1_port_3_status", Value: "ON"}},
		},
		{
			name:        "generic key value",
			state:       ParseState{TMID: 520, HasTMID: true},
			line:        "Boot Count = 17",
			interpreter: "key_value",
			want:        []Reading{{Parameter: "boot_count", Value: int64(17)}},
		},
		{
			name:        "uhf colon shape",
			state:       ParseState{TMID: 801, HasTMID: true},
			line:        "Temperature: 21.5 C",
			interpreter: "uhf",
			want:        []Reading{{Parameter: "temperature", Value: 21.5}},
		},
		{
			name:        "uhf adc",
			state:       ParseState{TMID: 801, HasTMID: true},
			line:        "adc: 512",
			interpreter: "uhf",
			want:        []Reading{{Parameter: "adc", Value: int64(512)}},
		},
		{
			name:        "uhf equals splits before arrow",
			state:       ParseState{TMID: 801, HasTMID: true},
			line:        "mode = 3=>4",
			interpreter: "uhf",
			want:        []Reading{{Parameter: "mode", Value: "3=>4"}},
		},
		{
			name:        "uhf arrow shape",
			state:       ParseState{TMID: 801, HasTMID: true},
			line:        "Mode => 2",
			interpreter: "uhf",
			want:        []Reading{{Parameter: "mode", Value: int64(2)}},
		},
		{
			name:        "uhf key not allowed is claimed without reading",
			state:       ParseState{TMID: 801, HasTMID: true},
			line:        "Frequency = 437",
			interpreter: "uhf",
			want:        nil,
		},
		{
			name:        "memory line outside memory section falls through",
			state:       ParseState{TMID: 220, HasTMID: true, Section: SectionMPPT},
			line:        "TOTAL: 10 bytes",
			interpreter: "",
			want:        nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				got     []Reading
				claimer string
			)
			for _, in := range chain {
				if rs, claimed := in.Interpret(tt.line, tt.state); claimed {
					got = rs
					claimer = in.Name()
					break
				}
			}
			if claimer != tt.interpreter {
				t.Errorf("claimed by %q, want %q", claimer, tt.interpreter)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("readings = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSection_Kind(t *testing.T) {
	tests := []struct {
		in   Section
		want Section
	}{
		{SectionERAM, SectionERAM},
		{SectionNone, SectionNone},
		{Section("eps"), SectionOther},
	}
	for _, tt := range tests {
		if got := tt.in.Kind(); got != tt.want {
			t.Errorf("Section(%q).Kind() = %q, want %q", tt.in, got, tt.want)
		}
	}
}
