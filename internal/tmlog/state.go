package tmlog

import (
	"strconv"
)

// Section is the sub-context of a frame that disambiguates bare readings.
// Separator lines set it to their own label, which is reported as SectionOther.
type Section string

const (
	SectionNone   Section = ""
	SectionERAM   Section = "eram"
	SectionEFlash Section = "eflash"
	SectionFlash  Section = "flash"
	SectionIRAM   Section = "iram"
	SectionMPPT   Section = "mppt"
	SectionPanel  Section = "panel"
	SectionOutput Section = "output"
	SectionOther  Section = "other"
)

// Kind maps a section label onto the fixed enum, folding separator labels into SectionOther
func (s Section) Kind() Section {
	switch s {
	case SectionNone, SectionERAM, SectionEFlash, SectionFlash, SectionIRAM,
		SectionMPPT, SectionPanel, SectionOutput:
		return s
	default:
		return SectionOther
	}
}

// IsMemory reports whether the section is one of the memory banks
func (s Section) IsMemory() bool {
	switch s {
	case SectionERAM, SectionEFlash, SectionFlash, SectionIRAM:
		return true
	}
	return false
}

// sectionHeaders maps header substrings to sections, checked in order
var sectionHeaders = []struct {
	marker  string
	section Section
}{
	{"ERAM MEMORY", SectionERAM},
	{"EFLASH QSPI MEMORY", SectionEFlash},
	{"FLASH FMC MEMORY", SectionFlash},
	{"IRAM HEAP MEMORY", SectionIRAM},
	{"ERAM HEAP MEMORY", SectionERAM},
	{"Conv MPPT reading", SectionMPPT},
	{"Panel reading", SectionPanel},
	{"O/P Conv Volt", SectionOutput},
}

// ParseState is the frame/section context carried from line to line.
// It lives as long as the parser and survives frames split across polls.
type ParseState struct {
	TMID      int
	HasTMID   bool
	Timestamp int64
	HasTime   bool
	Section   Section
}

// TMIDString is the decimal form of the active tm_id, used by the prefix rules
func (s ParseState) TMIDString() string {
	if !s.HasTMID {
		return ""
	}
	return strconv.Itoa(s.TMID)
}

// startFrame activates a tm_id and forgets the previous frame's context
func (s *ParseState) startFrame(tmID int) {
	s.TMID = tmID
	s.HasTMID = true
	s.Timestamp = 0
	s.HasTime = false
	s.Section = SectionNone
}

func (s *ParseState) setTimestamp(ts int64) {
	s.Timestamp = ts
	s.HasTime = true
}
