package tmlog

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/SteelMorgan/telemetry-ingest/internal/allowlist"
	"github.com/SteelMorgan/telemetry-ingest/internal/domain"
	"github.com/rs/zerolog/log"
)

// maxPendingBytes bounds an unterminated trailing line kept between chunks
const maxPendingBytes = 1024 * 1024

var (
	tmIDPattern   = regexp.MustCompile(`Received TM Id:-\s*(\d+)`)
	tmTimePattern = regexp.MustCompile(`TM Received Time:-\s*(\d+(?:\.\d+)?)`)

	// Separator lines become "unknown section" labels: "===== EPS =====" -> "eps"
	separatorMarker  = "======"
	separatorCleaner = regexp.MustCompile(`=+|\s+`)

	// Echo/banner lines that never carry a reading
	noiseMarkers = []string{
		"Received TM Id:-",
		"TM Received Time:-",
		"TM Recv Local Date",
		"Encryption",
	}
)

// Parser turns log text into telemetry records. It tracks frame and section state
// across lines and chunks and dispatches value lines to the interpreter chain.
// A Parser is not safe for concurrent use; callers serialize access.
type Parser struct {
	chain   []Interpreter
	state   ParseState
	now     func() time.Time
	pending []byte
}

// ParserOption configures a Parser
type ParserOption func(*Parser)

// WithClock overrides the wall clock used for frames without a timestamp
func WithClock(now func() time.Time) ParserOption {
	return func(p *Parser) {
		if now != nil {
			p.now = now
		}
	}
}

// WithInterpreters replaces the default interpreter chain
func WithInterpreters(chain []Interpreter) ParserOption {
	return func(p *Parser) {
		if len(chain) > 0 {
			p.chain = chain
		}
	}
}

// NewParser creates a parser using the default interpreter chain
func NewParser(allow *allowlist.Config, opts ...ParserOption) *Parser {
	p := &Parser{
		chain: DefaultChain(allow),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns a snapshot of the current frame/section state
func (p *Parser) State() ParseState {
	return p.state
}

// Feed parses every complete line of data, prefixed by any fragment held from the
// previous call. A trailing fragment without newline is held until the next Feed.
// Returns the records and the number of lines consumed.
func (p *Parser) Feed(data []byte) ([]domain.TelemetryRecord, int) {
	if len(data) == 0 {
		return nil, 0
	}

	buf := append(p.pending, data...)
	cut := bytes.LastIndexByte(buf, '\n')
	if cut < 0 {
		if len(buf) <= maxPendingBytes {
			p.pending = buf
			return nil, 0
		}
		log.Warn().
			Int("bytes", len(buf)).
			Msg("Unterminated line exceeds limit, parsing it as is")
		cut = len(buf)
	}

	var rest []byte
	if cut < len(buf) {
		rest = buf[cut+1:]
	}
	p.pending = append([]byte(nil), rest...)

	var records []domain.TelemetryRecord
	lines := strings.Split(string(buf[:cut]), "\n")
	for _, line := range lines {
		records = append(records, p.ParseLine(line)...)
	}
	return records, len(lines)
}

// Flush parses the held fragment, if any, as a final line
func (p *Parser) Flush() []domain.TelemetryRecord {
	if len(p.pending) == 0 {
		return nil
	}
	line := string(p.pending)
	p.pending = nil
	return p.ParseLine(line)
}

// DiscardPending drops the held fragment. Used when the file was truncated.
func (p *Parser) DiscardPending() {
	p.pending = nil
}

// PendingBytes returns the size of the held fragment
func (p *Parser) PendingBytes() int {
	return len(p.pending)
}

// ParseLine applies one line to the frame state and returns the records it yields
func (p *Parser) ParseLine(raw string) []domain.TelemetryRecord {
	line := strings.TrimSpace(raw)
	if line == "" {
		return nil
	}

	if m := tmIDPattern.FindStringSubmatch(line); m != nil {
		tmID, err := strconv.Atoi(m[1])
		if err != nil {
			log.Warn().Err(err).Str("line", truncate(line)).Msg("Invalid TM id, skipping line")
			return nil
		}
		p.state.startFrame(tmID)
		log.Debug().Int("tm_id", tmID).Msg("Found TM id")
		return nil
	}

	if m := tmTimePattern.FindStringSubmatch(line); m != nil {
		if ts, err := parseFrameTimestamp(m[1]); err == nil {
			p.state.setTimestamp(ts)
			log.Debug().Int64("tm_received_time", ts).Msg("Found TM time")
		} else {
			log.Warn().Err(err).Str("line", truncate(line)).Msg("Invalid TM time, using wall clock")
		}
		return nil
	}

	if !p.state.HasTMID {
		return nil
	}

	for _, marker := range noiseMarkers {
		if strings.Contains(line, marker) {
			return nil
		}
	}

	if strings.Contains(line, separatorMarker) {
		p.enterSection(Section(strings.ToLower(separatorCleaner.ReplaceAllString(line, ""))))
		return nil
	}

	for _, h := range sectionHeaders {
		if strings.Contains(line, h.marker) {
			p.enterSection(h.section)
			return nil
		}
	}

	readings, interpreter := p.interpret(line)
	if len(readings) == 0 {
		return nil
	}

	ts := p.state.Timestamp
	if !p.state.HasTime {
		ts = p.now().Unix()
	}

	records := make([]domain.TelemetryRecord, 0, len(readings))
	for _, r := range readings {
		records = append(records, domain.TelemetryRecord{
			Timestamp: ts,
			TMID:      p.state.TMID,
			Parameter: r.Parameter,
			Value:     r.Value,
		})
	}

	log.Debug().
		Str("interpreter", interpreter).
		Int("records", len(records)).
		Str("line", truncate(line)).
		Msg("Parsed line")

	return records
}

func (p *Parser) enterSection(section Section) {
	p.state.Section = section
	log.Debug().
		Int("tm_id", p.state.TMID).
		Str("section", string(section)).
		Str("kind", string(section.Kind())).
		Msg("Entered section")
}

// interpret runs the chain; a failing interpreter only loses its line
func (p *Parser) interpret(line string) (readings []Reading, name string) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().
				Interface("panic", r).
				Str("interpreter", name).
				Str("line", truncate(line)).
				Msg("Failed to parse line, skipping")
			readings = nil
		}
	}()

	for _, in := range p.chain {
		name = in.Name()
		if rs, claimed := in.Interpret(line, p.state); claimed {
			return rs, name
		}
	}
	return nil, ""
}

func parseFrameTimestamp(raw string) (int64, error) {
	if !strings.Contains(raw, ".") {
		return strconv.ParseInt(raw, 10, 64)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func truncate(line string) string {
	if len(line) > 100 {
		return line[:100]
	}
	return line
}
