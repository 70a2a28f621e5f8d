// Package monitor follows the firmware console and tallies the cross-core
// trace and stats lines it prints
package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"crosscore/core"
)

const (
	traceTag = "[TRACE]"
	statsTag = "[STATS]"

	// maxLine bounds a line without a newline before it is dropped
	maxLine = 4096

	idleBackoff = 10 * time.Millisecond
)

var ErrMalformed = errors.New("malformed console line")

// TraceLine is one parsed "[TRACE]" line
type TraceLine struct {
	Core  core.CoreID
	Seq   uint32
	Event string
	Line  core.IRQ
	Value uint32
}

// Summary is what the monitor has seen so far
type Summary struct {
	Lines     uint64
	Malformed uint64
	Events    [core.NumCores]map[string]uint64
	Relays    [core.NumCores]core.RelayStats
	Tasks     map[string]core.DispatchStats
	Anomalies uint64
}

// Monitor consumes console output line by line. It is not safe for
// concurrent use.
type Monitor struct {
	log     zerolog.Logger
	summary Summary
	lastSeq [core.NumCores]uint32
}

// New creates a monitor that reports through log
func New(log zerolog.Logger) *Monitor {
	m := &Monitor{log: log}
	for i := range m.summary.Events {
		m.summary.Events[i] = make(map[string]uint64)
	}
	m.summary.Tasks = make(map[string]core.DispatchStats)
	return m
}

// Summary returns a copy of the tallies
func (m *Monitor) Summary() Summary {
	s := m.summary
	for i, ev := range m.summary.Events {
		s.Events[i] = make(map[string]uint64, len(ev))
		for k, v := range ev {
			s.Events[i][k] = v
		}
	}
	s.Tasks = make(map[string]core.DispatchStats, len(m.summary.Tasks))
	for k, v := range m.summary.Tasks {
		s.Tasks[k] = v
	}
	return s
}

// Run reads r until ctx is done or a read fails. A serial port with a read
// timeout reports silence as (0, io.EOF), so EOF never ends the run; a
// partial last line is handled when ctx is done.
func (m *Monitor) Run(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 512)
	var pending []byte
	for {
		if ctx.Err() != nil {
			if len(pending) > 0 {
				m.handle(string(pending))
			}
			return nil
		}
		n, err := r.Read(buf)
		pending = append(pending, buf[:n]...)
		for {
			idx := bytes.IndexByte(pending, '\n')
			if idx < 0 {
				break
			}
			m.handle(string(bytes.TrimRight(pending[:idx], "\r")))
			pending = pending[idx+1:]
		}
		if len(pending) > maxLine {
			m.summary.Malformed++
			m.log.Warn().Int("bytes", len(pending)).Msg("dropping overlong console line")
			pending = pending[:0]
		}

		switch {
		case err != nil && !errors.Is(err, io.EOF):
			return fmt.Errorf("read console: %w", err)
		case n == 0:
			m.idle(ctx)
		}
	}
}

// idle waits a little after an empty read so a reader that returns at
// once does not spin
func (m *Monitor) idle(ctx context.Context) {
	t := time.NewTimer(idleBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (m *Monitor) handle(line string) {
	if err := m.HandleLine(line); err != nil {
		m.summary.Malformed++
		m.log.Debug().Err(err).Str("line", line).Msg("unparsed console line")
	}
}

// HandleLine processes one console line
func (m *Monitor) HandleLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	m.summary.Lines++

	switch {
	case strings.HasPrefix(line, core.BootBanner):
		// trace sequence numbers start over after a reboot
		m.lastSeq = [core.NumCores]uint32{}
		m.summary.Relays = [core.NumCores]core.RelayStats{}
		m.log.Info().Msg("firmware restarted")
	case strings.HasPrefix(line, traceTag):
		if strings.Contains(line, "===") {
			m.log.Debug().Msg(strings.TrimSpace(strings.TrimPrefix(line, traceTag)))
			return nil
		}
		t, err := ParseTrace(line)
		if err != nil {
			return err
		}
		m.trace(t)
	case strings.HasPrefix(line, statsTag):
		return m.stats(line)
	default:
		m.log.Info().Str("console", line).Send()
	}
	return nil
}

func (m *Monitor) trace(t TraceLine) {
	// each dump repeats whatever is still in the ring
	if t.Seq <= m.lastSeq[t.Core] {
		return
	}
	m.lastSeq[t.Core] = t.Seq
	m.summary.Events[t.Core][t.Event]++

	switch t.Event {
	case "QUEUE_FULL", "SIGNAL_LOST", "INVALID_SIGNAL":
		m.summary.Anomalies++
		m.log.Warn().
			Uint8("core", uint8(t.Core)).
			Uint32("seq", t.Seq).
			Uint16("line", uint16(t.Line)).
			Uint32("value", t.Value).
			Msg(strings.ToLower(t.Event))
	default:
		m.log.Trace().
			Uint8("core", uint8(t.Core)).
			Uint32("seq", t.Seq).
			Str("event", t.Event).
			Uint16("line", uint16(t.Line)).
			Uint32("value", t.Value).
			Send()
	}
}

func (m *Monitor) stats(line string) error {
	fields, err := parseFields(strings.TrimPrefix(line, statsTag))
	if err != nil {
		return err
	}

	if id, ok := fields["relay"]; ok {
		c, err := coreField(id)
		if err != nil {
			return err
		}
		var s core.RelayStats
		if err := uints(fields, map[string]*uint32{
			"sent": &s.Sent, "lost": &s.Lost, "received": &s.Received,
			"forwarded": &s.Forwarded, "invalid": &s.Invalid,
		}); err != nil {
			return err
		}

		prev := m.summary.Relays[c]
		m.summary.Relays[c] = s
		if s.Lost > prev.Lost || s.Invalid > prev.Invalid {
			m.summary.Anomalies++
			m.log.Warn().Uint8("core", uint8(c)).Uint32("lost", s.Lost).Uint32("invalid", s.Invalid).
				Msg("relay dropped signals")
		}
		return nil
	}

	if name, ok := fields["task"]; ok {
		var s core.DispatchStats
		if err := uints(fields, map[string]*uint32{
			"runs": &s.Runs, "handled": &s.Handled, "max_batch": &s.MaxBatch,
		}); err != nil {
			return err
		}
		m.summary.Tasks[name] = s
		m.log.Debug().Str("task", name).Uint32("runs", s.Runs).Uint32("handled", s.Handled).
			Uint32("max_batch", s.MaxBatch).Msg("task stats")
		return nil
	}
	return fmt.Errorf("%w: stats line names neither relay nor task", ErrMalformed)
}

// ParseTrace parses a line produced by core.FormatTrace
func ParseTrace(line string) (TraceLine, error) {
	fields, err := parseFields(strings.TrimPrefix(line, traceTag))
	if err != nil {
		return TraceLine{}, err
	}

	var t TraceLine
	c, err := coreField(fields["core"])
	if err != nil {
		return TraceLine{}, err
	}
	t.Core = c

	t.Event = fields["evt"]
	if t.Event == "" {
		return TraceLine{}, fmt.Errorf("%w: trace without evt", ErrMalformed)
	}

	var irq uint32
	if err := uints(fields, map[string]*uint32{"seq": &t.Seq, "line": &irq, "v": &t.Value}); err != nil {
		return TraceLine{}, err
	}
	if irq >= core.MaxIRQ {
		return TraceLine{}, fmt.Errorf("%w: line %d out of range", ErrMalformed, irq)
	}
	t.Line = core.IRQ(irq)
	return t, nil
}

func parseFields(s string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, tok := range strings.Fields(s) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: field %q", ErrMalformed, tok)
		}
		fields[k] = v
	}
	return fields, nil
}

func coreField(v string) (core.CoreID, error) {
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil || !core.CoreID(n).Valid() {
		return 0, fmt.Errorf("%w: core %q", ErrMalformed, v)
	}
	return core.CoreID(n), nil
}

// uints parses the named fields; absent fields are left untouched
func uints(fields map[string]string, dst map[string]*uint32) error {
	for k, p := range dst {
		v, ok := fields[k]
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrMalformed, k, v)
		}
		*p = uint32(n)
	}
	return nil
}

// LogSummary writes the tallies at info level
func (m *Monitor) LogSummary() {
	s := m.summary
	ev := m.log.Info().
		Uint64("lines", s.Lines).
		Uint64("malformed", s.Malformed).
		Uint64("anomalies", s.Anomalies)
	for c := range s.Events {
		d := zerolog.Dict()
		names := make([]string, 0, len(s.Events[c]))
		for name := range s.Events[c] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			d.Uint64(name, s.Events[c][name])
		}
		ev.Dict("core"+strconv.Itoa(c), d)
	}
	ev.Msg("monitor summary")
}
