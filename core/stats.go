package core

// FormatRelayStats renders a relay's counters as a console line, for example
// "[STATS] relay=0 sent=12 lost=1 received=9 forwarded=9 invalid=0"
func FormatRelayStats(r *Relay) string {
	s := r.Stats()
	buf := make([]byte, 0, 80)
	buf = append(buf, "[STATS]"...)
	buf = appendField(buf, "relay", uint32(r.Core()))
	buf = appendField(buf, "sent", s.Sent)
	buf = appendField(buf, "lost", s.Lost)
	buf = appendField(buf, "received", s.Received)
	buf = appendField(buf, "forwarded", s.Forwarded)
	buf = appendField(buf, "invalid", s.Invalid)
	return string(buf)
}

// FormatDispatchStats renders a dispatcher's counters as a console line,
// for example "[STATS] task=ping core=1 line=3 runs=4 handled=10 max_batch=5 queued=0"
func FormatDispatchStats[T any](d *Dispatcher[T]) string {
	s := d.Stats()
	buf := make([]byte, 0, 96)
	buf = append(buf, "[STATS] task="...)
	buf = append(buf, d.Name()...)
	buf = appendField(buf, "core", uint32(d.Core()))
	buf = appendField(buf, "line", uint32(d.Line()))
	buf = appendField(buf, "runs", s.Runs)
	buf = appendField(buf, "handled", s.Handled)
	buf = appendField(buf, "max_batch", s.MaxBatch)
	buf = appendField(buf, "queued", uint32(d.Queue().Len()))
	return string(buf)
}
