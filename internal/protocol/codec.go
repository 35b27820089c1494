package protocol

import (
	"strings"
	"time"
)

const (
	// Separator delimits message fields.
	Separator = "|"

	// TimeLayout is the timestamp format carried in every message.
	TimeLayout = "15:04:05"
)

// Encode serializes m as a single newline-terminated line.
// Raw messages are written back verbatim.
func Encode(m Message) string {
	if m.Type == TypeRaw {
		return m.Field(0) + "\n"
	}

	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	b.WriteString(m.Type.String())
	b.WriteString(Separator)
	b.WriteString(ts.Format(TimeLayout))
	for _, f := range m.Fields {
		b.WriteString(Separator)
		b.WriteString(sanitizeField(f))
	}
	b.WriteByte('\n')
	return b.String()
}

// Decode parses one line. The split is bounded by the type's field count so
// the last field may itself contain separators. Anything that does not fit
// a known shape decodes to TypeRaw.
func Decode(line string) Message {
	line = trimLineEnd(line)
	if line == "" {
		return Raw(line)
	}

	head := strings.SplitN(line, Separator, 2)
	t, ok := ParseType(head[0])
	if !ok {
		return Raw(line)
	}

	n := t.FieldCount()
	parts := strings.SplitN(line, Separator, n+2)
	if len(parts) < 2 {
		// PING and PONG may arrive without a timestamp.
		if n == 0 {
			return Message{Type: t, Timestamp: time.Now()}
		}
		return Raw(line)
	}
	if len(parts) != n+2 {
		return Raw(line)
	}

	return Message{
		Type:      t,
		Timestamp: parseTimestamp(parts[1]),
		Fields:    parts[2:],
	}
}

// parseTimestamp places a HH:MM:SS stamp on today's date. Unparseable
// stamps fall back to the current time.
func parseTimestamp(s string) time.Time {
	now := time.Now()
	t, err := time.ParseInLocation(TimeLayout, s, now.Location())
	if err != nil {
		return now
	}
	return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, now.Location())
}

func trimLineEnd(line string) string {
	return strings.TrimRight(line, "\r\n")
}

// sanitizeField keeps a field on one line.
func sanitizeField(f string) string {
	if !strings.ContainsAny(f, "\r\n") {
		return f
	}
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(f)
}
