package otel

import (
	"io"
	"strings"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

// logBridgeWriter forwards node log lines to the OTel LoggerProvider.
// It attaches as the node logger's mirror, so every line the analysis
// tooling sees in the log file also becomes a structured log record.
type logBridgeWriter struct {
	logger otellog.Logger
}

// NewLogBridge returns a writer that parses each node log line and
// emits an OTel log record with the node port and the event keyword as
// attributes. Uses the global LoggerProvider, so Init must run first.
func NewLogBridge() io.Writer {
	return &logBridgeWriter{logger: global.GetLoggerProvider().Logger("gossipnet.log")}
}

func (w *logBridgeWriter) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	if line == "" {
		return len(p), nil
	}

	port, event, body := parseLine(line)

	var record otellog.Record
	record.SetTimestamp(time.Now())
	record.SetBody(otellog.StringValue(body))
	record.SetSeverity(otellog.SeverityInfo)
	record.AddAttributes(
		otellog.String("node.port", port),
		otellog.String("event", event),
	)

	w.logger.Emit(nil, record) //nolint:staticcheck // nil context is fine for fire-and-forget

	return len(p), nil
}

// parseLine splits one node log line into its parts.
// Input:  "15:04:05.123 [8000] [1724500000123] GOSSIP recv  msg_id=4fa2c81b"
// Output: port="8000", event="gossip", body="GOSSIP recv  msg_id=4fa2c81b"
//
// The event attribute is the lowercased first word of the message, which
// is the keyword the offline analysis keys on (GOSSIP, peer, HELLO,
// SENT, STATS). Lines that do not match the format come back with an
// empty port and event "general".
func parseLine(line string) (port, event, body string) {
	rest := line
	// Wall clock "HH:MM:SS.mmm " is fixed width.
	if len(rest) > 13 && rest[2] == ':' && rest[5] == ':' && rest[8] == '.' && rest[12] == ' ' {
		rest = rest[13:]
	}
	for i := 0; i < 2; i++ {
		if len(rest) > 1 && rest[0] == '[' {
			end := strings.IndexByte(rest, ']')
			if end > 1 {
				if i == 0 {
					port = rest[1:end]
				}
				rest = strings.TrimLeft(rest[end+1:], " ")
				continue
			}
		}
		break
	}
	if port == "" {
		return "", "general", line
	}
	event = "general"
	if word, _, ok := strings.Cut(rest, " "); ok && word != "" {
		event = strings.ToLower(word)
	} else if rest != "" {
		event = strings.ToLower(rest)
	}
	return port, event, rest
}
