// Package logging builds the logrus logger shared by the chat server.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const timeLayout = "2006-01-02 15:04:05"

// Options selects the logger's level, output format and destination.
type Options struct {
	Level  string
	Format string
	Out    io.Writer
}

// New returns a logger configured from opts. Format is "text" (default) or
// "json"; Level is any logrus level name and defaults to info.
func New(opts Options) (*logrus.Logger, error) {
	logger := logrus.New()

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	logger.SetOutput(out)

	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "", "text":
		logger.SetFormatter(&LineFormatter{})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timeLayout})
	default:
		return nil, fmt.Errorf("logging: unknown format %q", opts.Format)
	}

	return logger, nil
}

// Discard returns a logger that drops everything. Tests use it to keep
// output quiet.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// LineFormatter writes one line per entry:
//
//	[2006-01-02 15:04:05] LEVEL message (key=value key=value)
type LineFormatter struct{}

// Format implements logrus.Formatter.
func (f *LineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := bytes.NewBuffer(make([]byte, 0, 64))
	for i, k := range keys {
		if i > 0 {
			data.WriteByte(' ')
		}
		fmt.Fprintf(data, "%s=%v", k, e.Data[k])
	}

	level := strings.ToUpper(e.Level.String())
	var msg string
	if data.Len() > 0 {
		msg = fmt.Sprintf("[%s] %-5s %s (%s)\n", e.Time.Format(timeLayout), level, e.Message, data)
	} else {
		msg = fmt.Sprintf("[%s] %-5s %s\n", e.Time.Format(timeLayout), level, e.Message)
	}
	return []byte(msg), nil
}
