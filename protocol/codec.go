package protocol

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/Babbleshack/maelstrom-tools/proto"
)

// Codec handles line-delimited message I/O over an input, an output and a
// diagnostic log stream. Each stream has its own lock, so logging never
// waits on message I/O and a read never waits on a write.
type Codec struct {
	readMu sync.Mutex
	reader *bufio.Reader

	writeMu sync.Mutex
	writer  *bufio.Writer

	logMu  sync.Mutex
	logger hclog.Logger
}

type codecOptions struct {
	name       string
	level      hclog.Level
	jsonFormat bool
}

// CodecOption configures a Codec
type CodecOption func(*codecOptions)

// WithLogLevel sets the minimum level written to the log stream
func WithLogLevel(level hclog.Level) CodecOption {
	return func(o *codecOptions) {
		o.level = level
	}
}

// WithLogName sets the logger name prefixed to every diagnostic line
func WithLogName(name string) CodecOption {
	return func(o *codecOptions) {
		o.name = name
	}
}

// WithJSONLog switches the log stream to JSON lines
func WithJSONLog(enabled bool) CodecOption {
	return func(o *codecOptions) {
		o.jsonFormat = enabled
	}
}

// NewCodec creates a codec over the given streams
func NewCodec(in io.Reader, out io.Writer, log io.Writer, opts ...CodecOption) *Codec {
	o := codecOptions{
		name:  "maelstrom",
		level: hclog.Info,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Codec{
		reader: bufio.NewReader(in),
		writer: bufio.NewWriter(out),
	}
	c.logger = hclog.New(&hclog.LoggerOptions{
		Name:       o.name,
		Level:      o.level,
		Output:     log,
		Mutex:      &c.logMu,
		JSONFormat: o.jsonFormat,
	})

	return c
}

// Stdio creates a codec on the process's standard streams
func Stdio(opts ...CodecOption) *Codec {
	return NewCodec(os.Stdin, os.Stdout, os.Stderr, opts...)
}

// ReadLine blocks until a full line is available and returns it without
// the line terminator. A final unterminated line is returned before io.EOF.
func (c *Codec) ReadLine() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		if err == io.EOF {
			if len(line) > 0 {
				return trimEOL(line), nil
			}
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read line: %w", err)
	}

	return trimEOL(line), nil
}

// WriteLine writes b followed by a newline and flushes before returning
func (c *Codec) WriteLine(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.writer.Write(b); err != nil {
		return fmt.Errorf("failed to write line: %w", err)
	}

	if err := c.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write line: %w", err)
	}

	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush line: %w", err)
	}

	return nil
}

// Log writes a leveled diagnostic line to the log stream
func (c *Codec) Log(level hclog.Level, msg string, args ...interface{}) {
	c.logger.Log(level, msg, args...)
}

// Logger returns the logger writing to the log stream
func (c *Codec) Logger() hclog.Logger {
	return c.logger
}

// WriteMessage encodes msg and writes it as one line
func (c *Codec) WriteMessage(msg *proto.Message) error {
	data, err := proto.Encode(msg)
	if err != nil {
		return err
	}

	if err := c.WriteLine(data); err != nil {
		return err
	}

	c.logger.Trace("sent", "message", msg.String())
	return nil
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}
