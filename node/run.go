package node

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/Babbleshack/maelstrom-tools/clock"
	"github.com/Babbleshack/maelstrom-tools/proto"
	"github.com/Babbleshack/maelstrom-tools/protocol"
)

// DefaultQueueSize is the number of decoded messages buffered between the
// reader and the dispatch loop.
const DefaultQueueSize = 1024

// Fatal runtime errors. Run's error wraps exactly one of these, or a
// context error if ctx was cancelled.
var (
	ErrNoHandshake       = errors.New("input closed before init")
	ErrNotInitialized    = errors.New("message received before init")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrConstruction      = errors.New("node construction failed")
	ErrHandler           = errors.New("message handler failed")
	ErrStream            = errors.New("stream failure")
)

var handshakeRegistry = proto.NewRegistry(proto.InitVariant)

type options struct {
	queueSize int
	sessionID string
}

// Option configures Run
type Option func(*options)

// WithQueueSize sets the depth of the reader to dispatcher queue
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithSessionID overrides the generated session id
func WithSessionID(id string) Option {
	return func(o *options) {
		o.sessionID = id
	}
}

// Run performs the init handshake on codec, builds the node with factory
// and dispatches every later message to it in arrival order. It returns
// nil once the input is exhausted and every queued message was handled.
// A node implementing io.Closer is closed before Run returns.
func Run(ctx context.Context, codec *protocol.Codec, reg *proto.Registry, factory Factory, opts ...Option) error {
	o := options{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}

	rt, n, err := handshake(codec, factory, o.sessionID)
	if n != nil {
		defer closeNode(rt, n)
	}
	if err != nil {
		codec.Logger().Error("handshake failed", "session", o.sessionID, "error", err)
		return err
	}

	if err := rt.serve(ctx, n, reg, o.queueSize); err != nil {
		rt.logger.Error("node stopped", "error", err)
		return err
	}

	rt.logger.Info("input closed, shutting down")
	return nil
}

// handshake reads the init message, constructs the node and acknowledges
func handshake(codec *protocol.Codec, factory Factory, sessionID string) (*Runtime, Node, error) {
	line, err := codec.ReadLine()
	if err != nil {
		if err == io.EOF {
			return nil, nil, ErrNoHandshake
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrStream, err)
	}

	msg, err := handshakeRegistry.Decode(line)
	if err != nil {
		if errors.Is(err, proto.ErrUnknownType) {
			return nil, nil, fmt.Errorf("%w: %w", ErrNotInitialized, err)
		}
		return nil, nil, fmt.Errorf("%w: init: %w", ErrProtocolViolation, err)
	}
	hello := msg.Body.Payload.(proto.Init)

	rt, err := newRuntime(codec, hello, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}
	if msg.Body.MsgID != nil {
		rt.clock.Reconcile(*msg.Body.MsgID)
	}

	n, err := factory(rt, hello)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConstruction, err)
	}

	if err := rt.Reply(msg, proto.InitOk{}); err != nil {
		if errors.Is(err, clock.ErrExhausted) {
			return rt, n, fmt.Errorf("%w: init msg_id leaves no id to reply with: %w", ErrProtocolViolation, err)
		}
		return rt, n, fmt.Errorf("%w: init_ok: %w", ErrStream, err)
	}

	rt.logger.Info("initialized", "nodes", rt.nodeIDs)
	return rt, n, nil
}

// closeNode releases nodes that hold resources such as open files
func closeNode(rt *Runtime, n Node) {
	c, ok := n.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		rt.logger.Warn("failed to close node", "error", err)
	}
}

// serve runs the reader goroutine and the dispatch loop until the input
// is exhausted or either side fails.
func (rt *Runtime) serve(ctx context.Context, n Node, reg *proto.Registry, queueSize int) error {
	queue := make(chan *proto.Message, queueSize)
	done := make(chan struct{})
	readErr := make(chan error, 1)

	go func() {
		defer close(queue)
		readErr <- rt.ingest(reg, queue, done)
	}()

	if err := rt.dispatch(ctx, n, queue); err != nil {
		// The reader may still be blocked on input; it exits with the process.
		close(done)
		return err
	}

	// Queue closed and drained: the reader has finished
	return <-readErr
}

// ingest decodes lines and queues them until EOF, a failure, or done
func (rt *Runtime) ingest(reg *proto.Registry, queue chan<- *proto.Message, done <-chan struct{}) error {
	for {
		line, err := rt.codec.ReadLine()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrStream, err)
		}

		msg, err := reg.Decode(line)
		if err != nil {
			return fmt.Errorf("%w: %q: %w", ErrProtocolViolation, line, err)
		}

		if msg.Body.MsgID != nil {
			rt.clock.Reconcile(*msg.Body.MsgID)
		}

		select {
		case queue <- msg:
		case <-done:
			return nil
		}
	}
}

// dispatch hands queued messages to the node one at a time
func (rt *Runtime) dispatch(ctx context.Context, n Node, queue <-chan *proto.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-queue:
			if !ok {
				return nil
			}

			rt.logger.Debug("received", "message", msg.String())
			if err := n.HandleMessage(ctx, rt, msg); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrHandler, msg, err)
			}
		}
	}
}
