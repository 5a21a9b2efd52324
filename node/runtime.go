package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/Babbleshack/maelstrom-tools/clock"
	"github.com/Babbleshack/maelstrom-tools/proto"
	"github.com/Babbleshack/maelstrom-tools/protocol"
	"github.com/Babbleshack/maelstrom-tools/routing"
)

// Node handles the messages delivered to one process after the handshake.
// HandleMessage is never called concurrently.
type Node interface {
	HandleMessage(ctx context.Context, rt *Runtime, msg *proto.Message) error
}

// Factory builds a Node from the handshake
type Factory func(rt *Runtime, hello proto.Init) (Node, error)

// NodeFunc adapts a function to the Node interface
type NodeFunc func(ctx context.Context, rt *Runtime, msg *proto.Message) error

// HandleMessage implements Node
func (f NodeFunc) HandleMessage(ctx context.Context, rt *Runtime, msg *proto.Message) error {
	return f(ctx, rt, msg)
}

// Runtime is the per-process context shared by the reader and the
// dispatch loop. It is created by the handshake and lives until Run returns.
type Runtime struct {
	id         string
	nodeIDs    []string
	sessionID  string
	membership *routing.Membership
	clock      *clock.LamportClock
	codec      *protocol.Codec
	logger     hclog.Logger
}

func newRuntime(codec *protocol.Codec, hello proto.Init, sessionID string) (*Runtime, error) {
	membership, err := routing.NewMembership(hello.NodeID, hello.NodeIDs)
	if err != nil {
		return nil, err
	}

	nodeIDs := make([]string, len(hello.NodeIDs))
	copy(nodeIDs, hello.NodeIDs)

	return &Runtime{
		id:         hello.NodeID,
		nodeIDs:    nodeIDs,
		sessionID:  sessionID,
		membership: membership,
		clock:      clock.NewLamportClock(),
		codec:      codec,
		logger:     codec.Logger().With("node_id", hello.NodeID, "session", sessionID),
	}, nil
}

// ID returns the node id assigned in the handshake
func (rt *Runtime) ID() string {
	return rt.id
}

// NodeIDs returns the cluster members as listed in the handshake
func (rt *Runtime) NodeIDs() []string {
	ids := make([]string, len(rt.nodeIDs))
	copy(ids, rt.nodeIDs)
	return ids
}

// Membership returns the cluster view
func (rt *Runtime) Membership() *routing.Membership {
	return rt.membership
}

// SessionID identifies this process run in diagnostics
func (rt *Runtime) SessionID() string {
	return rt.sessionID
}

// Clock returns the node's logical clock
func (rt *Runtime) Clock() *clock.LamportClock {
	return rt.clock
}

// Codec returns the I/O channel
func (rt *Runtime) Codec() *protocol.Codec {
	return rt.codec
}

// Logger returns a logger tagged with the node id
func (rt *Runtime) Logger() hclog.Logger {
	return rt.logger
}

// Send writes a new message to dest with a fresh msg_id
func (rt *Runtime) Send(dest string, payload proto.Payload) error {
	msgID, err := rt.nextMsgID()
	if err != nil {
		return err
	}

	msg := &proto.Message{
		Src:  rt.id,
		Dest: dest,
		Body: proto.Body{
			MsgID:   proto.Uint64(msgID),
			Payload: payload,
		},
	}
	return rt.write(msg)
}

// Reply answers req with payload
func (rt *Runtime) Reply(req *proto.Message, payload proto.Payload) error {
	msgID, err := rt.nextMsgID()
	if err != nil {
		return err
	}
	return rt.write(proto.NewReply(req, rt.id, msgID, payload))
}

// ReplyError answers req with an error body
func (rt *Runtime) ReplyError(req *proto.Message, code proto.ErrorCode, text string) error {
	return rt.Reply(req, proto.Error{Code: code, Text: text})
}

// Broadcast sends payload to every other cluster member
func (rt *Runtime) Broadcast(payload proto.Payload) error {
	var errs []error
	for _, peer := range rt.membership.Peers() {
		if err := rt.Send(peer, payload); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", peer, err))
		}
	}
	return errors.Join(errs...)
}

func (rt *Runtime) nextMsgID() (uint64, error) {
	msgID, err := rt.clock.Increment()
	if err != nil {
		return 0, fmt.Errorf("failed to mint msg_id at %s: %w", rt.clock, err)
	}
	return msgID, nil
}

func (rt *Runtime) write(msg *proto.Message) error {
	rt.logger.Debug("sending", "message", msg.String())
	if err := rt.codec.WriteMessage(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg, err)
	}
	return nil
}
