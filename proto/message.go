package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Decode errors. Every failure to turn a line into a Message wraps one of these.
var (
	ErrMalformed    = errors.New("malformed message")
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing required field")
)

// Reserved body keys. Payload fields are flattened next to them.
const (
	keyType      = "type"
	keyMsgID     = "msg_id"
	keyInReplyTo = "in_reply_to"
)

// Payload is one variant of a message body, discriminated by its type tag
type Payload interface {
	Type() string
}

// Message is the envelope exchanged between nodes
type Message struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
	Body Body   `json:"body"`
}

// Body carries the message ids and the typed payload. On the wire the
// payload fields share one object with type, msg_id and in_reply_to.
type Body struct {
	MsgID     *uint64
	InReplyTo *uint64
	Payload   Payload
}

// Type returns the payload's type tag, or "" if the body has no payload
func (b Body) Type() string {
	if b.Payload == nil {
		return ""
	}
	return b.Payload.Type()
}

// MarshalJSON flattens the payload into the body object
func (b Body) MarshalJSON() ([]byte, error) {
	if b.Payload == nil {
		return nil, fmt.Errorf("%w: body has no payload", ErrMalformed)
	}

	raw, err := json.Marshal(b.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", b.Payload.Type(), err)
	}

	// A payload that marshals to null leaves fields nil
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: %s payload is not a JSON object", ErrMalformed, b.Payload.Type())
	}

	if fields[keyType], err = json.Marshal(b.Payload.Type()); err != nil {
		return nil, err
	}
	if b.MsgID != nil {
		if fields[keyMsgID], err = json.Marshal(*b.MsgID); err != nil {
			return nil, err
		}
	}
	if b.InReplyTo != nil {
		if fields[keyInReplyTo], err = json.Marshal(*b.InReplyTo); err != nil {
			return nil, err
		}
	}

	return json.Marshal(fields)
}

// Encode serializes a message to a single line of JSON without the trailing newline
func Encode(msg *Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// NewReply builds the reply to req. The reply goes back to req's sender
// and answers req's msg_id, if it had one.
func NewReply(req *Message, src string, msgID uint64, payload Payload) *Message {
	var inReplyTo *uint64
	if req.Body.MsgID != nil {
		inReplyTo = Uint64(*req.Body.MsgID)
	}

	return &Message{
		Src:  src,
		Dest: req.Src,
		Body: Body{
			MsgID:     Uint64(msgID),
			InReplyTo: inReplyTo,
			Payload:   payload,
		},
	}
}

// Uint64 returns a pointer to v
func Uint64(v uint64) *uint64 {
	return &v
}

// String returns a short description of the message for logs
func (m *Message) String() string {
	id := "-"
	if m.Body.MsgID != nil {
		id = fmt.Sprint(*m.Body.MsgID)
	}
	return fmt.Sprintf("%s->%s %s#%s", m.Src, m.Dest, m.Body.Type(), id)
}
