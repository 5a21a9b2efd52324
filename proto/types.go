package proto

import "fmt"

// Type tags of the built-in variants
const (
	TypeInit   = "init"
	TypeInitOk = "init_ok"
	TypeError  = "error"
)

// Init is the handshake request that assigns a node its identity
type Init struct {
	NodeID  string   `json:"node_id"`
	NodeIDs []string `json:"node_ids"`
}

// Type implements Payload
func (Init) Type() string { return TypeInit }

// InitOk acknowledges the handshake
type InitOk struct{}

// Type implements Payload
func (InitOk) Type() string { return TypeInitOk }

// ErrorCode is a Maelstrom error code
type ErrorCode int

const (
	ErrCodeTimeout                ErrorCode = 0
	ErrCodeNodeNotFound           ErrorCode = 1
	ErrCodeNotSupported           ErrorCode = 10
	ErrCodeTemporarilyUnavailable ErrorCode = 11
	ErrCodeMalformedRequest       ErrorCode = 12
	ErrCodeCrash                  ErrorCode = 13
	ErrCodeAbort                  ErrorCode = 14
	ErrCodeKeyDoesNotExist        ErrorCode = 20
	ErrCodeKeyAlreadyExists       ErrorCode = 21
	ErrCodePreconditionFailed     ErrorCode = 22
	ErrCodeTxnConflict            ErrorCode = 30
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeTimeout:
		return "timeout"
	case ErrCodeNodeNotFound:
		return "node-not-found"
	case ErrCodeNotSupported:
		return "not-supported"
	case ErrCodeTemporarilyUnavailable:
		return "temporarily-unavailable"
	case ErrCodeMalformedRequest:
		return "malformed-request"
	case ErrCodeCrash:
		return "crash"
	case ErrCodeAbort:
		return "abort"
	case ErrCodeKeyDoesNotExist:
		return "key-does-not-exist"
	case ErrCodeKeyAlreadyExists:
		return "key-already-exists"
	case ErrCodePreconditionFailed:
		return "precondition-failed"
	case ErrCodeTxnConflict:
		return "txn-conflict"
	default:
		return fmt.Sprintf("error-%d", int(c))
	}
}

// Definite reports whether an operation that failed with c certainly did not happen
func (c ErrorCode) Definite() bool {
	switch c {
	case ErrCodeTimeout, ErrCodeCrash:
		return false
	default:
		return true
	}
}

// Error is the body of an error reply
type Error struct {
	Code ErrorCode `json:"code"`
	Text string    `json:"text,omitempty"`
}

// Type implements Payload
func (Error) Type() string { return TypeError }

func (e Error) Error() string {
	if e.Text == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Text)
}

// Base variants every node understands
var (
	InitVariant   = VariantOf[Init]()
	InitOkVariant = VariantOf[InitOk]()
	ErrorVariant  = VariantOf[Error]()
)
