package workload

import (
	"context"

	"github.com/Babbleshack/maelstrom-tools/config"
	"github.com/Babbleshack/maelstrom-tools/node"
	"github.com/Babbleshack/maelstrom-tools/proto"
)

// Echo asks a node to send Echo back
type Echo struct {
	Echo string `json:"echo"`
}

// Type implements proto.Payload
func (Echo) Type() string { return "echo" }

// EchoOk answers an Echo with the same value
type EchoOk struct {
	Echo string `json:"echo"`
}

// Type implements proto.Payload
func (EchoOk) Type() string { return "echo_ok" }

// EchoRegistry lists the variants an echo node decodes
func EchoRegistry() *proto.Registry {
	return proto.NewRegistry(proto.VariantOf[Echo](), proto.VariantOf[EchoOk](), proto.ErrorVariant)
}

// EchoNode replies to every echo request
type EchoNode struct{}

// EchoFactory builds echo nodes. The echo workload has no settings.
func EchoFactory(cfg *config.Config) node.Factory {
	return func(rt *node.Runtime, hello proto.Init) (node.Node, error) {
		return &EchoNode{}, nil
	}
}

// HandleMessage implements node.Node
func (n *EchoNode) HandleMessage(ctx context.Context, rt *node.Runtime, msg *proto.Message) error {
	req, ok := msg.Body.Payload.(Echo)
	if !ok {
		return unsupported(rt, msg)
	}
	return rt.Reply(msg, EchoOk{Echo: req.Echo})
}
