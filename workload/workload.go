// Package workload contains the node implementations a process can run.
package workload

import (
	"fmt"

	"github.com/Babbleshack/maelstrom-tools/config"
	"github.com/Babbleshack/maelstrom-tools/node"
	"github.com/Babbleshack/maelstrom-tools/proto"
)

// Workload pairs the message variants a node understands with the factory
// that builds it.
type Workload struct {
	Name     string
	Registry *proto.Registry
	Factory  node.Factory
}

// Lookup returns the workload called name configured by cfg
func Lookup(name string, cfg *config.Config) (Workload, error) {
	switch name {
	case config.WorkloadEcho:
		return Workload{Name: name, Registry: EchoRegistry(), Factory: EchoFactory(cfg)}, nil
	case config.WorkloadUniqueIDs:
		return Workload{Name: name, Registry: UniqueIDsRegistry(), Factory: UniqueIDsFactory(cfg)}, nil
	default:
		return Workload{}, fmt.Errorf("unknown workload %q", name)
	}
}

// unsupported answers a message the node decodes but does not serve.
// Error bodies are only logged so two nodes never bounce errors forever.
func unsupported(rt *node.Runtime, msg *proto.Message) error {
	if e, ok := msg.Body.Payload.(proto.Error); ok {
		rt.Logger().Warn("peer reported error", "from", msg.Src, "code", e.Code, "text", e.Text)
		return nil
	}

	rt.Logger().Warn("unsupported message", "message", msg.String())
	return rt.ReplyError(msg, proto.ErrCodeNotSupported, fmt.Sprintf("%s is not supported", msg.Body.Type()))
}
