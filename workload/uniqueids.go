package workload

import (
	"context"
	"fmt"

	"github.com/Babbleshack/maelstrom-tools/config"
	"github.com/Babbleshack/maelstrom-tools/node"
	"github.com/Babbleshack/maelstrom-tools/proto"
	"github.com/Babbleshack/maelstrom-tools/snowflake"
	"github.com/Babbleshack/maelstrom-tools/storage"
)

// Generate requests a cluster-wide unique id
type Generate struct{}

// Type implements proto.Payload
func (Generate) Type() string { return "generate" }

// GenerateOk carries a generated id
type GenerateOk struct {
	ID uint64 `json:"id"`
}

// Type implements proto.Payload
func (GenerateOk) Type() string { return "generate_ok" }

// UniqueIDsRegistry lists the variants a unique-ids node decodes
func UniqueIDsRegistry() *proto.Registry {
	return proto.NewRegistry(proto.VariantOf[Generate](), proto.VariantOf[GenerateOk](), proto.ErrorVariant)
}

// UniqueIDsNode hands out snowflake ids. Its worker id comes from the
// numeric suffix of the node id, so ids are unique across the cluster
// without coordination.
type UniqueIDsNode struct {
	gen   *snowflake.Generator
	store *storage.CheckpointStore
}

// UniqueIDsFactory builds unique-ids nodes using cfg's node id prefix,
// rollover backoff and optional checkpoint directory.
func UniqueIDsFactory(cfg *config.Config, opts ...snowflake.Option) node.Factory {
	return func(rt *node.Runtime, hello proto.Init) (node.Node, error) {
		workerID, err := snowflake.WorkerIDFromNodeID(hello.NodeID, cfg.NodeIDPrefix)
		if err != nil {
			return nil, err
		}

		n := &UniqueIDsNode{}
		genOpts := []snowflake.Option{snowflake.WithRolloverBackoff(cfg.RolloverBackoff)}

		if path := cfg.CheckpointPath(hello.NodeID); path != "" {
			store, err := storage.OpenCheckpointStore(path)
			if err != nil {
				return nil, err
			}
			n.store = store
			genOpts = append(genOpts, snowflake.WithCheckpoint(store))
			rt.Logger().Info("checkpointing ids", "path", path)
		}

		gen, err := snowflake.New(workerID, append(genOpts, opts...)...)
		if err != nil {
			n.Close()
			return nil, err
		}
		n.gen = gen

		rt.Logger().Debug("id generator ready", "worker_id", workerID)
		return n, nil
	}
}

// HandleMessage implements node.Node
func (n *UniqueIDsNode) HandleMessage(ctx context.Context, rt *node.Runtime, msg *proto.Message) error {
	if _, ok := msg.Body.Payload.(Generate); !ok {
		return unsupported(rt, msg)
	}

	id, err := n.gen.Next()
	if err != nil {
		return fmt.Errorf("failed to generate id: %w", err)
	}

	return rt.Reply(msg, GenerateOk{ID: id})
}

// Close releases the checkpoint store, if any
func (n *UniqueIDsNode) Close() error {
	if n.store == nil {
		return nil
	}
	return n.store.Close()
}
