package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/Babbleshack/maelstrom-tools/config"
	"github.com/Babbleshack/maelstrom-tools/node"
	"github.com/Babbleshack/maelstrom-tools/protocol"
	"github.com/Babbleshack/maelstrom-tools/workload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one node process and returns its exit code
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("maelstrom-node", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configFile := flags.String("config", "", "config file (YAML/JSON)")
	workloadName := flags.String("workload", "", "workload to run (echo, unique-ids)")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	// Nothing may reach stdout before the handshake, so startup problems
	// go to the log stream.
	bootLog := hclog.New(&hclog.LoggerOptions{Name: "maelstrom", Output: stderr})

	cfg, err := config.LoadFromFile(*configFile)
	if err != nil {
		bootLog.Error("failed to load config", "error", err)
		return 1
	}
	config.LoadFromEnv(cfg)
	if *workloadName != "" {
		cfg.Workload = *workloadName
	}
	if err := cfg.Validate(); err != nil {
		bootLog.Error("invalid config", "error", err)
		return 1
	}

	logOut := stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			bootLog.Error("failed to open log file", "path", cfg.LogFile, "error", err)
			return 1
		}
		defer f.Close()
		logOut = f
	}

	w, err := workload.Lookup(cfg.Workload, cfg)
	if err != nil {
		bootLog.Error("failed to select workload", "error", err)
		return 1
	}

	codec := protocol.NewCodec(stdin, stdout, logOut,
		protocol.WithLogName(fmt.Sprintf("maelstrom.%s", w.Name)),
		protocol.WithLogLevel(cfg.HCLogLevel()),
		protocol.WithJSONLog(cfg.JSONLog()),
	)

	if err := node.Run(ctx, codec, w.Registry, w.Factory, node.WithQueueSize(cfg.QueueSize)); err != nil {
		return 1
	}
	return 0
}
