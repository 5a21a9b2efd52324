package snowflake

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bit layout of a generated id: seconds | worker | sequence
const (
	WorkerIDBits = 5
	SequenceBits = 12

	MaxWorkerID = (1 << WorkerIDBits) - 1
	MaxSequence = (1 << SequenceBits) - 1

	timestampShift = WorkerIDBits + SequenceBits
)

// DefaultRolloverBackoff is how long Next sleeps between clock reads after
// the sequence for the current second is exhausted.
const DefaultRolloverBackoff = time.Millisecond

// ErrClockMovedBackwards is returned by Next when the wall clock reads
// earlier than the last second an id was issued for.
var ErrClockMovedBackwards = errors.New("clock moved backwards")

// Checkpointer persists the last second a worker issued ids for, so a
// restarted process can pick up where the previous one stopped.
type Checkpointer interface {
	Load(workerID uint64) (timestamp uint64, ok bool, err error)
	Save(workerID uint64, timestamp uint64) error
}

// Generator produces unique 64-bit ids for one worker.
// It is not safe for concurrent use.
type Generator struct {
	workerID      uint64
	sequence      uint64
	lastTimestamp uint64

	now        func() time.Time
	sleep      func(time.Duration)
	backoff    time.Duration
	checkpoint Checkpointer
}

// Option configures a Generator
type Option func(*Generator)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// WithSleep overrides the function used to wait out a sequence rollover
func WithSleep(sleep func(time.Duration)) Option {
	return func(g *Generator) {
		g.sleep = sleep
	}
}

// WithRolloverBackoff sets the delay between clock reads on rollover
func WithRolloverBackoff(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.backoff = d
		}
	}
}

// WithCheckpoint restores and records the last issued second through cp
func WithCheckpoint(cp Checkpointer) Option {
	return func(g *Generator) {
		g.checkpoint = cp
	}
}

// New creates a generator for the given worker id
func New(workerID uint64, opts ...Option) (*Generator, error) {
	if workerID > MaxWorkerID {
		return nil, fmt.Errorf("worker id %d out of range (max %d)", workerID, MaxWorkerID)
	}

	g := &Generator{
		workerID: workerID,
		now:      time.Now,
		sleep:    time.Sleep,
		backoff:  DefaultRolloverBackoff,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.checkpoint != nil {
		ts, ok, err := g.checkpoint.Load(workerID)
		if err != nil {
			return nil, fmt.Errorf("failed to load checkpoint for worker %d: %w", workerID, err)
		}
		if ok {
			// The previous run may have used any sequence in that second,
			// so treat it as exhausted.
			g.lastTimestamp = ts
			g.sequence = MaxSequence
		}
	}

	return g, nil
}

// WorkerID returns the worker id embedded in generated ids
func (g *Generator) WorkerID() uint64 {
	return g.workerID
}

// Next returns the next id. It fails with ErrClockMovedBackwards rather
// than risk issuing a duplicate.
func (g *Generator) Next() (uint64, error) {
	ts := g.seconds()

	if ts < g.lastTimestamp {
		return 0, fmt.Errorf("%w: now %d, last issued %d", ErrClockMovedBackwards, ts, g.lastTimestamp)
	}

	if ts == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & MaxSequence
		if g.sequence == 0 {
			// Sequence exhausted for this second, wait for the clock to tick
			for ts <= g.lastTimestamp {
				g.sleep(g.backoff)
				ts = g.seconds()
			}
		}
	} else {
		g.sequence = 0
	}

	if ts != g.lastTimestamp && g.checkpoint != nil {
		if err := g.checkpoint.Save(g.workerID, ts); err != nil {
			return 0, fmt.Errorf("failed to save checkpoint: %w", err)
		}
	}
	g.lastTimestamp = ts

	return ts<<timestampShift | g.workerID<<SequenceBits | g.sequence, nil
}

func (g *Generator) seconds() uint64 {
	return uint64(g.now().Unix())
}

// Decompose splits an id back into its timestamp, worker and sequence parts
func Decompose(id uint64) (timestamp, workerID, sequence uint64) {
	return id >> timestampShift, (id >> SequenceBits) & MaxWorkerID, id & MaxSequence
}

// WorkerIDFromNodeID derives a worker id from a node name such as "n3" by
// stripping prefix and parsing the remainder.
func WorkerIDFromNodeID(nodeID, prefix string) (uint64, error) {
	rest, ok := strings.CutPrefix(nodeID, prefix)
	if !ok {
		return 0, fmt.Errorf("node id %q does not start with %q", nodeID, prefix)
	}

	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid node id %q: %w", nodeID, err)
	}

	if id > MaxWorkerID {
		return 0, fmt.Errorf("node id %q maps to worker %d, max is %d", nodeID, id, MaxWorkerID)
	}

	return id, nil
}
