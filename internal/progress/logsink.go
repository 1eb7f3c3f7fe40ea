package progress

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/petrijr/parallel/pkg/api"
)

// itemsWindow is how many seconds of advance counts feed the items/s figure.
const itemsWindow = 15

// LogSink aggregates progress messages and writes a status line with
// log/slog on every Display action.
type LogSink struct {
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	started  bool
	worker   string
	current  int
	max      int
	messages map[string]string
	items    map[int64]int
	memory   map[string]uint64
	peak     map[string]uint64
}

// Snapshot is the aggregated progress state.
type Snapshot struct {
	Worker         string
	Current        int
	Max            int
	Messages       map[string]string
	ItemsPerSecond string
	Memory         string
}

// NewLogSink creates a LogSink. If logger is nil, slog.Default() is used.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{
		logger:   logger.With("component", "progress"),
		now:      time.Now,
		messages: map[string]string{"message": "Starting..."},
		items:    make(map[int64]int),
		memory:   make(map[string]uint64),
		peak:     make(map[string]uint64),
	}
}

// Ensure LogSink implements api.ProgressSink.
var _ api.ProgressSink = (*LogSink)(nil)

func (s *LogSink) RegisterWorker(name string, totalSteps int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.worker = name
	s.max = totalSteps
	if !s.started {
		s.started = true
		s.current = 0
	}
	s.logger.Info("progress_registered", slog.String("worker", name), slog.Int("steps", totalSteps))
}

func (s *LogSink) Action(name api.ProgressAction, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case api.ProgressAdvance:
		steps := 1
		if len(args) > 0 {
			if n, ok := args[0].(int); ok {
				steps = n
			}
		}
		s.current += steps
		if s.max > 0 && s.current > s.max {
			s.current = s.max
		}
		s.items[s.now().Unix()]++
	case api.ProgressSetMessage:
		if len(args) == 0 {
			return
		}
		key := "message"
		if len(args) > 1 {
			if k, ok := args[1].(string); ok && k != "" {
				key = k
			}
		}
		s.messages[key] = fmt.Sprint(args[0])
	case api.ProgressSetProgress:
		if len(args) > 0 {
			if n, ok := args[0].(int); ok {
				s.current = n
			}
		}
	case api.ProgressDisplay:
		snap := s.snapshotLocked()
		s.logger.Info("progress",
			slog.String("worker", snap.Worker),
			slog.Int("current", snap.Current),
			slog.Int("max", snap.Max),
			slog.String("message", snap.Messages["message"]),
			slog.String("items_per_second", snap.ItemsPerSecond),
			slog.String("memory", snap.Memory),
		)
	case api.ProgressClear:
		s.logger.Debug("progress_cleared", slog.String("worker", s.worker))
	default:
		s.logger.Warn("unknown progress action", slog.String("action", string(name)))
	}
}

func (s *LogSink) StatsReport(contextID string, memoryBytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memory[contextID] = memoryBytes
	if memoryBytes > s.peak[contextID] {
		s.peak[contextID] = memoryBytes
	}
}

// Snapshot returns the aggregated state.
func (s *LogSink) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *LogSink) snapshotLocked() Snapshot {
	msgs := make(map[string]string, len(s.messages))
	for k, v := range s.messages {
		msgs[k] = v
	}
	return Snapshot{
		Worker:         s.worker,
		Current:        s.current,
		Max:            s.max,
		Messages:       msgs,
		ItemsPerSecond: s.itemsPerSecondLocked(),
		Memory:         s.memoryLocked(),
	}
}

func (s *LogSink) itemsPerSecondLocked() string {
	if len(s.items) == 0 {
		return "0"
	}

	secs := make([]int64, 0, len(s.items))
	for sec := range s.items {
		secs = append(secs, sec)
	}
	sort.Slice(secs, func(i, j int) bool { return secs[i] < secs[j] })
	if len(secs) > itemsWindow {
		for _, old := range secs[:len(secs)-itemsWindow] {
			delete(s.items, old)
		}
		secs = secs[len(secs)-itemsWindow:]
	}

	total := 0
	for _, sec := range secs {
		total += s.items[sec]
	}
	return fmt.Sprintf("~%.2f", float64(total)/float64(len(secs)))
}

// memoryLocked renders "main, threads: Nx ~avg, Σ total ↑ peak".
func (s *LogSink) memoryLocked() string {
	var total, peak uint64
	threads := 0
	for id, m := range s.memory {
		total += m
		if id != api.MainContextID {
			threads++
		}
	}
	for _, p := range s.peak {
		peak += p
	}

	div := uint64(threads)
	if div == 0 {
		div = 1
	}
	return fmt.Sprintf("%s, threads: %dx ~%s, Σ %s ↑ %s",
		humanize.Bytes(s.memory[api.MainContextID]),
		threads,
		humanize.Bytes(total/div),
		humanize.Bytes(total),
		humanize.Bytes(peak),
	)
}
