// Package activity keeps the last heard log: every voice transmission the
// gateway relays is recorded in the database once it ends.
package activity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/database"
	"github.com/dbehnke/ysf-gateway/pkg/gateway"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
)

const (
	// DefaultMinDuration drops key-ups too short to be a transmission
	DefaultMinDuration = 500 * time.Millisecond
	// DefaultStaleAfter ends a stream whose terminator was lost
	DefaultStaleAfter = 3 * time.Second

	queueSize     = 64
	sweepInterval = time.Second
	pruneInterval = time.Hour
)

// Store is the part of the transmission repository the log writes to
type Store interface {
	Create(tx *database.Transmission) error
	DeleteOlderThan(before time.Time) (int64, error)
}

// Config tunes what is recorded and for how long
type Config struct {
	MinDuration time.Duration
	StaleAfter  time.Duration
	// Retention deletes older records; zero keeps everything
	Retention time.Duration
}

type activeStream struct {
	callsign  string
	network   string
	dstID     int
	dstName   string
	startTime time.Time
	lastSeen  time.Time
	frames    int
}

// Logger records transmissions. It is a gateway.Observer; the callbacks only
// queue records, Run writes them.
type Logger struct {
	store  Store
	cfg    Config
	logger *logger.Logger
	now    func() time.Time

	mu     sync.Mutex
	link   gateway.Status
	active map[gateway.Direction]*activeStream

	records chan *database.Transmission
}

var _ gateway.Observer = (*Logger)(nil)

// New creates a transmission log over store
func New(store Store, cfg Config, log *logger.Logger) *Logger {
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = DefaultMinDuration
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	return &Logger{
		store:   store,
		cfg:     cfg,
		logger:  log.WithComponent("activity"),
		now:     time.Now,
		active:  make(map[gateway.Direction]*activeStream),
		records: make(chan *database.Transmission, queueSize),
	}
}

// LinkChanged implements gateway.Observer
func (l *Logger) LinkChanged(s gateway.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.link = s
}

// FrameRelayed implements gateway.Observer
func (l *Logger) FrameRelayed(dir gateway.Direction, _ reflectors.NetworkType) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s := l.active[dir]; s != nil {
		s.lastSeen = l.now()
		s.frames++
	}
}

// Transmission implements gateway.Observer
func (l *Logger) Transmission(dir gateway.Direction, callsign string, active bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !active {
		l.finish(dir)
		return
	}

	// a new header without a terminator closes the previous stream
	l.finish(dir)
	now := l.now()
	l.active[dir] = &activeStream{
		callsign:  strings.TrimSpace(callsign),
		network:   l.link.Network,
		dstID:     l.link.DstID,
		dstName:   strings.TrimSpace(l.link.Name),
		startTime: now,
		lastSeen:  now,
	}
	l.logger.Debug("Started tracking transmission",
		logger.String("direction", dir.String()),
		logger.String("callsign", callsign))
}

// WiresXCommand implements gateway.Observer
func (l *Logger) WiresXCommand(string, string) {}

// LinkTimeout implements gateway.Observer
func (l *Logger) LinkTimeout() {}

// finish queues the stream in dir when it lasted long enough. Callers hold
// mu.
func (l *Logger) finish(dir gateway.Direction) {
	s := l.active[dir]
	if s == nil {
		return
	}
	delete(l.active, dir)

	end := l.now()
	if s.lastSeen.After(s.startTime) && end.Sub(s.lastSeen) > l.cfg.StaleAfter {
		end = s.lastSeen
	}
	duration := end.Sub(s.startTime)
	if duration < l.cfg.MinDuration {
		l.logger.Debug("Skipped very short transmission",
			logger.String("callsign", s.callsign),
			logger.Duration("duration", duration))
		return
	}

	tx := &database.Transmission{
		Callsign:  s.callsign,
		Direction: dir.String(),
		Network:   s.network,
		DstID:     s.dstID,
		DstName:   s.dstName,
		Duration:  duration.Seconds(),
		Frames:    s.frames,
		StartTime: s.startTime,
		EndTime:   end,
	}
	select {
	case l.records <- tx:
	default:
		l.logger.Warn("Transmission queue full, dropping record",
			logger.String("callsign", s.callsign))
	}
}

// CleanupStaleStreams ends streams with no frames for longer than the
// configured StaleAfter
func (l *Logger) CleanupStaleStreams() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for dir, s := range l.active {
		if now.Sub(s.lastSeen) > l.cfg.StaleAfter {
			l.finish(dir)
		}
	}
}

// ActiveCount returns the number of transmissions in progress
func (l *Logger) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}

// Run writes queued records until ctx is cancelled, then flushes the queue
func (l *Logger) Run(ctx context.Context) {
	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()
	prune := time.NewTicker(pruneInterval)
	defer prune.Stop()

	l.prune()
	for {
		select {
		case tx := <-l.records:
			l.save(tx)
		case <-sweep.C:
			l.CleanupStaleStreams()
		case <-prune.C:
			l.prune()
		case <-ctx.Done():
			for {
				select {
				case tx := <-l.records:
					l.save(tx)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) save(tx *database.Transmission) {
	if err := l.store.Create(tx); err != nil {
		l.logger.Error("Failed to save transmission",
			logger.Error(err),
			logger.String("callsign", tx.Callsign))
		return
	}
	l.logger.Debug("Saved transmission",
		logger.String("callsign", tx.Callsign),
		logger.String("direction", tx.Direction),
		logger.Float64("duration", tx.Duration))
}

func (l *Logger) prune() {
	if l.cfg.Retention <= 0 {
		return
	}
	n, err := l.store.DeleteOlderThan(l.now().Add(-l.cfg.Retention))
	if err != nil {
		l.logger.Warn("Failed to prune transmissions", logger.Error(err))
		return
	}
	if n > 0 {
		l.logger.Info("Pruned transmissions", logger.Int64("deleted", n))
	}
}
