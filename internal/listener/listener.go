// Package listener implements the polling contract-event relay: it
// periodically scans the chain for marketplace events, filters out
// already-delivered occurrences through a bounded dedupe cache, and hands
// fresh ones to the notification fan-out. The relay is best-effort
// background machinery — it never crashes the host process.
package listener

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/peerloop/marketplace/internal/chain"
	"github.com/peerloop/marketplace/internal/metrics"
	"github.com/peerloop/marketplace/internal/notify"
)

// Defaults mirror the knobs in Config.
const (
	DefaultPollInterval   = 3 * time.Second
	DefaultBackoff        = 2 * time.Second
	DefaultInitialDelay   = 200 * time.Millisecond
	DefaultLookback       = 2
	DefaultDedupeCapacity = 1000
)

// topicOrder is the fixed per-cycle processing order.
var topicOrder = []chain.EventKind{chain.EventListed, chain.EventSold, chain.EventDeleted}

// ChainReader is the read-only chain surface the listener depends on.
// *chain.Client satisfies it.
type ChainReader interface {
	HeadNumber(ctx context.Context) (uint64, error)
	FilterEvents(ctx context.Context, kind chain.EventKind, from, to uint64) ([]chain.Event, error)
	Close()
}

// Config holds the listener knobs. Zero values select the defaults above.
type Config struct {
	RPCURL          string
	ContractAddress string
	PollInterval    time.Duration
	Backoff         time.Duration
	InitialDelay    time.Duration
	Lookback        uint64
	DedupeCapacity  int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.Lookback == 0 {
		c.Lookback = DefaultLookback
	}
	if c.DedupeCapacity <= 0 {
		c.DedupeCapacity = DefaultDedupeCapacity
	}
	return c
}

// Listener owns the dedupe cache and poll window and exposes only Start and
// Stop. All polls run on a single goroutine, so cycles never overlap even
// when an RPC call outlasts the poll interval.
type Listener struct {
	cfg      Config
	chain    ChainReader
	notifier notify.Notifier
	cache    *DedupeCache
	window   *WindowTracker

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a listener over the given chain reader. The listener takes
// ownership of the reader and closes it on Stop.
func New(reader ChainReader, notifier notify.Notifier, cfg Config) *Listener {
	cfg = cfg.withDefaults()
	return &Listener{
		cfg:      cfg,
		chain:    reader,
		notifier: notifier,
		cache:    NewDedupeCache(cfg.DedupeCapacity),
		window:   NewWindowTracker(cfg.Lookback),
	}
}

// StartRelay wires a listener from configuration and starts it, returning a
// stop function. When the RPC endpoint or contract address is missing, or the
// endpoint cannot be dialed, it logs and returns a no-op stop instead of
// failing the host process.
func StartRelay(ctx context.Context, cfg Config, notifier notify.Notifier) func() {
	if cfg.RPCURL == "" || cfg.ContractAddress == "" {
		slog.Error("contract listener not started: RPC_URL or CONTRACT_ADDRESS missing")
		return func() {}
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL, cfg.ContractAddress)
	if err != nil {
		slog.Error("contract listener not started", "err", err)
		return func() {}
	}

	l := New(client, notifier, cfg)
	l.Start()
	return l.Stop
}

// Start launches the poll loop. Calling Start more than once, or after Stop,
// has no effect.
func (l *Listener) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.stopped {
		return
	}
	l.started = true

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx)
}

// Stop cancels polling, waits for the loop to exit, and releases the chain
// connection. Idempotent; safe to call concurrently.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.stopped {
		done := l.done
		l.mu.Unlock()
		if done != nil {
			<-done
		}
		return
	}
	l.stopped = true
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	l.chain.Close()
	slog.Info("contract listener stopped")
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)

	head, err := l.chain.HeadNumber(ctx)
	if err != nil {
		// Same fallback as a cold node: scan everything from the genesis
		// side of the window until the first successful head query.
		slog.Error("failed to initialize chain head", "err", err)
		l.window.Reset(0)
	} else {
		l.window.Init(head)
		slog.Info("contract polling initialized", "start_block", l.window.LastProcessed()+1)
	}

	kick := time.NewTimer(l.cfg.InitialDelay)
	defer kick.Stop()
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-kick.C:
		case <-ticker.C:
		}

		if err := l.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("poll cycle failed", "err", err)
			metrics.PollErrors.Inc()

			// Fixed backoff before the window is retried; lastProcessed is
			// untouched, so the next cycle re-scans the same range and the
			// dedupe cache suppresses anything already delivered.
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.cfg.Backoff):
			}
		}
	}
}

// poll runs one cycle: head query, range computation, the three topic
// queries in fixed order, and the window commit. Any error aborts the cycle
// before commit.
func (l *Listener) poll(ctx context.Context) error {
	head, err := l.chain.HeadNumber(ctx)
	if err != nil {
		return err
	}

	rng, ok := l.window.NextRange(head)
	if !ok {
		return nil // nothing new
	}

	for _, kind := range topicOrder {
		events, err := l.chain.FilterEvents(ctx, kind, rng.From, rng.To)
		if err != nil {
			return err
		}
		for _, ev := range events {
			id := EventID{TxHash: ev.TxHash, LogIndex: ev.LogIndex}
			if !l.cache.Admit(id) {
				metrics.DedupeDrops.Inc()
				continue
			}

			slog.Info("contract event",
				"kind", ev.Kind, "product", ev.ProductID, "tx", ev.TxHash, "log_index", ev.LogIndex)
			l.notifier.Emit(notify.Event{
				Kind:                string(ev.Kind),
				SubjectID:           ev.ProductID,
				DisplayName:         ev.Name,
				SourceTransactionID: ev.TxHash,
				SourceLogPosition:   ev.LogIndex,
			})
			metrics.EventsRelayed.WithLabelValues(string(ev.Kind)).Inc()
		}
	}

	l.window.Commit(head)
	metrics.PollCycles.Inc()
	return nil
}
