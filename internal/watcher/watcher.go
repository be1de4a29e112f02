// Package watcher keeps a single, eventually consistent view of submissions
// observed through periodic status polling and a push channel.
package watcher

import (
	"context"
	"io"
	"sync"
	"time"

	"shodh/internal/model"
	appErr "shodh/pkg/errors"
	"shodh/pkg/utils/logger"

	"go.uber.org/zap"
)

// DefaultInterval is the status polling period.
const DefaultInterval = time.Second

var (
	// ErrAlreadyWatching is returned when an observation for the id is still active.
	ErrAlreadyWatching = appErr.New(appErr.AlreadyWatching)
	// ErrClosed is returned by Watch after Close.
	ErrClosed = appErr.New(appErr.WatcherClosed)
)

// Fetcher loads the current record of a submission.
type Fetcher interface {
	FetchSubmission(ctx context.Context, id model.ID) (model.Submission, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id model.ID) (model.Submission, error)

func (f FetcherFunc) FetchSubmission(ctx context.Context, id model.ID) (model.Submission, error) {
	return f(ctx, id)
}

// ReportFunc receives failures that are swallowed by the watcher: poll errors
// and undecodable push messages.
type ReportFunc func(ctx context.Context, msg string, err error, fields ...zap.Field)

// Source tells where an applied update came from.
type Source string

const (
	SourceInitial Source = "initial"
	SourcePoll    Source = "poll"
	SourcePush    Source = "push"
)

// Update is delivered to OnUpdate after every applied write.
type Update struct {
	Submission model.Submission
	Source     Source
}

// Config holds watcher dependencies and settings.
type Config struct {
	Fetcher        Fetcher
	Interval       time.Duration
	RequestTimeout time.Duration
	NewTicker      TickerFactory
	OnUpdate       func(Update)
	Report         ReportFunc
}

// Watcher owns the cached submission records of one client session.
type Watcher struct {
	fetcher        Fetcher
	interval       time.Duration
	requestTimeout time.Duration
	newTicker      TickerFactory
	onUpdate       func(Update)
	report         ReportFunc

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	notifyMu sync.Mutex
	records  map[model.ID]model.Submission
	active   map[model.ID]*Observation
	push     io.Closer
	closed   bool
}

// New creates a watcher.
func New(cfg Config) (*Watcher, error) {
	if cfg.Fetcher == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("fetcher is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewTimeTicker
	}
	if cfg.Report == nil {
		cfg.Report = logReport
	}
	root, cancel := context.WithCancel(context.Background())
	return &Watcher{
		fetcher:        cfg.Fetcher,
		interval:       cfg.Interval,
		requestTimeout: cfg.RequestTimeout,
		newTicker:      cfg.NewTicker,
		onUpdate:       cfg.OnUpdate,
		report:         cfg.Report,
		root:           root,
		cancel:         cancel,
		records:        make(map[model.ID]model.Submission),
		active:         make(map[model.ID]*Observation),
	}, nil
}

// Observation is one scheduled polling loop.
type Observation struct {
	id     model.ID
	done   chan struct{}
	cancel context.CancelFunc
}

// ID returns the observed submission id.
func (o *Observation) ID() model.ID { return o.id }

// Done is closed when polling stopped.
func (o *Observation) Done() <-chan struct{} { return o.done }

// Stop cancels polling without waiting.
func (o *Observation) Stop() { o.cancel() }

func finishedObservation(id model.ID) *Observation {
	done := make(chan struct{})
	close(done)
	return &Observation{id: id, done: done, cancel: func() {}}
}

// Track displays a record without scheduling polls, so push updates for it
// are applied. Tracking a terminal record is allowed.
func (w *Watcher) Track(initial model.Submission) error {
	if initial.ID == "" {
		return appErr.ValidationError("id", "required")
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if current, ok := w.records[initial.ID]; ok && current.IsTerminal() {
		w.mu.Unlock()
		return nil
	}
	if !w.storeInitialLocked(initial) {
		w.mu.Unlock()
		return nil
	}
	w.notifyLocked(Update{Submission: w.records[initial.ID], Source: SourceInitial})
	return nil
}

// storeInitialLocked caches initial unless the cached record carries a newer
// revision. It reports whether the cache changed.
func (w *Watcher) storeInitialLocked(initial model.Submission) bool {
	if current, ok := w.records[initial.ID]; ok && initial.Revision < current.Revision {
		return false
	}
	initial.Sanitize()
	w.records[initial.ID] = initial
	return true
}

// Watch displays initial and polls the submission until a terminal status is
// observed. A terminal initial record starts nothing. The observation also ends
// when ctx is cancelled or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context, initial model.Submission) (*Observation, error) {
	if initial.ID == "" {
		return nil, appErr.ValidationError("id", "required")
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := w.active[initial.ID]; ok {
		w.mu.Unlock()
		return nil, ErrAlreadyWatching
	}
	if current, ok := w.records[initial.ID]; ok && current.IsTerminal() {
		w.mu.Unlock()
		return finishedObservation(initial.ID), nil
	}

	changed := w.storeInitialLocked(initial)
	shown := w.records[initial.ID]
	if shown.IsTerminal() {
		w.notifyLocked(Update{Submission: shown, Source: SourceInitial})
		return finishedObservation(initial.ID), nil
	}

	pollCtx, cancel := context.WithCancel(w.root)
	stopOnCaller := context.AfterFunc(ctx, cancel)
	obs := &Observation{
		id:   initial.ID,
		done: make(chan struct{}),
		cancel: func() {
			stopOnCaller()
			cancel()
		},
	}
	w.active[initial.ID] = obs
	w.wg.Add(1)
	go w.poll(pollCtx, obs)
	if !changed {
		w.mu.Unlock()
		return obs, nil
	}
	w.notifyLocked(Update{Submission: shown, Source: SourceInitial})
	return obs, nil
}

func (w *Watcher) poll(ctx context.Context, obs *Observation) {
	defer w.wg.Done()
	defer close(obs.done)
	defer w.release(obs)
	defer obs.cancel()

	ticker := w.newTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}

		sub, err := w.fetch(ctx, obs.id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.report(ctx, "poll submission failed", err, zap.String("submission_id", obs.id.String()))
			continue
		}
		if sub.ID != obs.id {
			w.report(ctx, "poll returned another submission", nil,
				zap.String("submission_id", obs.id.String()),
				zap.String("got_id", sub.ID.String()))
			continue
		}
		w.apply(sub, SourcePoll)
		if w.isTerminal(obs.id) {
			return
		}
	}
}

func (w *Watcher) fetch(ctx context.Context, id model.ID) (model.Submission, error) {
	if w.requestTimeout <= 0 {
		return w.fetcher.FetchSubmission(ctx, id)
	}
	ctxFetch, cancel := context.WithTimeout(ctx, w.requestTimeout)
	defer cancel()
	return w.fetcher.FetchSubmission(ctxFetch, id)
}

func (w *Watcher) release(obs *Observation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active[obs.id] == obs {
		delete(w.active, obs.id)
	}
}

// HandlePush applies a raw push message. Undecodable messages are reported and
// dropped; messages for ids that are not displayed are ignored. It reports
// whether the cached record changed.
func (w *Watcher) HandlePush(raw []byte) bool {
	sub, err := model.DecodeSubmission(raw)
	if err != nil {
		w.report(w.root, "decode push message failed", err, zap.Int("bytes", len(raw)))
		return false
	}
	return w.apply(sub, SourcePush)
}

// apply replaces the cached record by full overwrite. Records that are already
// terminal never change, and updates older than the cached revision are dropped.
func (w *Watcher) apply(update model.Submission, source Source) bool {
	w.mu.Lock()
	current, ok := w.records[update.ID]
	if !ok || current.IsTerminal() || update.Revision < current.Revision {
		w.mu.Unlock()
		return false
	}
	update.Sanitize()
	w.records[update.ID] = update
	if update.IsTerminal() {
		if obs, ok := w.active[update.ID]; ok {
			obs.cancel()
		}
	}
	w.notifyLocked(Update{Submission: update, Source: source})
	return true
}

// notifyLocked releases w.mu and runs the update callback. Callbacks run one
// at a time in write order.
func (w *Watcher) notifyLocked(u Update) {
	onUpdate := w.onUpdate
	if onUpdate == nil {
		w.mu.Unlock()
		return
	}
	w.notifyMu.Lock()
	w.mu.Unlock()
	defer w.notifyMu.Unlock()
	onUpdate(u)
}

func (w *Watcher) isTerminal(id model.ID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	sub, ok := w.records[id]
	return ok && sub.IsTerminal()
}

// Snapshot returns the latest applied record for id.
func (w *Watcher) Snapshot(id model.ID) (model.Submission, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	sub, ok := w.records[id]
	return sub, ok
}

// Watching reports whether a poller is active for id.
func (w *Watcher) Watching(id model.ID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.active[id]
	return ok
}

// AttachPush hands the push channel to the watcher so Close tears it down.
func (w *Watcher) AttachPush(c io.Closer) {
	w.mu.Lock()
	closed := w.closed
	if !closed {
		w.push = c
	}
	w.mu.Unlock()
	if closed && c != nil {
		_ = c.Close()
	}
}

// Close cancels all polling, waits for the loops to exit and closes the push
// channel. Calling Close more than once is safe.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	push := w.push
	w.push = nil
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	if push != nil {
		return push.Close()
	}
	return nil
}

func logReport(ctx context.Context, msg string, err error, fields ...zap.Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.Warn(ctx, msg, fields...)
}
