// Package processor runs the scan pipeline: poll the content feed,
// classify items across a bounded worker pool, review escalations, and
// finalize verdicts.
package processor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/modwatch/modwatch/internal/classifier"
	"github.com/modwatch/modwatch/internal/domain"
	"github.com/modwatch/modwatch/internal/logger"
	"github.com/modwatch/modwatch/internal/router"
	"github.com/modwatch/modwatch/internal/telemetry"
)

const (
	defaultQueueDepth   = 500
	defaultConcurrency  = 4
	defaultPollInterval = 20 * time.Second
	workerDrainTimeout  = 30 * time.Second
	seenCapacity        = 4096
)

// Feed supplies new items to scan.
type Feed interface {
	Fetch(ctx context.Context, limit int) ([]*domain.Item, error)
}

// Reviewer obtains a verdict for an escalated item.
type Reviewer interface {
	Review(ctx context.Context, item *domain.Item, decision *domain.EscalationDecision) (*domain.Verdict, error)
}

// PipelineConfig holds pipeline tuning knobs.
type PipelineConfig struct {
	Concurrency  int
	QueueDepth   int
	PollInterval time.Duration
	FetchLimit   int
	ScanRate     float64
	ScanBurst    int
}

// Pipeline wires feed, classifier, reviewer, and finalizer together
// behind a bounded work queue.
type Pipeline struct {
	cfg        PipelineConfig
	feed       Feed
	classifier *classifier.Classifier
	reviewer   Reviewer
	finalizer  *Finalizer
	limiter    *rate.Limiter
	tel        *telemetry.Provider
	log        logger.Logger

	workQueue chan *domain.Item
	seen      *seenSet
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	started   bool
	mu        sync.Mutex
}

func NewPipeline(cfg PipelineConfig, feed Feed, c *classifier.Classifier, reviewer Reviewer, finalizer *Finalizer, tel *telemetry.Provider, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 100
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.ScanRate > 0 {
		burst := cfg.ScanBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.ScanRate), burst)
	}

	return &Pipeline{
		cfg:        cfg,
		feed:       feed,
		classifier: c,
		reviewer:   reviewer,
		finalizer:  finalizer,
		limiter:    limiter,
		tel:        tel,
		log:        log,
		workQueue:  make(chan *domain.Item, cfg.QueueDepth),
		seen:       newSeenSet(seenCapacity),
	}
}

// PrimeSeen marks item IDs as already handled, typically from the audit
// table at start-up so a restart does not rescan the feed tail.
func (p *Pipeline) PrimeSeen(ids []string) {
	for _, id := range ids {
		p.seen.Add(id)
	}
}

// Start launches the workers and the poll loop.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)

	for i := range p.cfg.Concurrency {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.wg.Add(1)
	go p.pollLoop(ctx)

	p.started = true
	p.log.Info("pipeline started",
		logger.Int("workers", p.cfg.Concurrency),
		logger.Int("queue_depth", p.cfg.QueueDepth),
		logger.Duration("poll_interval", p.cfg.PollInterval))
}

// Stop cancels the poll loop and drains the workers.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.log.Info("pipeline stopped")
	case <-time.After(workerDrainTimeout):
		p.log.Warn("pipeline stop timed out",
			logger.Int("remaining", len(p.workQueue)))
	}
}

func (p *Pipeline) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Pipeline) pollOnce(ctx context.Context) {
	items, err := p.feed.Fetch(ctx, p.cfg.FetchLimit)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Error("feed fetch failed", logger.Error(err))
		}
		return
	}

	enqueued := 0
	for _, item := range items {
		if !p.seen.Add(item.ID) {
			continue
		}
		select {
		case p.workQueue <- item:
			enqueued++
		case <-ctx.Done():
			return
		default:
			// Queue full. Un-mark so the next poll retries the item.
			p.seen.Remove(item.ID)
			p.log.Warn("work queue full, deferring item",
				logger.String("item_id", item.ID))
		}
	}
	if p.tel != nil {
		p.tel.Metrics.QueueDepth.Set(float64(len(p.workQueue)))
	}
	if enqueued > 0 {
		p.log.Debug("poll complete",
			logger.Int("fetched", len(items)),
			logger.Int("enqueued", enqueued))
	}
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker panic recovered",
				logger.Int("worker_id", id),
				logger.Any("panic", r))
		}
		p.wg.Done()
	}()

	if p.tel != nil {
		p.tel.Metrics.ActiveWorkers.Inc()
		defer p.tel.Metrics.ActiveWorkers.Dec()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case item := <-p.workQueue:
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
			p.handle(ctx, item)
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, item *domain.Item) {
	if p.tel != nil {
		p.tel.ItemScanned()
	}

	decision := p.classifier.Classify(ctx, item)
	if decision.Outcome == domain.OutcomeSkip {
		if p.tel != nil {
			p.tel.ItemSkipped(skipClass(decision.Reason))
		}
		return
	}
	if p.tel != nil {
		p.tel.ItemEscalated()
	}

	verdict, err := p.reviewer.Review(ctx, item, &decision)
	if errors.Is(err, router.ErrNoVerdict) {
		if _, recErr := p.finalizer.RecordUnreviewed(ctx, item, &decision); recErr != nil {
			p.log.Error("record unreviewed failed",
				logger.String("item_id", item.ID),
				logger.Error(recErr))
		}
		return
	}
	if err != nil {
		if ctx.Err() == nil {
			p.log.Error("review failed",
				logger.String("item_id", item.ID),
				logger.Error(err))
		}
		return
	}

	if _, err := p.finalizer.Finalize(ctx, item, &decision, verdict); err != nil {
		p.log.Error("finalize failed",
			logger.String("item_id", item.ID),
			logger.Error(err))
	}
}

// skipClass buckets a skip reason for the metrics label without leaking
// free-form text into label cardinality.
func skipClass(reason string) string {
	switch {
	case strings.HasPrefix(reason, "benign match"):
		return "benign_rule"
	case strings.Contains(reason, "overridden"):
		return "consensus_override"
	case strings.HasPrefix(reason, "unvalidated"):
		return "unvalidated_signal"
	default:
		return "no_signal"
	}
}

// seenSet is a fixed-capacity set with FIFO eviction, guarding against
// rescanning the overlap between consecutive feed pages.
type seenSet struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	cap   int
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		ids: make(map[string]struct{}, capacity),
		cap: capacity,
	}
}

// Add marks id as seen. Returns false when it was already present.
func (s *seenSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.ids, oldest)
	}
	return true
}

// Remove un-marks an id so a later poll can retry it. The id also
// leaves the eviction order; otherwise a re-Add would hold two slots
// and the map entry could be evicted while still queued.
func (s *seenSet) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; !ok {
		return
	}
	delete(s.ids, id)
	// Remove follows a just-failed Add, so scan from the tail.
	for i := len(s.order) - 1; i >= 0; i-- {
		if s.order[i] == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
