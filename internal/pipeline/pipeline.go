package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/glorisonglotech/omnibiz-sub004/internal/detector"
	"github.com/glorisonglotech/omnibiz-sub004/internal/models"
	"github.com/glorisonglotech/omnibiz-sub004/internal/notifier"
	"github.com/glorisonglotech/omnibiz-sub004/internal/remediation"
	"github.com/glorisonglotech/omnibiz-sub004/internal/repository/events"
	"github.com/glorisonglotech/omnibiz-sub004/internal/util"
)

const jobTimeout = 15 * time.Second

// EventIndexer mirrors events into the ops search cluster. Best effort.
type EventIndexer interface {
	IndexDocument(ctx context.Context, id string, document interface{}) error
}

// EventProducer streams persisted events onto the platform bus.
type EventProducer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte) error
}

// Pipeline is the fire-and-forget path behind the ingress guard: persist
// the event, evaluate it, apply automatic fixes, broadcast alerts. The
// queue is bounded; under a burst the oldest queued event is dropped
// rather than growing memory or blocking the response path. Once a job is
// taken by a worker it runs to completion.
type Pipeline struct {
	jobs chan *models.SecurityEvent

	store    events.Store
	detector *detector.Detector
	engine   *remediation.Engine
	notifier *notifier.Notifier
	indexer  EventIndexer  // may be nil
	producer EventProducer // may be nil

	eventsTopic string
	logger      *zap.Logger

	submitted atomic.Uint64
	dropped   atomic.Uint64
	processed atomic.Uint64

	wg        sync.WaitGroup
	closeOnce sync.Once
}

type Options struct {
	Buffer      int
	Workers     int
	Indexer     EventIndexer
	Producer    EventProducer
	EventsTopic string
}

func New(store events.Store, det *detector.Detector, engine *remediation.Engine, not *notifier.Notifier, opts Options, logger *zap.Logger) *Pipeline {
	if opts.Buffer <= 0 {
		opts.Buffer = 4096
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}

	p := &Pipeline{
		jobs:        make(chan *models.SecurityEvent, opts.Buffer),
		store:       store,
		detector:    det,
		engine:      engine,
		notifier:    not,
		indexer:     opts.Indexer,
		producer:    opts.Producer,
		eventsTopic: opts.EventsTopic,
		logger:      logger,
	}

	p.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go p.worker()
	}

	logger.Info("Detection pipeline started",
		util.Int("workers", opts.Workers),
		util.Int("buffer", opts.Buffer),
	)
	return p
}

// Submit queues an event without ever blocking the caller. When the queue
// is full the oldest queued event gives way to the new one; the next
// request from the same actor re-triggers any threshold anyway.
func (p *Pipeline) Submit(event *models.SecurityEvent) {
	p.submitted.Add(1)
	for {
		select {
		case p.jobs <- event:
			return
		default:
		}

		select {
		case old := <-p.jobs:
			p.dropped.Add(1)
			p.logger.Warn("Detection pipeline full, dropping oldest event",
				util.String("dropped_event_type", string(old.EventType)),
				util.Int64("total_dropped", int64(p.dropped.Load())),
			)
		default:
		}
	}
}

// Close stops accepting events and waits for queued events to finish.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
		p.wg.Wait()
		p.logger.Info("Detection pipeline drained",
			util.Int64("submitted", int64(p.submitted.Load())),
			util.Int64("processed", int64(p.processed.Load())),
			util.Int64("dropped", int64(p.dropped.Load())),
		)
	})
}

// Dropped reports events discarded under backpressure.
func (p *Pipeline) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for event := range p.jobs {
		p.process(event)
	}
}

// process runs one event through log → detect → remediate → notify. Any
// failure is logged and contained; it can never reach the request that
// produced the event.
func (p *Pipeline) process(event *models.SecurityEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Detection pipeline panic recovered",
				util.Any("panic", r),
				util.String("event_type", string(event.EventType)),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := p.store.Insert(ctx, event); err != nil {
		p.logger.Error("Failed to persist security event",
			util.String("event_type", string(event.EventType)),
			util.String("ip", event.IPAddress),
			util.ErrorField(err),
		)
		return
	}

	p.index(ctx, event)
	p.stream(ctx, event)

	findings := p.detector.Evaluate(ctx, event)
	for _, finding := range findings {
		if finding.AutoFix != models.FixNone {
			if err := p.engine.ApplyAutoFix(ctx, finding.AutoFix, event); err != nil {
				p.logger.Error("Failed to apply auto fix",
					util.String("fix", string(finding.AutoFix)),
					util.String("event_id", event.ID.String()),
					util.ErrorField(err),
				)
			}
		}
		p.notifier.Broadcast(ctx, finding, event)
	}

	p.processed.Add(1)
}

func (p *Pipeline) index(ctx context.Context, event *models.SecurityEvent) {
	if p.indexer == nil {
		return
	}
	if err := p.indexer.IndexDocument(ctx, event.ID.String(), event); err != nil {
		p.logger.Warn("Failed to index security event",
			util.String("event_id", event.ID.String()),
			util.ErrorField(err),
		)
	}
}

func (p *Pipeline) stream(ctx context.Context, event *models.SecurityEvent) {
	if p.producer == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to encode event for bus", util.ErrorField(err))
		return
	}
	if err := p.producer.ProduceMessage(ctx, p.eventsTopic, []byte(event.EventType), payload); err != nil {
		p.logger.Warn("Failed to stream security event",
			util.String("event_id", event.ID.String()),
			util.ErrorField(err),
		)
	}
}
