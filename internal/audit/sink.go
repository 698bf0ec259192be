package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"secmon-service/internal/bucketing"
	"secmon-service/internal/client"
	"secmon-service/internal/config"
	"secmon-service/internal/models"
	"secmon-service/internal/util"
)

// Recorder is the fire-and-forget audit contract. Callers never learn whether
// persistence succeeded; failures stay inside the sink.
type Recorder interface {
	Record(event *models.SecurityEvent)
}

// EventStore is the durable system of record for audit events
type EventStore interface {
	InsertEvent(ctx context.Context, event *models.SecurityEvent) error
}

// StreamPublisher pushes events onto the audit stream for downstream consumers
type StreamPublisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Sink buffers security events and fans them out to the durable store, the
// Kafka stream, the ClickHouse analytics table, and the Elasticsearch forensic
// index. Every target is best-effort; a failed write is logged and dropped.
type Sink struct {
	store     EventStore
	stream    StreamPublisher
	analytics *client.ClickHouseClient
	search    *client.ESClient
	bucketing *bucketing.BucketingManager
	logger    *zap.Logger
	index     string
	timeout   time.Duration
	queue     chan *models.SecurityEvent
	done      chan struct{}
	closeOnce sync.Once
	dropped   int64
	droppedMu sync.Mutex
}

// NewSink starts the sink worker. Any of store, stream, analytics, and search
// may be nil; the sink skips missing targets.
func NewSink(
	cfg *config.Config,
	store EventStore,
	stream StreamPublisher,
	analytics *client.ClickHouseClient,
	search *client.ESClient,
	bucketingMgr *bucketing.BucketingManager,
	logger *zap.Logger,
) *Sink {
	s := &Sink{
		store:     store,
		stream:    stream,
		analytics: analytics,
		search:    search,
		bucketing: bucketingMgr,
		logger:    logger,
		index:     cfg.Elasticsearch.Index,
		timeout:   cfg.Security.AuditWriteTimeout,
		queue:     make(chan *models.SecurityEvent, cfg.Security.AuditQueueSize),
		done:      make(chan struct{}),
	}

	go s.run()

	return s
}

// Record enqueues an event without blocking. When the queue is full the event
// is dropped and counted; audit writes must never stall the caller.
func (s *Sink) Record(event *models.SecurityEvent) {
	if event == nil {
		return
	}

	s.enrich(event)

	select {
	case s.queue <- event:
	default:
		s.droppedMu.Lock()
		s.dropped++
		dropped := s.dropped
		s.droppedMu.Unlock()
		s.logger.Warn("Audit queue full, event dropped",
			zap.String("action", event.Action),
			zap.Int64("dropped_total", dropped))
	}
}

// enrich stamps identity and partition fields at enqueue time so the worker
// writes the event exactly as the caller observed it
func (s *Sink) enrich(event *models.SecurityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if s.bucketing != nil {
		event.EventBucket = s.bucketing.GetEventBucket(event.EventID)
		event.EventDate = s.bucketing.GetDateBucket(event.OccurredAt)
	}
	if event.RiskLevel == "" {
		event.RiskLevel = models.RiskLow
	}
}

func (s *Sink) run() {
	defer close(s.done)

	for event := range s.queue {
		s.dispatch(event)
	}
}

// dispatch writes one event to every configured target in parallel
func (s *Sink) dispatch(event *models.SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if s.store != nil {
		g.Go(func() error {
			if err := s.store.InsertEvent(gctx, event); err != nil {
				s.logger.Warn("Audit store write failed",
					zap.String("event_id", event.EventID),
					zap.Error(err))
			}
			return nil
		})
	}

	if s.stream != nil {
		g.Go(func() error {
			payload, err := json.Marshal(event)
			if err != nil {
				s.logger.Warn("Audit event marshal failed", zap.Error(err))
				return nil
			}
			if err := s.stream.Publish(gctx, []byte(event.EventID), payload); err != nil {
				s.logger.Warn("Audit stream publish failed",
					zap.String("event_id", event.EventID),
					zap.Error(err))
			}
			return nil
		})
	}

	if s.analytics != nil {
		g.Go(func() error {
			err := s.analytics.BatchInsert(gctx, `
                INSERT INTO security_events (
                    event_id, event_date, occurred_at, action, resource_type,
                    resource_id, user_id, success, risk_level, ip_address
                )`, [][]interface{}{{
				event.EventID, event.EventDate, event.OccurredAt, event.Action,
				event.ResourceType, event.ResourceID, event.UserID,
				event.Success, string(event.RiskLevel), event.IPAddress,
			}})
			if err != nil {
				s.logger.Warn("Audit analytics write failed",
					zap.String("event_id", event.EventID),
					zap.Error(err))
			}
			return nil
		})
	}

	if s.search != nil {
		g.Go(func() error {
			res, err := s.search.IndexDocument(s.index, event.EventID, event)
			if err != nil {
				s.logger.Warn("Audit index write failed",
					zap.String("event_id", event.EventID),
					zap.Error(err))
				return nil
			}
			defer res.Body.Close()
			if res.IsError() {
				s.logger.Warn("Audit index write rejected",
					zap.String("event_id", event.EventID),
					zap.String("status", res.Status()))
			}
			return nil
		})
	}

	_ = g.Wait()

	util.Debug("Audit event dispatched",
		zap.String("event_id", event.EventID),
		zap.String("action", event.Action))
}

// Close drains the queue and stops the worker
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
		<-s.done
	})
}
