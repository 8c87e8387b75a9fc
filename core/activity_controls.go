package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type ActivityRetentionPolicy struct {
	TTL    time.Duration
	RowCap int
}

func (p ActivityRetentionPolicy) IsZero() bool {
	return p.TTL <= 0 && p.RowCap <= 0
}

type ActivityRetentionPruner interface {
	Prune(ctx context.Context, policy ActivityRetentionPolicy) (deleted int, err error)
}

// ActivityStore is a ledger that records entries and lists them back.
type ActivityStore interface {
	ActivitySink
	ActivityReader
}

// OperationalActivitySink moves ledger writes off the operation path. Entries
// are queued and written in order by one worker; a full queue or a failed
// write goes to the fallback sink. List first waits for queued writes.
type OperationalActivitySink struct {
	primary  ActivityStore
	fallback ActivitySink
	policy   ActivityRetentionPolicy
	pruner   ActivityRetentionPruner

	queue chan activityItem
	now   func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

type activityItem struct {
	entry   ActivityEntry
	barrier chan struct{}
}

func NewOperationalActivitySink(
	primary ActivityStore,
	fallback ActivitySink,
	policy ActivityRetentionPolicy,
	bufferSize int,
) (*OperationalActivitySink, error) {
	if primary == nil {
		return nil, fmt.Errorf("core: primary activity store is required")
	}
	if bufferSize <= 0 {
		bufferSize = 128
	}

	sink := &OperationalActivitySink{
		primary:  primary,
		fallback: fallback,
		policy:   policy,
		queue:    make(chan activityItem, bufferSize),
		now: func() time.Time {
			return time.Now().UTC()
		},
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if pruner, ok := primary.(ActivityRetentionPruner); ok {
		sink.pruner = pruner
	}
	go sink.run()
	return sink, nil
}

func (s *OperationalActivitySink) Record(ctx context.Context, entry ActivityEntry) error {
	if s == nil || s.primary == nil {
		return fmt.Errorf("core: operational activity sink is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	select {
	case <-s.stopCh:
		return s.recordFallback(ctx, entry)
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return s.recordFallback(ctx, entry)
	case s.queue <- activityItem{entry: entry}:
		return nil
	default:
		return s.recordFallback(ctx, entry)
	}
}

func (s *OperationalActivitySink) recordFallback(ctx context.Context, entry ActivityEntry) error {
	if s.fallback != nil {
		return s.fallback.Record(ctx, entry)
	}
	return nil
}

// Flush blocks until every entry queued before the call has been written.
func (s *OperationalActivitySink) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	barrier := make(chan struct{})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return nil
	case s.queue <- activityItem{barrier: barrier}:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-barrier:
		return nil
	case <-s.doneCh:
		return nil
	}
}

func (s *OperationalActivitySink) List(ctx context.Context, filter ActivityFilter) (ActivityPage, error) {
	if s == nil || s.primary == nil {
		return ActivityPage{}, fmt.Errorf("core: operational activity sink is not configured")
	}
	if err := s.Flush(ctx); err != nil {
		return ActivityPage{}, err
	}
	return s.primary.List(ctx, filter)
}

// EnforceRetention prunes the primary store with the configured policy.
func (s *OperationalActivitySink) EnforceRetention(ctx context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: operational activity sink is not configured")
	}
	return s.Prune(ctx, s.policy)
}

func (s *OperationalActivitySink) Prune(ctx context.Context, policy ActivityRetentionPolicy) (int, error) {
	if s == nil || s.pruner == nil || policy.IsZero() {
		return 0, nil
	}
	if err := s.Flush(ctx); err != nil {
		return 0, err
	}
	return s.pruner.Prune(ctx, policy)
}

// Close writes what is already queued and stops the worker.
func (s *OperationalActivitySink) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}

func (s *OperationalActivitySink) run() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			for {
				select {
				case item := <-s.queue:
					s.write(item)
				default:
					return
				}
			}
		case item := <-s.queue:
			s.write(item)
		}
	}
}

func (s *OperationalActivitySink) write(item activityItem) {
	if item.barrier != nil {
		close(item.barrier)
		return
	}
	if err := s.primary.Record(context.Background(), item.entry); err != nil && s.fallback != nil {
		_ = s.fallback.Record(context.Background(), item.entry)
	}
}

// LoggerActivitySink writes entries the ledger could not take to a logger.
type LoggerActivitySink struct {
	logger Logger
}

func NewLoggerActivitySink(logger Logger) *LoggerActivitySink {
	return &LoggerActivitySink{logger: logger}
}

func (s *LoggerActivitySink) Record(_ context.Context, entry ActivityEntry) error {
	if s == nil || s.logger == nil {
		return nil
	}
	s.logger.Warn("activity entry not persisted",
		"operation", entry.Operation,
		"module", entry.Module,
		"record_id", entry.RecordID,
		"status", string(entry.Status),
		"code", entry.Code,
		"duration_ms", entry.DurationMS,
	)
	return nil
}
