// Package audit records administrative actions. Entries are append-only: no sink
// exposes update or delete.
package audit

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"backoffice-svc/middleware"
	"backoffice-svc/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Sink interface {
	Append(ctx context.Context, entries ...models.AuditLogEntry) error
}

// Entry builds an entry with a fresh id.
func Entry(actor, action string, resource models.EntityType, resourceID *string, changes models.Change,
	severity models.Severity, metadata map[string]any, at time.Time) models.AuditLogEntry {
	return models.AuditLogEntry{
		ID:           uuid.NewString(),
		ActorID:      actor,
		Action:       action,
		ResourceType: resource,
		ResourceID:   resourceID,
		Changes:      changes,
		Metadata:     metadata,
		Severity:     severity,
		Timestamp:    at.UTC(),
	}
}

// MemorySink keeps entries in process.
type MemorySink struct {
	mu      sync.Mutex
	entries []models.AuditLogEntry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(_ context.Context, entries ...models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

// Entries returns a copy of everything appended so far.
func (s *MemorySink) Entries() []models.AuditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

type namedSink struct {
	name string
	sink Sink
}

// Fanout writes to a required sink and any number of best-effort mirrors. Only
// a failure of the required sink is returned.
type Fanout struct {
	required namedSink
	mirrors  []namedSink
	logger   *zap.Logger
}

func NewFanout(name string, required Sink, logger *zap.Logger) *Fanout {
	return &Fanout{required: namedSink{name: name, sink: required}, logger: logger}
}

// Mirror adds a best-effort sink.
func (f *Fanout) Mirror(name string, s Sink) *Fanout {
	f.mirrors = append(f.mirrors, namedSink{name: name, sink: s})
	return f
}

func (f *Fanout) Append(ctx context.Context, entries ...models.AuditLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	var errs []error
	if err := f.required.sink.Append(ctx, entries...); err != nil {
		middleware.RecordAuditFailure(f.required.name)
		errs = append(errs, fmt.Errorf("audit sink %s: %w", f.required.name, err))
	}
	for _, m := range f.mirrors {
		if err := m.sink.Append(ctx, entries...); err != nil {
			middleware.RecordAuditFailure(m.name)
			f.logger.Warn("Audit mirror append failed",
				zap.String("trace_id", middleware.GetTraceID(ctx)),
				zap.String("sink", m.name),
				zap.Int("entries", len(entries)),
				zap.Error(err),
			)
		}
	}
	return errors.Join(errs...)
}
