package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"backoffice-svc/models"
)

type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// Append inserts all entries in one transaction.
func (s *PostgresSink) Append(ctx context.Context, entries ...models.AuditLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, action, resource_type, resource_id, changes, metadata, severity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`)
	if err != nil {
		return fmt.Errorf("failed to prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		changes, err := json.Marshal(e.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal audit changes: %w", err)
		}
		meta := e.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		metadata, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.ActorID, e.Action, e.ResourceType, e.ResourceID,
			changes, metadata, e.Severity, e.Timestamp); err != nil {
			return fmt.Errorf("failed to insert audit entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit entries: %w", err)
	}
	return nil
}
