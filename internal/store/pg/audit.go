package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"laundrydesk.io/internal/auth"
	"laundrydesk.io/internal/ids"
)

func (s *Store) AppendAudit(ctx context.Context, rec *auth.AuditRecord) error {
	if s.db == nil {
		return errNoConnection
	}
	if rec == nil {
		return fmt.Errorf("%w: audit record is required", auth.ErrInvalidInput)
	}
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	oldJSON, err := marshalValues(rec.OldValues)
	if err != nil {
		return fmt.Errorf("marshal old values: %w", err)
	}
	newJSON, err := marshalValues(rec.NewValues)
	if err != nil {
		return fmt.Errorf("marshal new values: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		insert into audit_logs (id, action, table_name, record_id, old_values, new_values, user_id, trace_id)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning created_at
	`, rec.ID, rec.Action, rec.TableName, nullIfEmpty(rec.RecordID), oldJSON, newJSON, rec.UserID, nullIfEmpty(rec.TraceID)).
		Scan(&rec.CreatedAt)
	return wrapErr("append audit", err)
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]auth.AuditRecord, error) {
	if s.db == nil {
		return nil, errNoConnection
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, action, table_name, coalesce(record_id, ''), old_values, new_values, user_id, coalesce(trace_id, ''), created_at
		from audit_logs
		order by created_at desc, id desc
		limit $1
	`, auth.NormalizeAuditLimit(limit))
	if err != nil {
		return nil, wrapErr("list audit", err)
	}
	defer rows.Close()

	var result []auth.AuditRecord
	for rows.Next() {
		var (
			rec            auth.AuditRecord
			rawOld, rawNew []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Action, &rec.TableName, &rec.RecordID, &rawOld, &rawNew, &rec.UserID, &rec.TraceID, &rec.CreatedAt); err != nil {
			return nil, wrapErr("list audit", err)
		}
		if rec.OldValues, err = unmarshalValues(rawOld); err != nil {
			return nil, fmt.Errorf("decode old values: %w", err)
		}
		if rec.NewValues, err = unmarshalValues(rawNew); err != nil {
			return nil, fmt.Errorf("decode new values: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list audit", err)
	}
	return result, nil
}

// marshalValues encodes v for a jsonb column; a nil map becomes SQL NULL.
func marshalValues(v map[string]any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalValues(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
