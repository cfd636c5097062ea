package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MRamiBalles/PetGuild/internal/domain/pet"
	"github.com/MRamiBalles/PetGuild/internal/events"
)

const eventColumns = `id, seq, tenant_id, timestamp, event_type, actor_id, pet_id, message, pet`

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

func (r *SQLiteEventRepository) Append(ctx context.Context, event events.Event) error {
	var petJSON sql.NullString
	if event.Pet != nil {
		data, err := json.Marshal(event.Pet)
		if err != nil {
			return fmt.Errorf("failed to marshal pet: %w", err)
		}
		petJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `INSERT INTO events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.Seq, event.Tenant, event.Timestamp.UnixNano(), string(event.Type),
		event.ActorID, event.PetID, event.Message, petJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) Recent(ctx context.Context, limit int) ([]events.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM (
		SELECT ` + eventColumns + ` FROM events ORDER BY seq DESC LIMIT ?
	) ORDER BY seq ASC`
	return r.getMany(ctx, query, limit)
}

func (r *SQLiteEventRepository) ByTenant(ctx context.Context, tenant string, since uint64) ([]events.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE tenant_id = ? AND seq > ? ORDER BY seq ASC`
	return r.getMany(ctx, query, tenant, since)
}

func (r *SQLiteEventRepository) PruneBefore(ctx context.Context, tenant string, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE tenant_id = ? AND timestamp < ?`, tenant, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, query string, args ...any) ([]events.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []events.Event
	for rows.Next() {
		var (
			e       events.Event
			ts      int64
			typ     string
			petJSON sql.NullString
		)
		err := rows.Scan(&e.ID, &e.Seq, &e.Tenant, &ts, &typ, &e.ActorID, &e.PetID, &e.Message, &petJSON)
		if err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.Type = events.EventType(typ)
		if petJSON.Valid {
			var p pet.Pet
			if err := json.Unmarshal([]byte(petJSON.String), &p); err != nil {
				return nil, fmt.Errorf("failed to unmarshal pet of event %s: %w", e.ID, err)
			}
			e.Pet = &p
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// ---------------------------------------------------------
// SQLiteDocumentRepository
// ---------------------------------------------------------

type SQLiteDocumentRepository struct {
	db *sql.DB
}

func NewSQLiteDocumentRepository(db *sql.DB) *SQLiteDocumentRepository {
	return &SQLiteDocumentRepository{db: db}
}

func (r *SQLiteDocumentRepository) Upsert(ctx context.Context, doc TenantDocument) error {
	query := `
		INSERT INTO tenant_documents (tenant_id, document, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			document=excluded.document,
			updated_at=excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, doc.Tenant, string(doc.Document), doc.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert tenant %s: %w", doc.Tenant, err)
	}
	return nil
}

func (r *SQLiteDocumentRepository) Get(ctx context.Context, tenant string) (*TenantDocument, error) {
	query := `SELECT tenant_id, document, updated_at FROM tenant_documents WHERE tenant_id = ?`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, tenant))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *SQLiteDocumentRepository) All(ctx context.Context) ([]TenantDocument, error) {
	query := `SELECT tenant_id, document, updated_at FROM tenant_documents ORDER BY tenant_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []TenantDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (TenantDocument, error) {
	var (
		doc  TenantDocument
		body string
		at   int64
	)
	if err := s.Scan(&doc.Tenant, &body, &at); err != nil {
		return doc, err
	}
	doc.Document = []byte(body)
	doc.UpdatedAt = time.Unix(0, at).UTC()
	return doc, nil
}
