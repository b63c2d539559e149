package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/username/budgetwise/backend/src/logger"
)

// sqliteStore persists documents in the shared SQLite database. Payloads live
// in a single JSON column; collection+id is the primary key.
type sqliteStore struct {
	db  *sql.DB
	hub *hub
}

// NewSQLiteStore creates a DocumentStore backed by db. The documents table
// must exist (see db/migrations).
func NewSQLiteStore(db *sql.DB) DocumentStore {
	s := &sqliteStore{db: db}
	// Hub snapshots are not tied to any caller's request.
	s.hub = newHub(func(collection string, filter Filter) (Snapshot, error) {
		return s.list(context.Background(), collection, filter)
	})
	return s
}

func (s *sqliteStore) Create(ctx context.Context, collection, ownerID string, data json.RawMessage) (string, error) {
	if collection == "" || ownerID == "" || len(data) == 0 {
		return "", &Error{Kind: KindInvalidArgument, Op: "create"}
	}

	id := uuid.New().String()
	createdAt := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, owner_id, created_at, data) VALUES (?, ?, ?, ?, ?)`,
		collection, id, ownerID, createdAt, string(data))
	if err != nil {
		return "", s.wrap("create", err)
	}

	s.hub.broadcast(collection, ownerID)
	return id, nil
}

func (s *sqliteStore) Update(ctx context.Context, collection, id string, data json.RawMessage) error {
	if len(data) == 0 {
		return &Error{Kind: KindInvalidArgument, Op: "update"}
	}

	var ownerID string
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &Error{Kind: KindNotFound, Op: "update"}
		}
		return s.wrap("update", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE documents SET data = ? WHERE collection = ? AND id = ?`, string(data), collection, id)
	if err != nil {
		return s.wrap("update", err)
	}

	s.hub.broadcast(collection, ownerID)
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, collection, id string) error {
	var ownerID string
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Deleting an absent record is a no-op.
			return nil
		}
		return s.wrap("delete", err)
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return s.wrap("delete", err)
	}

	s.hub.broadcast(collection, ownerID)
	return nil
}

func (s *sqliteStore) GetOne(ctx context.Context, collection, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, created_at, data FROM documents WHERE collection = ? AND id = ?`, collection, id)

	var rec Record
	var data string
	if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.CreatedAt, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &Error{Kind: KindNotFound, Op: "getOne"}
		}
		return nil, s.wrap("getOne", err)
	}
	rec.Data = json.RawMessage(data)
	return &rec, nil
}

func (s *sqliteStore) List(ctx context.Context, collection string, filter Filter) (Snapshot, error) {
	return s.list(ctx, collection, filter)
}

func (s *sqliteStore) Subscribe(collection string, filter Filter) (<-chan Snapshot, UnsubscribeFunc) {
	return s.hub.subscribe(collection, filter)
}

func (s *sqliteStore) Close() error {
	s.hub.close()
	return nil
}

// list computes the full snapshot for a collection and filter, newest first by
// creation so subscribers see a stable base order.
func (s *sqliteStore) list(ctx context.Context, collection string, filter Filter) (Snapshot, error) {
	query := `SELECT id, owner_id, created_at, data FROM documents WHERE collection = ?`
	args := []interface{}{collection}
	if filter.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrap("list", err)
	}
	defer rows.Close()

	snap := Snapshot{}
	for rows.Next() {
		var rec Record
		var data string
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.CreatedAt, &data); err != nil {
			return nil, s.wrap("list", err)
		}
		rec.Data = json.RawMessage(data)
		snap = append(snap, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list", err)
	}
	return snap, nil
}

func (s *sqliteStore) wrap(op string, err error) error {
	kind := KindUnavailable
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint"):
		kind = KindConflict
	case strings.Contains(msg, "database or disk is full"):
		kind = KindQuotaExceeded
	case strings.Contains(msg, "readonly"):
		kind = KindPermissionDenied
	}
	logger.L.Error("Document store operation failed", "op", op, "kind", kind, "error", err)
	return &Error{Kind: kind, Op: op, Err: err}
}
