// Package sqlite is a durable docstore.Store on an embedded sqlite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"moneytracker/internal/docstore"

	_ "modernc.org/sqlite"
)

const selectColumns = `collection, id, user_id, lookup_key, data, created_at, updated_at`

type Store struct {
	db        *sql.DB
	hub       *docstore.Hub
	publisher docstore.ChangePublisher
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Store)

// WithPublisher forwards every committed change to p after commit.
func WithPublisher(p docstore.ChangePublisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open creates the database file if needed, applies migrations and returns
// a ready store.
func Open(dbPath string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serialises transactions; listeners queue behind writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{
		db:     db,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = docstore.NewHub(s.Find)
	return s, nil
}

func (s *Store) Close() error {
	s.hub.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) NewID() string {
	return docstore.NewID()
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	return get(ctx, s.db, collection, id)
}

func (s *Store) Find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	return find(ctx, s.db, q)
}

func (s *Store) Set(ctx context.Context, d docstore.Document) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Set(ctx, d)
	})
}

func (s *Store) Update(ctx context.Context, d docstore.Document) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Update(ctx, d)
	})
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Delete(ctx, collection, id)
	})
}

// RunTransaction runs fn inside a sqlite transaction. fn must only use tx:
// the store has a single connection and calls on s would wait forever.
func (s *Store) RunTransaction(ctx context.Context, fn docstore.TxFunc) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	tx := &txn{tx: sqlTx, now: s.now}

	if err := fn(ctx, tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.WarnContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.broadcast(ctx, tx.changes)
	return nil
}

func (s *Store) Listen(ctx context.Context, q docstore.Query, fn docstore.ListenFunc) (docstore.Registration, error) {
	return s.hub.Listen(ctx, q, fn)
}

func (s *Store) Notify(c docstore.Change) {
	s.hub.Publish(c)
}

func (s *Store) broadcast(ctx context.Context, changes []docstore.Change) {
	for _, c := range changes {
		s.hub.Publish(c)
		if s.publisher == nil {
			continue
		}
		// The write is committed; a feed failure only delays remote listeners.
		if err := s.publisher.PublishChange(ctx, c); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish change",
				"collection", c.Collection,
				"document_id", c.DocumentID,
				"op", string(c.Op),
				"error", err)
		}
	}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func get(ctx context.Context, q queryer, collection, id string) (docstore.Document, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE collection = ? AND id = ?`,
		collection, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("get document %s/%s: %w", collection, id, err)
	}
	return d, nil
}

func find(ctx context.Context, q queryer, query docstore.Query) ([]docstore.Document, error) {
	where := []string{"collection = ?"}
	args := []any{query.Collection}
	if query.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, query.UserID)
	}
	if query.Key != "" {
		where = append(where, "lookup_key = ?")
		args = append(args, query.Key)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM documents WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at, rowid`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("find documents in %s: %w", query.Collection, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func scanDocument(sc scanner) (docstore.Document, error) {
	var (
		d                  docstore.Document
		data               string
		createdAt, updated int64
	)
	if err := sc.Scan(&d.Collection, &d.ID, &d.UserID, &d.Key, &data, &createdAt, &updated); err != nil {
		return docstore.Document{}, err
	}
	d.Data = []byte(data)
	d.CreatedAt = fromNanos(createdAt)
	d.UpdatedAt = fromNanos(updated)
	return d, nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

type txn struct {
	tx      *sql.Tx
	now     func() time.Time
	changes []docstore.Change
}

func (t *txn) record(d docstore.Document, op docstore.Op) {
	t.changes = append(t.changes, docstore.Change{
		Collection: d.Collection,
		UserID:     d.UserID,
		DocumentID: d.ID,
		Op:         op,
		At:         t.now(),
	})
}

func (t *txn) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	return get(ctx, t.tx, collection, id)
}

func (t *txn) Find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	return find(ctx, t.tx, q)
}

func (t *txn) Set(ctx context.Context, d docstore.Document) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO documents (`+selectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET
		   user_id = excluded.user_id,
		   lookup_key = excluded.lookup_key,
		   data = excluded.data,
		   created_at = excluded.created_at,
		   updated_at = excluded.updated_at`,
		d.Collection, d.ID, d.UserID, d.Key, string(d.Data), toNanos(d.CreatedAt), toNanos(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("set document %s/%s: %w", d.Collection, d.ID, err)
	}
	t.record(d, docstore.OpSet)
	return nil
}

func (t *txn) Update(ctx context.Context, d docstore.Document) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE documents SET user_id = ?, lookup_key = ?, data = ?, created_at = ?, updated_at = ?
		 WHERE collection = ? AND id = ?`,
		d.UserID, d.Key, string(d.Data), toNanos(d.CreatedAt), toNanos(d.UpdatedAt), d.Collection, d.ID)
	if err != nil {
		return fmt.Errorf("update document %s/%s: %w", d.Collection, d.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document %s/%s: %w", d.Collection, d.ID, err)
	}
	if n == 0 {
		return docstore.ErrNotFound
	}
	t.record(d, docstore.OpUpdate)
	return nil
}

func (t *txn) Delete(ctx context.Context, collection, id string) error {
	var userID string
	err := t.tx.QueryRowContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ? RETURNING user_id`,
		collection, id).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	t.record(docstore.Document{Collection: collection, ID: id, UserID: userID}, docstore.OpDelete)
	return nil
}
