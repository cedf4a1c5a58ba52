package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/florrin/calagenda/internal/models"
)

const recordColumns = "id, pubkey, kind, created_at, tags, content, sig, seq"

// RecordRepository reads and writes raw protocol records. Records arrive
// from relays through a separate ingest pipeline; seq is a store-assigned
// monotonic sequence that the poller cursors over.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository constructs a record repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// FetchRecent returns the newest records of the given kinds, newest first,
// bounded by limit. Used for the initial state load.
func (r *RecordRepository) FetchRecent(ctx context.Context, kinds []int, limit int) ([]models.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM records WHERE kind = ANY($1) ORDER BY created_at DESC, id DESC LIMIT $2`, recordColumns)
	var records []models.Record
	if err := r.db.SelectContext(ctx, &records, query, pq.Array(kinds), limit); err != nil {
		return nil, fmt.Errorf("fetch recent records: %w", err)
	}
	return records, nil
}

// PollSince returns records of the given kinds with seq greater than the
// cursor, in seq order, bounded by batch. The caller advances its cursor to
// the last returned seq.
func (r *RecordRepository) PollSince(ctx context.Context, kinds []int, cursor int64, batch int) ([]models.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM records WHERE kind = ANY($1) AND seq > $2 ORDER BY seq ASC LIMIT $3`, recordColumns)
	var records []models.Record
	if err := r.db.SelectContext(ctx, &records, query, pq.Array(kinds), cursor, batch); err != nil {
		return nil, fmt.Errorf("poll records since %d: %w", cursor, err)
	}
	return records, nil
}

// MaxSeq returns the highest sequence currently in the store, or zero for
// an empty store.
func (r *RecordRepository) MaxSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.db.GetContext(ctx, &seq, `SELECT COALESCE(MAX(seq), 0) FROM records`); err != nil {
		return 0, fmt.Errorf("max record seq: %w", err)
	}
	return seq, nil
}

// Insert persists a locally built record. Inserting a record the relay
// pipeline already delivered is a no-op, which keeps submission idempotent.
func (r *RecordRepository) Insert(ctx context.Context, rec *models.Record) error {
	query := `INSERT INTO records (id, pubkey, kind, created_at, tags, content, sig)
VALUES (:id, :pubkey, :kind, :created_at, :tags, :content, :sig)
ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("insert record %s: %w", rec.ID, err)
	}
	return nil
}
