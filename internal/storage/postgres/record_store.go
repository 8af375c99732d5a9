package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/creative-collector/internal/crawler"
)

const recordColumns = `id, title, tags, cover_url, video_url, script, source_platform, status, error_message, created_at, updated_at`

// RecordStore persists collection records. IDs come from a BIGSERIAL column.
type RecordStore struct {
	db    DB
	table string
}

// NewRecordStore constructs a RecordStore on db.
func NewRecordStore(db DB, table string) (*RecordStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, DefaultRecordsTable)
	if err != nil {
		return nil, err
	}
	return &RecordStore{db: db, table: name}, nil
}

// AppendRecord inserts rec and returns it with the assigned ID.
func (s *RecordStore) AppendRecord(ctx context.Context, rec crawler.CollectionRecord) (crawler.CollectionRecord, error) {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	query := fmt.Sprintf(`
INSERT INTO %s (title, tags, cover_url, video_url, script, source_platform, status, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id`, s.table)
	out := rec.Clone()
	err := s.db.QueryRow(ctx, query,
		rec.Title,
		tags,
		rec.CoverURL,
		rec.VideoURL,
		rec.Script,
		string(rec.SourcePlatform),
		string(rec.Status),
		rec.ErrorMessage,
		rec.CreatedAt,
		rec.UpdatedAt,
	).Scan(&out.ID)
	if err != nil {
		return crawler.CollectionRecord{}, &crawler.StoreIOError{Op: "insert record", Err: err}
	}
	return out, nil
}

// GetRecord loads one record.
func (s *RecordStore) GetRecord(ctx context.Context, id int64) (crawler.CollectionRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, recordColumns, s.table)
	return scanRecord(s.db.QueryRow(ctx, query, id))
}

// ListRecords returns a page ordered by created_at desc and the total count.
func (s *RecordStore) ListRecords(ctx context.Context, filter crawler.RecordFilter) ([]crawler.CollectionRecord, int, error) {
	filter = filter.Normalize()
	where, args := recordWhere(filter)

	var total int
	countSQL := fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, s.table, where)
	if err := s.db.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, &crawler.StoreIOError{Op: "count records", Err: err}
	}

	n := len(args)
	listSQL := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		recordColumns, s.table, where, n+1, n+2)
	rows, err := s.db.Query(ctx, listSQL, append(args, filter.PageSize, filter.Offset())...)
	if err != nil {
		return nil, 0, &crawler.StoreIOError{Op: "list records", Err: err}
	}
	defer rows.Close()

	items := make([]crawler.CollectionRecord, 0, filter.PageSize)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, &crawler.StoreIOError{Op: "list records", Err: err}
	}
	return items, total, nil
}

// DeleteRecord removes a record and returns what was deleted.
func (s *RecordStore) DeleteRecord(ctx context.Context, id int64) (crawler.CollectionRecord, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 RETURNING %s`, s.table, recordColumns)
	return scanRecord(s.db.QueryRow(ctx, query, id))
}

func recordWhere(f crawler.RecordFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Platform != "" {
		args = append(args, string(f.Platform))
		conds = append(conds, fmt.Sprintf("source_platform = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanRecord(row pgx.Row) (crawler.CollectionRecord, error) {
	var (
		rec              crawler.CollectionRecord
		platform, status string
	)
	err := row.Scan(
		&rec.ID,
		&rec.Title,
		&rec.Tags,
		&rec.CoverURL,
		&rec.VideoURL,
		&rec.Script,
		&platform,
		&status,
		&rec.ErrorMessage,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.CollectionRecord{}, crawler.ErrRecordNotFound
	}
	if err != nil {
		return crawler.CollectionRecord{}, &crawler.StoreIOError{Op: "load record", Err: err}
	}
	rec.SourcePlatform = crawler.Platform(platform)
	rec.Status = crawler.RecordStatus(status)
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	return rec, nil
}
