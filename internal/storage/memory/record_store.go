package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/creative-collector/internal/crawler"
)

// RecordSnapshot is the persisted form of a RecordStore.
type RecordSnapshot struct {
	NextID  int64                      `json:"next_id"`
	Records []crawler.CollectionRecord `json:"records"`
}

// RecordStore keeps the collection log in memory.
type RecordStore struct {
	mu        sync.Mutex
	records   []crawler.CollectionRecord
	nextID    int64
	persister Persister[RecordSnapshot]
}

// NewRecordStore constructs a RecordStore. A nil persister keeps records in
// memory only.
func NewRecordStore(ctx context.Context, p Persister[RecordSnapshot]) (*RecordStore, error) {
	s := &RecordStore{nextID: 1, persister: p}
	if p == nil {
		return s, nil
	}
	snap, ok, err := p.Load(ctx)
	if err != nil {
		return nil, &crawler.StoreIOError{Op: "load records", Err: err}
	}
	if !ok {
		return s, nil
	}
	s.records = snap.Records
	s.nextID = snap.NextID
	for _, r := range s.records {
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
	}
	if s.nextID < 1 {
		s.nextID = 1
	}
	return s, nil
}

// AppendRecord assigns the next ID and stores rec.
func (s *RecordStore) AppendRecord(ctx context.Context, rec crawler.CollectionRecord) (crawler.CollectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec = rec.Clone()
	rec.ID = s.nextID
	s.nextID++
	s.records = append(s.records, rec)
	if err := s.saveLocked(ctx); err != nil {
		return rec.Clone(), err
	}
	return rec.Clone(), nil
}

// GetRecord returns the record with id.
func (s *RecordStore) GetRecord(_ context.Context, id int64) (crawler.CollectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r.Clone(), nil
		}
	}
	return crawler.CollectionRecord{}, crawler.ErrRecordNotFound
}

// ListRecords returns one page of matching records, newest first, and the
// total match count.
func (s *RecordStore) ListRecords(_ context.Context, filter crawler.RecordFilter) ([]crawler.CollectionRecord, int, error) {
	filter = filter.Normalize()
	s.mu.Lock()
	matched := make([]crawler.CollectionRecord, 0, len(s.records))
	for _, r := range s.records {
		if filter.Matches(r) {
			matched = append(matched, r.Clone())
		}
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	start := filter.Offset()
	if start >= total {
		return []crawler.CollectionRecord{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// DeleteRecord removes and returns the record with id.
func (s *RecordStore) DeleteRecord(ctx context.Context, id int64) (crawler.CollectionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID != id {
			continue
		}
		s.records = append(s.records[:i:i], s.records[i+1:]...)
		if err := s.saveLocked(ctx); err != nil {
			return r, err
		}
		return r, nil
	}
	return crawler.CollectionRecord{}, crawler.ErrRecordNotFound
}

func (s *RecordStore) saveLocked(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	snap := RecordSnapshot{NextID: s.nextID, Records: make([]crawler.CollectionRecord, len(s.records))}
	for i, r := range s.records {
		snap.Records[i] = r.Clone()
	}
	if err := s.persister.Save(ctx, snap); err != nil {
		return &crawler.StoreIOError{Op: "save records", Err: err}
	}
	return nil
}
