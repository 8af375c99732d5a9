// Package mongostore provides a MongoDB-backed collection record store. Record IDs
// come from a counters collection so they stay numeric and monotonic.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JakeFAU/creative-collector/internal/crawler"
)

const (
	defaultCollection = "collection_records"
	countersName      = "counters"
)

// Config describes the Mongo deployment.
type Config struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// Connect opens a client and verifies it with a ping.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := options.Client().ApplyURI(cfg.URI).SetTimeout(timeout)
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return cli, nil
}

type recordDoc struct {
	ID             int64     `bson:"_id"`
	Title          string    `bson:"title"`
	Tags           []string  `bson:"tags"`
	CoverURL       string    `bson:"cover_url"`
	VideoURL       string    `bson:"video_url"`
	Script         string    `bson:"script"`
	SourcePlatform string    `bson:"source_platform"`
	Status         string    `bson:"status"`
	ErrorMessage   *string   `bson:"error_message"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func toDoc(r crawler.CollectionRecord) recordDoc {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return recordDoc{
		ID:             r.ID,
		Title:          r.Title,
		Tags:           tags,
		CoverURL:       r.CoverURL,
		VideoURL:       r.VideoURL,
		Script:         r.Script,
		SourcePlatform: string(r.SourcePlatform),
		Status:         string(r.Status),
		ErrorMessage:   r.ErrorMessage,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (d recordDoc) record() crawler.CollectionRecord {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return crawler.CollectionRecord{
		ID:             d.ID,
		Title:          d.Title,
		Tags:           tags,
		CoverURL:       d.CoverURL,
		VideoURL:       d.VideoURL,
		Script:         d.Script,
		SourcePlatform: crawler.Platform(d.SourcePlatform),
		Status:         crawler.RecordStatus(d.Status),
		ErrorMessage:   d.ErrorMessage,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// RecordStore implements crawler.RecordStore on a Mongo database.
type RecordStore struct {
	records  *mongo.Collection
	counters *mongo.Collection
	name     string
}

// NewRecordStore binds the store to db.
func NewRecordStore(db *mongo.Database, collection string) (*RecordStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if collection == "" {
		collection = defaultCollection
	}
	return &RecordStore{
		records:  db.Collection(collection),
		counters: db.Collection(countersName),
		name:     collection,
	}, nil
}

// EnsureIndexes creates the listing indexes.
func (s *RecordStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.records.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "source_platform", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create record indexes: %w", err)
	}
	return nil
}

func (s *RecordStore) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: s.name}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next record id: %w", err)
	}
	return counter.Seq, nil
}

// AppendRecord assigns the next counter value and inserts rec.
func (s *RecordStore) AppendRecord(ctx context.Context, rec crawler.CollectionRecord) (crawler.CollectionRecord, error) {
	id, err := s.nextID(ctx)
	if err != nil {
		return crawler.CollectionRecord{}, &crawler.StoreIOError{Op: "append record", Err: err}
	}
	rec = rec.Clone()
	rec.ID = id
	if _, err := s.records.InsertOne(ctx, toDoc(rec)); err != nil {
		return crawler.CollectionRecord{}, &crawler.StoreIOError{Op: "append record", Err: err}
	}
	return rec, nil
}

// GetRecord loads one record.
func (s *RecordStore) GetRecord(ctx context.Context, id int64) (crawler.CollectionRecord, error) {
	return decodeOne(s.records.FindOne(ctx, bson.D{{Key: "_id", Value: id}}), "get record")
}

// ListRecords returns a page ordered by created_at desc and the total count.
func (s *RecordStore) ListRecords(ctx context.Context, filter crawler.RecordFilter) ([]crawler.CollectionRecord, int, error) {
	filter = filter.Normalize()
	q := bson.D{}
	if filter.Status != "" {
		q = append(q, bson.E{Key: "status", Value: string(filter.Status)})
	}
	if filter.Platform != "" {
		q = append(q, bson.E{Key: "source_platform", Value: string(filter.Platform)})
	}

	total, err := s.records.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, &crawler.StoreIOError{Op: "count records", Err: err}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(filter.Offset())).
		SetLimit(int64(filter.PageSize))
	cur, err := s.records.Find(ctx, q, opts)
	if err != nil {
		return nil, 0, &crawler.StoreIOError{Op: "list records", Err: err}
	}
	var docs []recordDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, &crawler.StoreIOError{Op: "list records", Err: err}
	}
	items := make([]crawler.CollectionRecord, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.record())
	}
	return items, int(total), nil
}

// DeleteRecord removes a record and returns it.
func (s *RecordStore) DeleteRecord(ctx context.Context, id int64) (crawler.CollectionRecord, error) {
	return decodeOne(s.records.FindOneAndDelete(ctx, bson.D{{Key: "_id", Value: id}}), "delete record")
}

func decodeOne(res *mongo.SingleResult, op string) (crawler.CollectionRecord, error) {
	var doc recordDoc
	err := res.Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return crawler.CollectionRecord{}, crawler.ErrRecordNotFound
	}
	if err != nil {
		return crawler.CollectionRecord{}, &crawler.StoreIOError{Op: op, Err: err}
	}
	return doc.record(), nil
}
