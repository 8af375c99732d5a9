package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/creative-collector/internal/crawler"
)

// Page is one page of the record log.
type Page struct {
	Items    []crawler.CollectionRecord `json:"items"`
	Total    int                        `json:"total"`
	Page     int                        `json:"page"`
	PageSize int                        `json:"page_size"`
}

// List returns records newest first.
func (o *Orchestrator) List(ctx context.Context, filter crawler.RecordFilter) (Page, error) {
	filter = filter.Normalize()
	items, total, err := o.records.ListRecords(ctx, filter)
	if err != nil {
		return Page{}, fmt.Errorf("list records: %w", err)
	}
	if items == nil {
		items = []crawler.CollectionRecord{}
	}
	return Page{Items: items, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

// Get returns one record.
func (o *Orchestrator) Get(ctx context.Context, id int64) (crawler.CollectionRecord, error) {
	rec, err := o.records.GetRecord(ctx, id)
	if err != nil {
		return crawler.CollectionRecord{}, fmt.Errorf("get record %d: %w", id, err)
	}
	return rec, nil
}

// Delete removes a record and the managed files derived from its cover:
// the cover itself, the extracted frame and the downloaded video. Missing
// files are ignored.
func (o *Orchestrator) Delete(ctx context.Context, id int64) error {
	rec, err := o.records.DeleteRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("delete record %d: %w", id, err)
	}
	for _, rel := range ownedFiles(rec) {
		if o.media == nil {
			break
		}
		if err := o.media.DeleteObject(ctx, rel); err != nil && !errors.Is(err, crawler.ErrObjectNotFound) {
			o.logger.Warn("delete media file failed",
				zap.Int64("record_id", id),
				zap.String("path", rel),
				zap.Error(err),
			)
			continue
		}
		o.logger.Debug("media file removed", zap.Int64("record_id", id), zap.String("path", rel))
	}
	return nil
}

// ownedFiles lists the managed paths a record refers to.
func ownedFiles(rec crawler.CollectionRecord) []string {
	rel, ok := crawler.FilenameFromURL(rec.CoverURL)
	if !ok {
		return nil
	}
	return crawler.DedupeStrings([]string{
		rel,
		crawler.SiblingPath(rel, ".jpg"),
		crawler.SiblingPath(rel, ".mp4"),
	})
}
