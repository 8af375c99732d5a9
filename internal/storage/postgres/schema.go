package postgres

import (
	"context"
	"fmt"
)

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	progress    INTEGER NOT NULL DEFAULT 0,
	source_url  TEXT NOT NULL,
	platform    TEXT NOT NULL,
	result      JSONB,
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS %[2]s (
	id              BIGSERIAL PRIMARY KEY,
	title           TEXT NOT NULL DEFAULT '',
	tags            TEXT[] NOT NULL DEFAULT '{}',
	cover_url       TEXT NOT NULL DEFAULT '',
	video_url       TEXT NOT NULL DEFAULT '',
	script          TEXT NOT NULL DEFAULT '',
	source_platform TEXT NOT NULL,
	status          TEXT NOT NULL,
	error_message   TEXT,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[2]s_created_idx ON %[2]s (created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS task_runs (
	task_id       UUID PRIMARY KEY,
	platform      TEXT NOT NULL DEFAULT '',
	source_url    TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	status        TEXT NOT NULL,
	error_message TEXT
);

CREATE TABLE IF NOT EXISTS task_events (
	id       BIGSERIAL PRIMARY KEY,
	task_id  UUID NOT NULL,
	stage    TEXT NOT NULL,
	progress INTEGER NOT NULL,
	note     TEXT NOT NULL DEFAULT '',
	at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS task_events_task_idx ON task_events (task_id, at);
`

// Schema renders the DDL for the configured table names.
func Schema(cfg Config) (string, error) {
	tasks, err := tableName(cfg.TasksTable, DefaultTasksTable)
	if err != nil {
		return "", err
	}
	records, err := tableName(cfg.RecordsTable, DefaultRecordsTable)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(schemaTemplate, tasks, records), nil
}

// EnsureSchema creates missing tables and indexes.
func EnsureSchema(ctx context.Context, db DB, cfg Config) error {
	ddl, err := Schema(cfg)
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
