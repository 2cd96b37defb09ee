package storage

const postgresSchema = `
CREATE TABLE IF NOT EXISTS mappings (
	id            BIGSERIAL PRIMARY KEY,
	owner_id      UUID NOT NULL,
	destination   VARCHAR(2048) NOT NULL,
	short_key     VARCHAR(20) NOT NULL,
	is_custom_key BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at    TIMESTAMPTZ,
	click_count   BIGINT NOT NULL DEFAULT 0 CHECK (click_count >= 0),
	version       BIGINT NOT NULL DEFAULT 1,
	CONSTRAINT uk_mappings_short_key UNIQUE (short_key)
);

ALTER TABLE mappings ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 1;

CREATE INDEX IF NOT EXISTS idx_mappings_owner_created ON mappings (owner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS click_events (
	id         BIGSERIAL PRIMARY KEY,
	mapping_id BIGINT NOT NULL REFERENCES mappings (id) ON DELETE CASCADE,
	clicked_at TIMESTAMPTZ NOT NULL,
	source_ip  TEXT,
	user_agent TEXT,
	referer    TEXT
);

CREATE INDEX IF NOT EXISTS idx_click_events_mapping_clicked ON click_events (mapping_id, clicked_at DESC, id DESC);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS mappings (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id      TEXT NOT NULL,
	destination   TEXT NOT NULL,
	short_key     TEXT NOT NULL,
	is_custom_key INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	expires_at    INTEGER,
	click_count   INTEGER NOT NULL DEFAULT 0 CHECK (click_count >= 0),
	version       INTEGER NOT NULL DEFAULT 1,
	CONSTRAINT uk_mappings_short_key UNIQUE (short_key)
);

CREATE INDEX IF NOT EXISTS idx_mappings_owner_created ON mappings (owner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS click_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	mapping_id INTEGER NOT NULL REFERENCES mappings (id) ON DELETE CASCADE,
	clicked_at INTEGER NOT NULL,
	source_ip  TEXT,
	user_agent TEXT,
	referer    TEXT
);

CREATE INDEX IF NOT EXISTS idx_click_events_mapping_clicked ON click_events (mapping_id, clicked_at DESC, id DESC);
`
