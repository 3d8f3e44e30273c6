package store

const reportColumns = `
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    image_ref TEXT NOT NULL DEFAULT '',
    address TEXT NOT NULL DEFAULT '',
    latitude REAL,
    longitude REAL,
    city TEXT NOT NULL DEFAULT '',
    governorate TEXT NOT NULL DEFAULT '',
    occurred_at TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'Active',
    deleted INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
`

const schema = `
CREATE TABLE IF NOT EXISTS lost_reports (` + reportColumns + `);
CREATE INDEX IF NOT EXISTS idx_lost_reports_active ON lost_reports(deleted, status);

CREATE TABLE IF NOT EXISTS found_reports (` + reportColumns + `);
CREATE INDEX IF NOT EXISTS idx_found_reports_active ON found_reports(deleted, status);

CREATE TABLE IF NOT EXISTS knowledge_entries (
    id TEXT PRIMARY KEY,
    category TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    deleted INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS match_candidates (
    id TEXT PRIMARY KEY,
    lost_item_id TEXT NOT NULL,
    found_item_id TEXT NOT NULL,
    text_score REAL NOT NULL DEFAULT 0,
    image_score REAL NOT NULL DEFAULT 0,
    location_score REAL NOT NULL DEFAULT 0,
    date_score REAL NOT NULL DEFAULT 0,
    aggregate_score REAL NOT NULL DEFAULT 0,
    reasons TEXT NOT NULL DEFAULT '{}',
    promoted INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    deleted_at TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_candidates_live_pair
    ON match_candidates(lost_item_id, found_item_id) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_candidates_promoted ON match_candidates(promoted);

CREATE TABLE IF NOT EXISTS matches (
    id TEXT PRIMARY KEY,
    lost_item_id TEXT NOT NULL,
    found_item_id TEXT NOT NULL,
    confidence_score REAL NOT NULL,
    status TEXT NOT NULL DEFAULT 'Pending',
    lost_owner_notified INTEGER NOT NULL DEFAULT 0,
    found_owner_notified INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    UNIQUE(lost_item_id, found_item_id)
);

CREATE TABLE IF NOT EXISTS item_embeddings (
    id TEXT PRIMARY KEY,
    item_id TEXT NOT NULL,
    item_type TEXT NOT NULL,
    embedding BLOB NOT NULL,
    text TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    city TEXT NOT NULL DEFAULT '',
    governorate TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL,
    UNIQUE(item_id, item_type)
);

CREATE INDEX IF NOT EXISTS idx_item_embeddings_filters ON item_embeddings(category, city, governorate);

CREATE TABLE IF NOT EXISTS knowledge_embeddings (
    id TEXT PRIMARY KEY,
    knowledge_id TEXT NOT NULL UNIQUE,
    category TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL,
    embedding BLOB NOT NULL,
    updated_at TEXT NOT NULL
);
`
