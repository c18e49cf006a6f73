package store

// schema is the head-state DDL for a freshly created index. Unlike the
// teacher's per-column migration files (one Go file per ALTER), this index
// is young enough to ship as a single baseline plus a small ordered list of
// follow-on migrations in migrations/migrations.go, one function per
// numbered migration.
const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id             TEXT PRIMARY KEY,
	type           TEXT NOT NULL,
	subtype        TEXT NOT NULL DEFAULT '',
	title          TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT '',
	maturity       TEXT NOT NULL DEFAULT '',
	topic          TEXT NOT NULL DEFAULT '',
	archived       INTEGER NOT NULL DEFAULT 0,
	created        TEXT NOT NULL,
	modified       TEXT NOT NULL,
	superseded_by  TEXT NOT NULL DEFAULT '',
	url            TEXT NOT NULL DEFAULT '',
	session        TEXT NOT NULL DEFAULT '',
	content_hash   TEXT NOT NULL DEFAULT '',
	priority       INTEGER,
	impact         INTEGER,
	effort         INTEGER,
	pagerank       REAL,
	degree_in      INTEGER,
	degree_out     INTEGER,
	betweenness    REAL,
	cluster_id     INTEGER
);

CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type);
CREATE INDEX IF NOT EXISTS idx_nodes_topic ON nodes(topic);
CREATE INDEX IF NOT EXISTS idx_nodes_status ON nodes(status);
CREATE INDEX IF NOT EXISTS idx_nodes_archived ON nodes(archived);

CREATE TABLE IF NOT EXISTS aliases (
	node_id TEXT NOT NULL,
	alias   TEXT NOT NULL,
	PRIMARY KEY (node_id, alias)
);

CREATE TABLE IF NOT EXISTS edges (
	source_id     TEXT NOT NULL,
	target_id     TEXT NOT NULL,
	edge_type     TEXT NOT NULL DEFAULT 'relates',
	created       TEXT NOT NULL,
	bidirectional INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (source_id, target_id, edge_type)
);

CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);

CREATE TABLE IF NOT EXISTS tags (
	tag        TEXT PRIMARY KEY,
	domain     TEXT NOT NULL DEFAULT '',
	scope      TEXT NOT NULL DEFAULT '',
	first_seen TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS node_tags (
	node_id TEXT NOT NULL,
	tag     TEXT NOT NULL,
	PRIMARY KEY (node_id, tag)
);

CREATE INDEX IF NOT EXISTS idx_node_tags_tag ON node_tags(tag);

CREATE VIRTUAL TABLE IF NOT EXISTS fts USING fts5(id UNINDEXED, title, body);

CREATE TABLE IF NOT EXISTS counters (
	name  TEXT PRIMARY KEY,
	value INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS dirty_nodes (
	node_id TEXT PRIMARY KEY,
	marked  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reweave_log (
	id        TEXT PRIMARY KEY,
	batch_ts  TEXT NOT NULL,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	action    TEXT NOT NULL,
	score     REAL NOT NULL,
	undone    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_reweave_log_batch ON reweave_log(batch_ts);
CREATE INDEX IF NOT EXISTS idx_reweave_log_source ON reweave_log(source_id);

CREATE TABLE IF NOT EXISTS event_wal (
	id         TEXT PRIMARY KEY,
	hook_name  TEXT NOT NULL,
	payload    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	retries    INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	session_id TEXT NOT NULL DEFAULT '',
	created    TEXT NOT NULL,
	completed  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_event_wal_status ON event_wal(status);
CREATE INDEX IF NOT EXISTS idx_event_wal_session ON event_wal(session_id);

CREATE TABLE IF NOT EXISTS session_log (
	entry_id   TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	message    TEXT NOT NULL,
	pin        INTEGER NOT NULL DEFAULT 0,
	cost       REAL NOT NULL DEFAULT 0,
	detail     TEXT NOT NULL DEFAULT '',
	"references" TEXT NOT NULL DEFAULT '',
	metadata   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_session_log_session ON session_log(session_id, timestamp);

CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied TEXT NOT NULL
);
`
