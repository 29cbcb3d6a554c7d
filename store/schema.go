package store

// schemaStatements 按顺序执行，全部幂等。
//
// 时间统一存储为 Unix 毫秒；micro_tags / embedding / topic_ids 以 JSON 数组存储。
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sources (
		id        TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		authority REAL NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS topics (
		id    INTEGER PRIMARY KEY,
		level TEXT NOT NULL CHECK (level IN ('macro', 'sub', 'micro')),
		tag   TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS drops (
		id           TEXT PRIMARY KEY,
		kind         TEXT NOT NULL DEFAULT 'article',
		title        TEXT NOT NULL DEFAULT '',
		language     TEXT NOT NULL DEFAULT '',
		source_id    TEXT NOT NULL REFERENCES sources(id),
		quality      REAL NOT NULL DEFAULT 0,
		popularity   REAL NOT NULL DEFAULT 0,
		macro_id     INTEGER NOT NULL DEFAULT 0,
		sub_id       INTEGER NOT NULL DEFAULT 0,
		micro_tags   TEXT NOT NULL DEFAULT '[]',
		embedding    TEXT,
		tagged       INTEGER NOT NULL DEFAULT 0,
		published_at INTEGER NOT NULL DEFAULT 0,
		created_at   INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_drops_tagged_created ON drops(tagged, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS user_preferences (
		user_id    TEXT PRIMARY KEY,
		topic_ids  TEXT NOT NULL DEFAULT '[]',
		embedding  TEXT,
		updated_at INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS feedback_affinity (
		user_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		score   REAL NOT NULL,
		PRIMARY KEY (user_id, item_id)
	)`,
	`CREATE TABLE IF NOT EXISTS feed_cache (
		user_id     TEXT NOT NULL,
		item_id     TEXT NOT NULL,
		final_score REAL NOT NULL,
		reason      TEXT NOT NULL DEFAULT '',
		position    INTEGER NOT NULL,
		created_at  INTEGER NOT NULL,
		expires_at  INTEGER NOT NULL,
		PRIMARY KEY (user_id, item_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_feed_cache_user_position ON feed_cache(user_id, position)`,
}
