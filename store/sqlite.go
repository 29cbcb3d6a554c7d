package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/rushteam/dropfeed/core"
	"github.com/rushteam/dropfeed/metrics"
)

// SQLStore 是基于 SQLite（modernc.org/sqlite，纯 Go）的存储实现。
//
// 同时实现：
//   - core.CandidateStore：drops / sources / topics / user_preferences
//   - core.AtomicCacheStore：feed_cache，ReplaceEntries 在单个事务内完成
//   - core.FeedbackProvider：feedback_affinity
type SQLStore struct {
	db   *sql.DB
	path string
}

// OpenSQLStore 打开（或创建）数据库并执行 Migrate。
// path 为 ":memory:" 时使用单连接，保证所有查询落在同一个内存库上。
func OpenSQLStore(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLStore{db: db, path: path}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Name() string { return "sqlite" }

// DB 返回底层连接，供迁移工具与测试使用。
func (s *SQLStore) DB() *sql.DB { return s.db }

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate 创建表结构，可重复执行。
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ---- core.CandidateStore ----

func (s *SQLStore) FetchTaggedCandidates(ctx context.Context, since time.Time, limit int) ([]*core.Item, error) {
	q := sq.Select(
		"d.id", "d.kind", "d.title", "d.language", "d.source_id", "s.name", "s.authority",
		"d.quality", "d.popularity", "d.macro_id", "d.sub_id", "d.micro_tags", "d.embedding",
		"d.published_at", "d.created_at",
	).
		From("drops d").
		Join("sources s ON s.id = d.source_id").
		Where(sq.Eq{"d.tagged": 1}).
		Where(sq.GtOrEq{"d.created_at": since.UnixMilli()}).
		OrderBy("d.created_at DESC", "d.id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidate query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapUnavailable("query candidates", err)
	}
	defer rows.Close()

	items := make([]*core.Item, 0, max(limit, 0))
	for rows.Next() {
		var (
			it                    = core.NewItem("")
			kind                  string
			microTags             string
			embedding             sql.NullString
			publishedAt, createdAt int64
		)
		if err := rows.Scan(
			&it.ID, &kind, &it.Title, &it.Language, &it.SourceID, &it.SourceName, &it.Authority,
			&it.Quality, &it.Popularity, &it.Topics.MacroID, &it.Topics.SubID, &microTags, &embedding,
			&publishedAt, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		it.Kind = core.ItemKind(kind)
		it.Tagged = true
		it.CreatedAt = time.UnixMilli(createdAt).UTC()
		if publishedAt > 0 {
			it.PublishedAt = time.UnixMilli(publishedAt).UTC()
		}
		if err := decodeCandidateJSON(it, microTags, embedding); err != nil {
			// 单条数据损坏只丢弃该条，不影响整批候选
			zerolog.Ctx(ctx).Debug().Err(err).Str("item_id", it.ID).Msg("malformed candidate skipped")
			metrics.CandidatesDropped.WithLabelValues("malformed").Inc()
			continue
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable("iterate candidates", err)
	}
	return items, nil
}

func decodeCandidateJSON(it *core.Item, microTags string, embedding sql.NullString) error {
	if err := json.Unmarshal([]byte(microTags), &it.Topics.MicroTags); err != nil {
		return fmt.Errorf("decode micro_tags of %s: %w", it.ID, err)
	}
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &it.Embedding); err != nil {
			return fmt.Errorf("decode embedding of %s: %w", it.ID, err)
		}
	}
	return nil
}

func (s *SQLStore) FetchUserPreferences(ctx context.Context, userID string) (*core.UserProfile, error) {
	query, args, err := sq.Select("topic_ids", "embedding", "updated_at").
		From("user_preferences").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build preferences query: %w", err)
	}

	var (
		topicIDs  string
		embedding sql.NullString
		updatedAt int64
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&topicIDs, &embedding, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrStoreNotFound
	}
	if err != nil {
		return nil, wrapUnavailable("query preferences", err)
	}

	p := core.NewUserProfile(userID)
	if updatedAt > 0 {
		p.UpdateTime = time.UnixMilli(updatedAt).UTC()
	}
	if err := json.Unmarshal([]byte(topicIDs), &p.SelectedTopicIDs); err != nil {
		return nil, fmt.Errorf("decode topic_ids of %s: %w", userID, err)
	}
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &p.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding of %s: %w", userID, err)
		}
	}
	return p, nil
}

func (s *SQLStore) LookupTopics(ctx context.Context, ids []int64) ([]core.Topic, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sq.Select("id", "level", "tag").
		From("topics").
		Where(sq.Eq{"id": ids}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build topic query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapUnavailable("query topics", err)
	}
	defer rows.Close()

	topics := make([]core.Topic, 0, len(ids))
	for rows.Next() {
		var (
			t     core.Topic
			level string
		)
		if err := rows.Scan(&t.ID, &level, &t.Tag); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		t.Level = core.TopicLevel(level)
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable("iterate topics", err)
	}
	return topics, nil
}

func (s *SQLStore) ListUserIDs(ctx context.Context) ([]string, error) {
	query, args, err := sq.Select("user_id").From("user_preferences").OrderBy("user_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build user query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapUnavailable("list users", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable("iterate users", err)
	}
	return ids, nil
}

// ---- core.FeedbackProvider ----

// Affinity 读取预计算的 (user, item) 亲和度；没有记录时返回 0。
func (s *SQLStore) Affinity(ctx context.Context, q core.FeedbackQuery) (float64, error) {
	query, args, err := sq.Select("score").
		From("feedback_affinity").
		Where(sq.Eq{"user_id": q.UserID, "item_id": q.ItemID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build affinity query: %w", err)
	}
	var score float64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, core.WrapDomainError(core.ModuleFeedback, core.ErrorCodeFeedbackLookup, "query affinity", err)
	}
	return score, nil
}

// ---- core.AtomicCacheStore ----

func (s *SQLStore) ListEntries(ctx context.Context, userID string) ([]core.CacheEntry, error) {
	query, args, err := sq.Select("item_id", "final_score", "reason", "position", "created_at", "expires_at").
		From("feed_cache").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build cache query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapUnavailable("query cache", err)
	}
	defer rows.Close()

	var entries []core.CacheEntry
	for rows.Next() {
		var (
			e                    = core.CacheEntry{UserID: userID}
			createdAt, expiresAt int64
		)
		if err := rows.Scan(&e.ItemID, &e.FinalScore, &e.Reason, &e.Position, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		e.ExpiresAt = time.UnixMilli(expiresAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable("iterate cache", err)
	}
	return entries, nil
}

func (s *SQLStore) DeleteEntries(ctx context.Context, userID string) error {
	return deleteEntries(ctx, s.db, userID)
}

func (s *SQLStore) InsertEntries(ctx context.Context, entries []core.CacheEntry) error {
	return insertEntries(ctx, s.db, entries)
}

// ReplaceEntries 在一个事务内删除用户旧条目并写入新条目。
func (s *SQLStore) ReplaceEntries(ctx context.Context, userID string, entries []core.CacheEntry) error {
	for _, e := range entries {
		if e.UserID != userID {
			return fmt.Errorf("replace entries: entry for %q in batch of %q", e.UserID, userID)
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapUnavailable("begin tx", err)
	}
	if err := deleteEntries(ctx, tx, userID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := insertEntries(ctx, tx, entries); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapUnavailable("commit tx", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func deleteEntries(ctx context.Context, db execer, userID string) error {
	query, args, err := sq.Delete("feed_cache").Where(sq.Eq{"user_id": userID}).ToSql()
	if err != nil {
		return fmt.Errorf("build cache delete: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return wrapUnavailable("delete cache", err)
	}
	return nil
}

func insertEntries(ctx context.Context, db execer, entries []core.CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}
	b := sq.Insert("feed_cache").
		Columns("user_id", "item_id", "final_score", "reason", "position", "created_at", "expires_at")
	for _, e := range entries {
		b = b.Values(e.UserID, e.ItemID, e.FinalScore, e.Reason, e.Position, e.CreatedAt.UnixMilli(), e.ExpiresAt.UnixMilli())
	}
	query, args, err := b.Suffix(`ON CONFLICT(user_id, item_id) DO UPDATE SET
		final_score = excluded.final_score,
		reason = excluded.reason,
		position = excluded.position,
		created_at = excluded.created_at,
		expires_at = excluded.expires_at`).ToSql()
	if err != nil {
		return fmt.Errorf("build cache insert: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return wrapUnavailable("insert cache", err)
	}
	return nil
}

// ---- 写入接口：外部打标流水线 / onboarding 流程 / 测试数据 ----

// UpsertSource 写入内容来源。
func (s *SQLStore) UpsertSource(ctx context.Context, id, name string, authority float64) error {
	query, args, err := sq.Insert("sources").
		Columns("id", "name", "authority").
		Values(id, name, authority).
		Suffix("ON CONFLICT(id) DO UPDATE SET name = excluded.name, authority = excluded.authority").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// UpsertTopic 写入分类体系节点。
func (s *SQLStore) UpsertTopic(ctx context.Context, t core.Topic) error {
	query, args, err := sq.Insert("topics").
		Columns("id", "level", "tag").
		Values(t.ID, string(t.Level), t.Tag).
		Suffix("ON CONFLICT(id) DO UPDATE SET level = excluded.level, tag = excluded.tag").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// UpsertDrop 写入一条内容。Authority 取自来源，这里忽略 it.Authority。
func (s *SQLStore) UpsertDrop(ctx context.Context, it *core.Item) error {
	microTags, err := json.Marshal(nonNil(it.Topics.MicroTags))
	if err != nil {
		return err
	}
	var embedding any
	if len(it.Embedding) > 0 {
		raw, err := json.Marshal(it.Embedding)
		if err != nil {
			return err
		}
		embedding = string(raw)
	}
	createdAt := it.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var publishedAt int64
	if !it.PublishedAt.IsZero() {
		publishedAt = it.PublishedAt.UnixMilli()
	}
	kind := it.Kind
	if kind == "" {
		kind = core.KindArticle
	}

	query, args, err := sq.Insert("drops").
		Columns("id", "kind", "title", "language", "source_id", "quality", "popularity",
			"macro_id", "sub_id", "micro_tags", "embedding", "tagged", "published_at", "created_at").
		Values(it.ID, string(kind), it.Title, it.Language, it.SourceID, it.Quality, it.Popularity,
			it.Topics.MacroID, it.Topics.SubID, string(microTags), embedding, boolInt(it.Tagged),
			publishedAt, createdAt.UnixMilli()).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind, title = excluded.title, language = excluded.language,
			source_id = excluded.source_id, quality = excluded.quality, popularity = excluded.popularity,
			macro_id = excluded.macro_id, sub_id = excluded.sub_id, micro_tags = excluded.micro_tags,
			embedding = excluded.embedding, tagged = excluded.tagged, published_at = excluded.published_at`).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// UpsertUserPreferences 写入用户偏好。
func (s *SQLStore) UpsertUserPreferences(ctx context.Context, p *core.UserProfile) error {
	topicIDs, err := json.Marshal(nonNil(p.SelectedTopicIDs))
	if err != nil {
		return err
	}
	var embedding any
	if p.HasEmbedding() {
		raw, err := json.Marshal(p.Embedding)
		if err != nil {
			return err
		}
		embedding = string(raw)
	}
	updatedAt := p.UpdateTime
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	query, args, err := sq.Insert("user_preferences").
		Columns("user_id", "topic_ids", "embedding", "updated_at").
		Values(p.UserID, string(topicIDs), embedding, updatedAt.UnixMilli()).
		Suffix(`ON CONFLICT(user_id) DO UPDATE SET
			topic_ids = excluded.topic_ids, embedding = excluded.embedding, updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// UpsertAffinity 写入预计算的反馈亲和度。
func (s *SQLStore) UpsertAffinity(ctx context.Context, userID, itemID string, score float64) error {
	query, args, err := sq.Insert("feedback_affinity").
		Columns("user_id", "item_id", "score").
		Values(userID, itemID, score).
		Suffix("ON CONFLICT(user_id, item_id) DO UPDATE SET score = excluded.score").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func wrapUnavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, op, err)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var (
	_ core.CandidateStore   = (*SQLStore)(nil)
	_ core.AtomicCacheStore = (*SQLStore)(nil)
	_ core.FeedbackProvider = (*SQLStore)(nil)
)
