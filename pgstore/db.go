// Package pgstore 是 Postgres（tsvector + pgvector）实现的召回协作方：
//
//   - LexicalRetriever: websearch_to_tsquery + ts_rank_cd 的 BM25 近似检索，支持订阅范围
//   - AnnIndex / EmbeddingStore / NearestUsers: pgvector 余弦相似度
//   - ContentStore / FreshnessProvider: 标题、正文、发布时间
//   - ItemLister: 最新、热门（近 7 天交互数）、随机
//   - SequenceStore / SubscriptionStore: 用户交互与订阅
//
// 连接使用 database/sql + pgx stdlib 驱动。
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rushteam/recallkit/core"
)

const (
	DefaultDimension  = 768
	DefaultTextConfig = "simple"
)

// Options 是连接参数。
type Options struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	// Dimension 向量维度，<=0 时取 DefaultDimension
	Dimension int `yaml:"dimension"`
	// TextConfig 全文检索配置，为空或非法时取 simple
	TextConfig string `yaml:"text_config"`
}

// Store 持有连接池，实现本包的所有协作方接口。
type Store struct {
	DB         *sql.DB
	Dimension  int
	TextConfig string
}

// Open 建立连接并 Ping，失败时返回 UNAVAILABLE 错误。
func Open(ctx context.Context, opts Options) (*Store, error) {
	db, err := sql.Open("pgx", opts.DSN)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "open postgres", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "ping postgres", err)
	}
	return New(db, opts.Dimension, opts.TextConfig), nil
}

// New 包装已有连接。
func New(db *sql.DB, dimension int, textConfig string) *Store {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Store{DB: db, Dimension: dimension, TextConfig: safeTextConfig(textConfig)}
}

func (s *Store) Close() error { return s.DB.Close() }

// EnsureSchema 创建所需的扩展、表、索引与 tsvector 触发器。
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.Dimension, s.TextConfig) {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func schemaStatements(dimension int, textConfig string) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS articles (
            id BIGINT PRIMARY KEY,
            feed_id BIGINT NOT NULL DEFAULT 0,
            title TEXT NOT NULL DEFAULT '',
            category TEXT NOT NULL DEFAULT '',
            tags TEXT NOT NULL DEFAULT '',
            summary TEXT NOT NULL DEFAULT '',
            content TEXT NOT NULL DEFAULT '',
            published_at TIMESTAMPTZ,
            tsv TSVECTOR,
            updated_at TIMESTAMPTZ DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_articles_tsv ON articles USING GIN(tsv)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_feed_id ON articles(feed_id)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at DESC)`,
		fmt.Sprintf(`CREATE OR REPLACE FUNCTION articles_tsv_trigger() RETURNS trigger AS $$
        BEGIN
            NEW.tsv :=
                setweight(to_tsvector('%[1]s', COALESCE(NEW.title, '')), 'A') ||
                setweight(to_tsvector('%[1]s', COALESCE(NEW.category, '')), 'A') ||
                setweight(to_tsvector('%[1]s', COALESCE(NEW.tags, '')), 'B') ||
                setweight(to_tsvector('%[1]s', COALESCE(NEW.summary, '')), 'C') ||
                setweight(to_tsvector('%[1]s', COALESCE(NEW.content, '')), 'C');
            NEW.updated_at := NOW();
            RETURN NEW;
        END
        $$ LANGUAGE plpgsql`, textConfig),
		`DROP TRIGGER IF EXISTS articles_tsv_update ON articles`,
		`CREATE TRIGGER articles_tsv_update BEFORE INSERT OR UPDATE ON articles
            FOR EACH ROW EXECUTE FUNCTION articles_tsv_trigger()`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS item_embeddings (
            item_id BIGINT PRIMARY KEY REFERENCES articles(id) ON DELETE CASCADE,
            embedding vector(%d) NOT NULL
        )`, dimension),
		`CREATE INDEX IF NOT EXISTS idx_item_embeddings_hnsw ON item_embeddings USING hnsw (embedding vector_cosine_ops)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS user_embeddings (
            user_id BIGINT PRIMARY KEY,
            embedding vector(%d) NOT NULL
        )`, dimension),
		`CREATE INDEX IF NOT EXISTS idx_user_embeddings_hnsw ON user_embeddings USING hnsw (embedding vector_cosine_ops)`,
		`CREATE TABLE IF NOT EXISTS user_subscriptions (
            user_id BIGINT NOT NULL,
            feed_id BIGINT NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            PRIMARY KEY (user_id, feed_id)
        )`,
		`CREATE TABLE IF NOT EXISTS user_interactions (
            id BIGSERIAL PRIMARY KEY,
            user_id BIGINT NOT NULL,
            item_id BIGINT NOT NULL,
            weight DOUBLE PRECISION NOT NULL DEFAULT 1,
            duration_seconds BIGINT NOT NULL DEFAULT 0,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_user_interactions_user_created ON user_interactions(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_user_interactions_created ON user_interactions(created_at DESC)`,
	}
}

func unavailable(op string, err error) error {
	return core.WrapDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "postgres "+op, err)
}
