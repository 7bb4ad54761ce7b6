package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/letterman/internal/model"
)

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

// articleColumns は記事取得クエリのSELECT句。
const articleColumns = `id, guid, primary_feed_id, source_feed_ids, title, link,
	        content, summary, pub_date, author, categories, image_url, created_at`

// scanArticle は1行を*model.Articleへスキャンする。
func scanArticle(row interface{ Scan(...any) error }) (*model.Article, error) {
	a := &model.Article{}
	var content, summary, author, imageURL sql.NullString
	var sourceFeedIDs, categories pq.StringArray

	err := row.Scan(
		&a.ID, &a.Guid, &a.PrimaryFeedID, &sourceFeedIDs, &a.Title, &a.Link,
		&content, &summary, &a.PubDate, &author, &categories, &imageURL, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.SourceFeedIDs = []string(sourceFeedIDs)
	a.Categories = []string(categories)
	a.Content = content.String
	a.Summary = summary.String
	a.Author = author.String
	a.ImageURL = imageURL.String
	return a, nil
}

// FindByGuid は指定guidの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindByGuid(ctx context.Context, guid string) (*model.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE guid = $1`,
		guid,
	)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("guid による記事の検索に失敗しました: %w", err)
	}
	return a, nil
}

// Create は新規記事を作成する。
// guidの一意制約違反が発生した場合はmodel.ErrConflictを返す。
// 並行する取り込みが同一guidの作成を競合した際に区別できるようにするため。
func (r *PostgresArticleRepo) Create(ctx context.Context, article *model.Article) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO articles (
			id, guid, primary_feed_id, source_feed_ids, title, link,
			content, summary, pub_date, author, categories, image_url, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		article.ID, article.Guid, article.PrimaryFeedID,
		pq.Array(article.SourceFeedIDs), article.Title, article.Link,
		nullString(article.Content), nullString(article.Summary), article.PubDate,
		nullString(article.Author), pq.Array(article.Categories),
		nullString(article.ImageURL), article.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return model.ErrConflict
		}
		return fmt.Errorf("記事の作成に失敗しました: %w", err)
	}
	return nil
}

// AppendSourceFeed はsource_feed_idsへのアトミックなset-addを行う。
// 条件付きUPDATE（feedIDが未含有の場合のみarray_append）を単文で実行するため、
// 並行する追加が競合してもlost updateや重複要素は発生しない。
// UPDATEが0行だった場合はfeedIDが既に含まれている（または記事が存在しない）ので
// 再取得して現在の状態を返す。
func (r *PostgresArticleRepo) AppendSourceFeed(ctx context.Context, guid, feedID string) (*model.Article, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE articles
		 SET source_feed_ids = array_append(source_feed_ids, $2)
		 WHERE guid = $1 AND NOT ($2 = ANY(source_feed_ids))
		 RETURNING `+articleColumns,
		guid, feedID,
	)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		// 既に含まれているか、記事が存在しない。現在の状態を返す。
		return r.FindByGuid(ctx, guid)
	}
	if err != nil {
		return nil, fmt.Errorf("観測元フィードの追加に失敗しました: %w", err)
	}
	return a, nil
}

// QueryByFeedsAndWindow は指定フィード集合と期間に一致する記事を取得する。
// 選択条件: (primary_feed_id ∈ feedIDs OR source_feed_ids ∩ feedIDs ≠ ∅)
// AND pub_date ∈ [start, end]。pub_date降順、同時刻はid昇順で安定に並べ、
// 並べ替え後にlimit件へ切り詰める。
func (r *PostgresArticleRepo) QueryByFeedsAndWindow(ctx context.Context, feedIDs []string, start, end time.Time, limit int) ([]*model.Article, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+articleColumns+`
		 FROM articles
		 WHERE (primary_feed_id = ANY($1) OR source_feed_ids && $1)
		   AND pub_date >= $2 AND pub_date <= $3
		 ORDER BY pub_date DESC, id ASC
		 LIMIT $4`,
		pq.Array(feedIDs), start, end, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("期間指定の記事検索に失敗しました: %w", err)
	}
	defer rows.Close()

	var articles []*model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("記事のスキャンに失敗しました: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事の読み取りに失敗しました: %w", err)
	}
	return articles, nil
}

// nullString は空文字列をNULLへ変換する。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
