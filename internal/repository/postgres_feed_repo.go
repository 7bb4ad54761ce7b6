package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/letterman/internal/model"
)

// PostgresFeedRepo はPostgreSQLを使用したフィードリポジトリ。
type PostgresFeedRepo struct {
	db *sql.DB
}

// NewPostgresFeedRepo はPostgresFeedRepoを生成する。
func NewPostgresFeedRepo(db *sql.DB) *PostgresFeedRepo {
	return &PostgresFeedRepo{db: db}
}

const feedColumns = `id, feed_url, site_url, title, etag, last_modified,
	        fetch_status, consecutive_errors, error_message, next_fetch_at,
	        created_at, updated_at`

// scanFeed は1行を*model.Feedへスキャンする。
func scanFeed(row interface{ Scan(...any) error }) (*model.Feed, error) {
	feed := &model.Feed{}
	var siteURL, title, etag, lastModified, errorMessage sql.NullString

	err := row.Scan(
		&feed.ID, &feed.FeedURL, &siteURL, &title, &etag, &lastModified,
		&feed.FetchStatus, &feed.ConsecutiveErrors, &errorMessage, &feed.NextFetchAt,
		&feed.CreatedAt, &feed.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	feed.SiteURL = siteURL.String
	feed.Title = title.String
	feed.ETag = etag.String
	feed.LastModified = lastModified.String
	feed.ErrorMessage = errorMessage.String
	return feed, nil
}

// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindByID(ctx context.Context, id string) (*model.Feed, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE id = $1`, id)
	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	return feed, nil
}

// FindByFeedURL はフィードURLでフィードを検索する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindByFeedURL(ctx context.Context, feedURL string) (*model.Feed, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE feed_url = $1`, feedURL)
	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("URL によるフィードの検索に失敗しました: %w", err)
	}
	return feed, nil
}

// ListByIDs は指定ID集合のフィードを取得する。存在しないIDは無視される。
func (r *PostgresFeedRepo) ListByIDs(ctx context.Context, ids []string) ([]*model.Feed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE id = ANY($1) ORDER BY created_at ASC`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("フィード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return collectFeeds(rows)
}

// List は全フィードを作成日時順で返す。
func (r *PostgresFeedRepo) List(ctx context.Context) ([]*model.Feed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+feedColumns+` FROM feeds ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("フィード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return collectFeeds(rows)
}

// Create はフィードを作成する。
func (r *PostgresFeedRepo) Create(ctx context.Context, feed *model.Feed) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feeds (
			id, feed_url, site_url, title, etag, last_modified,
			fetch_status, consecutive_errors, error_message, next_fetch_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		feed.ID, feed.FeedURL, nullString(feed.SiteURL), nullString(feed.Title),
		nullString(feed.ETag), nullString(feed.LastModified),
		feed.FetchStatus, feed.ConsecutiveErrors, nullString(feed.ErrorMessage),
		feed.NextFetchAt, feed.CreatedAt, feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("フィードの作成に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDのフィードを削除する。
func (r *PostgresFeedRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM feeds WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("フィードの削除に失敗しました: %w", err)
	}
	return nil
}

// ListDueForFetch はフェッチ対象のフィードを取得する。
// 並行するワーカー間での二重フェッチを防ぐためFOR UPDATE SKIP LOCKEDを使用する。
func (r *PostgresFeedRepo) ListDueForFetch(ctx context.Context) ([]*model.Feed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+feedColumns+`
		 FROM feeds
		 WHERE next_fetch_at <= now() AND fetch_status = 'active'
		 FOR UPDATE SKIP LOCKED`)
	if err != nil {
		return nil, fmt.Errorf("フェッチ対象フィードの取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return collectFeeds(rows)
}

// UpdateFetchState はフィードのフェッチ状態を更新する。
func (r *PostgresFeedRepo) UpdateFetchState(ctx context.Context, feed *model.Feed) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds
		 SET title = $2, etag = $3, last_modified = $4, fetch_status = $5,
		     consecutive_errors = $6, error_message = $7, next_fetch_at = $8,
		     updated_at = $9
		 WHERE id = $1`,
		feed.ID, nullString(feed.Title), nullString(feed.ETag),
		nullString(feed.LastModified), feed.FetchStatus,
		feed.ConsecutiveErrors, nullString(feed.ErrorMessage),
		feed.NextFetchAt, feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("フィード状態の更新に失敗しました: %w", err)
	}
	return nil
}

// collectFeeds はrowsから全フィードを読み取る。
func collectFeeds(rows *sql.Rows) ([]*model.Feed, error) {
	var feeds []*model.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("フィードのスキャンに失敗しました: %w", err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フィードの読み取りに失敗しました: %w", err)
	}
	return feeds, nil
}
