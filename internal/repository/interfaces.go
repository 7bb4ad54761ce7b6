// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/letterman/internal/model"
)

// ArticleRepository は記事データの永続化インターフェース。
// guidによる重複排除と、観測元フィード集合へのアトミックな追加を提供する。
type ArticleRepository interface {
	// FindByGuid は指定guidの記事を取得する。見つからない場合はnilを返す。
	FindByGuid(ctx context.Context, guid string) (*model.Article, error)

	// Create は新規記事を作成する。
	// 同一guidの記事が並行して作成された場合（一意制約違反）はmodel.ErrConflictを返す。
	Create(ctx context.Context, article *model.Article) error

	// AppendSourceFeed はguidで特定される記事のsource_feed_idsにfeedIDを追加し、
	// 更新後の記事を返す。冪等なアトミックset-addであり、並行する追加でも
	// 重複要素が生じることはない。記事が存在しない場合はnilを返す。
	AppendSourceFeed(ctx context.Context, guid, feedID string) (*model.Article, error)

	// QueryByFeedsAndWindow は指定フィード集合と期間に一致する記事を取得する。
	// primary_feed_idまたはsource_feed_idsがfeedIDsと交差し、
	// pub_dateが[start, end]（両端含む）にある記事をpub_date降順で返す。
	QueryByFeedsAndWindow(ctx context.Context, feedIDs []string, start, end time.Time, limit int) ([]*model.Article, error)
}

// FeedRepository はフィードデータの永続化インターフェース。
type FeedRepository interface {
	// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Feed, error)

	// FindByFeedURL はフィードURLでフィードを検索する。見つからない場合はnilを返す。
	FindByFeedURL(ctx context.Context, feedURL string) (*model.Feed, error)

	// ListByIDs は指定ID集合のフィードを取得する。存在しないIDは無視される。
	ListByIDs(ctx context.Context, ids []string) ([]*model.Feed, error)

	// List は全フィードを作成日時順で返す。
	List(ctx context.Context) ([]*model.Feed, error)

	// Create はフィードを作成する。
	Create(ctx context.Context, feed *model.Feed) error

	// Delete は指定IDのフィードを削除する。
	Delete(ctx context.Context, id string) error

	// ListDueForFetch はフェッチ対象のフィードを取得する。
	// next_fetch_at <= now() かつ fetch_status = 'active' のフィードを
	// FOR UPDATE SKIP LOCKEDで排他的に取得する。
	ListDueForFetch(ctx context.Context) ([]*model.Feed, error)

	// UpdateFetchState はフィードのフェッチ状態を更新する。
	// fetch_status、consecutive_errors、error_message、next_fetch_at、
	// etag、last_modified、titleを更新する。
	UpdateFetchState(ctx context.Context, feed *model.Feed) error
}

// NewsletterRepository は保存済みニュースレターの永続化インターフェース。
type NewsletterRepository interface {
	// Create はニュースレターを保存する。形状検証は呼び出し側の責務とする。
	Create(ctx context.Context, n *model.Newsletter) error

	// FindByID は指定IDのニュースレターを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Newsletter, error)

	// List は保存済みニュースレターを作成日時降順で返す。
	List(ctx context.Context, limit int) ([]*model.Newsletter, error)
}
