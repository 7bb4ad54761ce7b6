// Package generate はニュースレター生成の準備とストリーミング制御を提供する。
package generate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/letterman/internal/model"
	"github.com/hitoshi/letterman/internal/repository"
)

// FeedRefresher はフィード再取得のインターフェース。
// 失敗は致命的ではなく、準備結果の確度を下げるだけである。
type FeedRefresher interface {
	// Refresh は指定フィードをフェッチし、取得した記事を取り込む。
	Refresh(ctx context.Context, feed *model.Feed) error
}

// ArticleRetriever は期間指定の記事取得インターフェース。
type ArticleRetriever interface {
	Retrieve(ctx context.Context, feedIDs []string, start, end time.Time, limit int) ([]model.ScoredArticle, error)
}

// Preparer は生成前の同期的な準備ステップを実行する。
// 再取得が必要なフィードの数と、期間内の候補記事数を呼び出し元へ報告する。
// この結果は進捗表示のための情報であり、生成ステップはこれに依存しない。
type Preparer struct {
	feedRepo       repository.FeedRepository
	refresher      FeedRefresher
	retriever      ArticleRetriever
	maxConcurrency int
}

// NewPreparer はPreparerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。
func NewPreparer(
	feedRepo repository.FeedRepository,
	refresher FeedRefresher,
	retriever ArticleRetriever,
	maxConcurrency int,
) *Preparer {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Preparer{
		feedRepo:       feedRepo,
		refresher:      refresher,
		retriever:      retriever,
		maxConcurrency: maxConcurrency,
	}
}

// Prepare は要求されたフィードのうち再取得が必要なものを数えて再取得を実行し、
// その後に期間内の候補記事数を報告する。
// 個々のフィードの再取得失敗は許容され、準備全体を失敗させない。
// 再取得はsemaphoreパターンで並列実行され、フィード間の順序保証はない。
func (p *Preparer) Prepare(ctx context.Context, req model.GenerationRequest) (model.PrepareResult, error) {
	if apiErr := req.Validate(); apiErr != nil {
		return model.PrepareResult{}, apiErr
	}

	feeds, err := p.feedRepo.ListByIDs(ctx, req.FeedIDs)
	if err != nil {
		return model.PrepareResult{}, err
	}

	now := time.Now()
	var due []*model.Feed
	for _, feed := range feeds {
		if feed.NeedsRefresh(now) {
			due = append(due, feed)
		}
	}

	if len(due) > 0 {
		sem := make(chan struct{}, p.maxConcurrency)
		var wg sync.WaitGroup

		for _, feed := range due {
			wg.Add(1)
			sem <- struct{}{}

			go func(f *model.Feed) {
				defer wg.Done()
				defer func() { <-sem }()

				if err := p.refresher.Refresh(ctx, f); err != nil {
					// 再取得失敗は準備の失敗ではない。ログに残して続行する。
					slog.Warn("準備中のフィード再取得に失敗しました",
						slog.String("feed_id", f.ID),
						slog.String("feed_url", f.FeedURL),
						slog.String("error", err.Error()),
					)
				}
			}(feed)
		}

		wg.Wait()
	}

	articles, err := p.retriever.Retrieve(ctx, req.FeedIDs, req.StartDate, req.EndDate, 0)
	if err != nil {
		return model.PrepareResult{}, err
	}

	result := model.PrepareResult{
		FeedsToRefresh: len(due),
		ArticlesFound:  len(articles),
	}

	slog.Info("生成準備が完了しました",
		slog.Int("feeds_to_refresh", result.FeedsToRefresh),
		slog.Int("articles_found", result.ArticlesFound),
	)

	return result, nil
}
