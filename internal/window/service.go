// Package window は期間指定の記事取得とクロスフィード重要度の付与を提供する。
package window

import (
	"context"
	"time"

	"github.com/hitoshi/letterman/internal/model"
	"github.com/hitoshi/letterman/internal/repository"
)

// DefaultLimit は1回の取得件数の上限（デフォルト）。
const DefaultLimit = 100

// Service は指定フィード集合と期間に対する記事の取得を行い、
// 各記事に観測元フィード数（重要度シグナル）を付与する。
type Service struct {
	articleRepo repository.ArticleRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(articleRepo repository.ArticleRepository) *Service {
	return &Service{articleRepo: articleRepo}
}

// Retrieve は指定フィード集合と期間[start, end]（両端含む）に一致する記事を
// pub_date降順で最大limit件返す。limitが0以下の場合はDefaultLimitを使用する。
// 各記事のSourceCountは呼び出しごとにlen(SourceFeedIDs)から計算され、
// 保存された値を再利用することはない。
func (s *Service) Retrieve(ctx context.Context, feedIDs []string, start, end time.Time, limit int) ([]model.ScoredArticle, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	articles, err := s.articleRepo.QueryByFeedsAndWindow(ctx, feedIDs, start, end, limit)
	if err != nil {
		return nil, err
	}

	scored := make([]model.ScoredArticle, 0, len(articles))
	for _, a := range articles {
		scored = append(scored, model.ScoredArticle{
			Article:     *a,
			SourceCount: len(a.SourceFeedIDs),
		})
	}
	return scored, nil
}
