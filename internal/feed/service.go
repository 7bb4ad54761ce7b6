// Package feed はフィード登録・管理のドメインロジックを提供する。
package feed

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/letterman/internal/model"
	"github.com/hitoshi/letterman/internal/repository"
)

// Detector はフィード検出のインターフェース。
// テスタビリティのためFeedDetectorを抽象化する。
type Detector interface {
	DetectFeedURL(ctx context.Context, inputURL string) (string, error)
}

// FeedService はフィード登録・管理のサービス層。
// 検出 → 重複チェック → フィード保存のフローを統括する。
type FeedService struct {
	feedRepo repository.FeedRepository
	detector Detector
}

// NewFeedService はFeedServiceの新しいインスタンスを生成する。
func NewFeedService(feedRepo repository.FeedRepository, detector Detector) *FeedService {
	return &FeedService{
		feedRepo: feedRepo,
		detector: detector,
	}
}

// RegisterFeed はURLからフィードを検出し登録する。
// フロー: フィードURL検出 → 重複チェック → フィード保存。
// 同じフィードURLが既に登録されている場合はDuplicateFeedエラーを返す。
func (s *FeedService) RegisterFeed(ctx context.Context, inputURL string) (*model.Feed, error) {
	// 1. フィードURL検出
	feedURL, err := s.detector.DetectFeedURL(ctx, inputURL)
	if err != nil {
		return nil, err
	}

	// 2. 既存フィードの重複チェック（feed_urlで検索）
	existing, err := s.feedRepo.FindByFeedURL(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("フィードの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateFeedError()
	}

	// 3. 新規フィードの作成
	now := time.Now()
	feed := &model.Feed{
		ID:          uuid.New().String(),
		FeedURL:     feedURL,
		SiteURL:     extractSiteURL(inputURL),
		Title:       feedURL, // 初期タイトルはフィードURL（パース時に更新される）
		FetchStatus: model.FetchStatusActive,
		NextFetchAt: now, // 次回サイクルで即時フェッチさせる
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.feedRepo.Create(ctx, feed); err != nil {
		return nil, fmt.Errorf("フィードの保存に失敗しました: %w", err)
	}

	return feed, nil
}

// GetFeed は指定IDのフィードを取得する。見つからない場合はFeedNotFoundエラーを返す。
func (s *FeedService) GetFeed(ctx context.Context, feedID string) (*model.Feed, error) {
	feed, err := s.feedRepo.FindByID(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	if feed == nil {
		return nil, model.NewFeedNotFoundError(feedID)
	}
	return feed, nil
}

// ListFeeds は登録済みフィードを作成日時順で返す。
func (s *FeedService) ListFeeds(ctx context.Context) ([]*model.Feed, error) {
	feeds, err := s.feedRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("フィード一覧の取得に失敗しました: %w", err)
	}
	return feeds, nil
}

// DeleteFeed は指定IDのフィードを削除する。
// 記事の観測履歴（source_feed_ids）は削除されず保持される。
func (s *FeedService) DeleteFeed(ctx context.Context, feedID string) error {
	feed, err := s.feedRepo.FindByID(ctx, feedID)
	if err != nil {
		return fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	if feed == nil {
		return model.NewFeedNotFoundError(feedID)
	}

	if err := s.feedRepo.Delete(ctx, feedID); err != nil {
		return fmt.Errorf("フィードの削除に失敗しました: %w", err)
	}
	return nil
}

// extractSiteURL はフィードURLまたは入力URLからサイトURLを抽出する。
func extractSiteURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}
