// Package refresh はフィードのバックグラウンド再取得を提供する。
// スケジューラ、リフレッシャー、バックオフ戦略を含む。
package refresh

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/letterman/internal/metrics"
	"github.com/hitoshi/letterman/internal/model"
	"github.com/hitoshi/letterman/internal/repository"
)

// ArticleIngester は記事候補の取り込みインターフェース。
type ArticleIngester interface {
	IngestBatch(ctx context.Context, candidates []model.ArticleCandidate) model.BatchResult
}

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Refresher は個別フィードのHTTPフェッチとパースを行う。
// ETag/Last-Modifiedを使用した条件付きGET、SSRF検証、
// gofeedによるパース、取り込みエンジンによる記事保存を実行する。
type Refresher struct {
	feedRepo        repository.FeedRepository
	ingester        ArticleIngester
	ssrfGuard       SSRFValidator
	collector       metrics.MetricsCollector
	logger          *slog.Logger
	timeout         time.Duration
	maxBodySize     int64
	intervalMinutes int
}

// NewRefresher はRefresherの新しいインスタンスを生成する。
// intervalMinutesが0以下の場合はデフォルト値60を使用する。
// collectorはnil可（メトリクスを記録しない）。
func NewRefresher(
	feedRepo repository.FeedRepository,
	ingester ArticleIngester,
	ssrfGuard SSRFValidator,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
	intervalMinutes int,
) *Refresher {
	if intervalMinutes <= 0 {
		intervalMinutes = 60
	}
	return &Refresher{
		feedRepo:        feedRepo,
		ingester:        ingester,
		ssrfGuard:       ssrfGuard,
		collector:       collector,
		logger:          logger,
		timeout:         timeout,
		maxBodySize:     maxBodySize,
		intervalMinutes: intervalMinutes,
	}
}

// Refresh はフィードをフェッチし、結果に応じてフィード状態を更新する。
// 取得した記事候補は取り込みエンジンへ渡され、フィード横断で重複排除される。
func (rf *Refresher) Refresh(ctx context.Context, feed *model.Feed) error {
	start := time.Now()

	// SSRF検証
	if err := rf.ssrfGuard.ValidateURL(feed.FeedURL); err != nil {
		rf.logger.Error("SSRF検証に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		MarkStopped(feed, fmt.Sprintf("SSRF検証失敗: %s", err.Error()))
		rf.updateState(ctx, feed)
		rf.recordFailure(feed.ID, "ssrf")
		return fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	// HTTPリクエスト構築
	client := rf.ssrfGuard.NewSafeClient(rf.timeout, rf.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}

	req.Header.Set("User-Agent", "Letterman/1.0 RSS Aggregator")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	// 条件付きGET: ETag
	if feed.ETag != "" {
		req.Header.Set("If-None-Match", feed.ETag)
	}
	// 条件付きGET: Last-Modified
	if feed.LastModified != "" {
		req.Header.Set("If-Modified-Since", feed.LastModified)
	}

	// HTTPリクエスト実行
	resp, err := client.Do(req)
	if err != nil {
		rf.logger.Error("HTTPリクエストに失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		MarkFailure(feed, fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()))
		rf.updateState(ctx, feed)
		rf.recordFailure(feed.ID, "http")
		return fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)
	if rf.collector != nil {
		rf.collector.RecordHTTPStatus(resp.StatusCode)
		rf.collector.RecordFetchLatency(duration)
	}

	// HTTPステータスに基づく処理分岐
	switch Classify(resp.StatusCode) {
	case StatusNotModified:
		// 304: コンテンツ未変更 - next_fetch_atのみ更新
		rf.logger.Info("フィードは未変更です（304）",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		MarkSuccess(feed, rf.intervalMinutes)
		if rf.collector != nil {
			rf.collector.RecordFetchSuccess(feed.ID)
		}
		return rf.feedRepo.UpdateFetchState(ctx, feed)

	case StatusStop:
		// 404/410/401/403: フェッチ停止
		reason := fmt.Sprintf("HTTPステータス %d によりフェッチを停止しました", resp.StatusCode)
		rf.logger.Warn("フィードフェッチを停止します",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.String("reason", reason),
		)
		MarkStopped(feed, reason)
		rf.recordFailure(feed.ID, "stopped")
		return rf.feedRepo.UpdateFetchState(ctx, feed)

	case StatusBackoff:
		// 429/5xx: バックオフ
		reason := fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode)
		rf.logger.Warn("フィードフェッチにバックオフを適用します",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", feed.ConsecutiveErrors+1),
		)
		MarkFailure(feed, reason)
		rf.recordFailure(feed.ID, "backoff")
		return rf.feedRepo.UpdateFetchState(ctx, feed)

	case StatusOK:
		// 200: 正常フェッチ - 以下で処理を続行
	default:
		// その他のステータスコード
		rf.logger.Warn("予期しないHTTPステータスコード",
			slog.String("feed_id", feed.ID),
			slog.Int("http_status", resp.StatusCode),
		)
		MarkFailure(feed, fmt.Sprintf("予期しないHTTPステータス: %d", resp.StatusCode))
		rf.recordFailure(feed.ID, "unknown_status")
		return rf.feedRepo.UpdateFetchState(ctx, feed)
	}

	// レスポンスボディを読み込み（最大サイズ制限付き）
	body, err := io.ReadAll(io.LimitReader(resp.Body, rf.maxBodySize))
	if err != nil {
		rf.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
		MarkFailure(feed, fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error()))
		rf.recordFailure(feed.ID, "read")
		return rf.feedRepo.UpdateFetchState(ctx, feed)
	}

	// ETag/Last-Modifiedを保存
	if etag := resp.Header.Get("ETag"); etag != "" {
		feed.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		feed.LastModified = lastMod
	}

	// gofeedでフィードをパース
	parser := gofeed.NewParser()
	parsedFeed, err := parser.ParseString(string(body))
	if err != nil {
		rf.logger.Error("フィードのパースに失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("feed_url", feed.FeedURL),
			slog.String("error", err.Error()),
		)
		MarkParseFailure(feed, err.Error())
		rf.updateState(ctx, feed)
		if rf.collector != nil {
			rf.collector.RecordParseFailure(feed.ID)
		}
		return nil // パース失敗はフェッチエラーとしない（カウントして継続）
	}

	// フィードタイトルを更新
	if parsedFeed.Title != "" {
		feed.Title = parsedFeed.Title
	}
	if parsedFeed.Link != "" {
		feed.SiteURL = parsedFeed.Link
	}

	// gofeedの記事を候補に変換し、重複排除付きで取り込む
	candidates := convertGofeedItems(feed.ID, parsedFeed.Items)
	result := rf.ingester.IngestBatch(ctx, candidates)

	if rf.collector != nil {
		rf.collector.RecordArticlesIngested(result.Created, result.Skipped, result.Errors)
		rf.collector.RecordFetchSuccess(feed.ID)
	}

	MarkSuccess(feed, rf.intervalMinutes)

	// フィード状態を更新
	if updateErr := rf.feedRepo.UpdateFetchState(ctx, feed); updateErr != nil {
		rf.logger.Error("フィード状態の更新に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	rf.logger.Info("フィードフェッチが完了しました",
		slog.String("feed_id", feed.ID),
		slog.String("feed_url", feed.FeedURL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("articles_created", result.Created),
		slog.Int("articles_skipped", result.Skipped),
		slog.Int("articles_errors", result.Errors),
		slog.Int("candidates_total", len(candidates)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// updateState はフィード状態の更新を試み、失敗はログに記録するのみとする。
func (rf *Refresher) updateState(ctx context.Context, feed *model.Feed) {
	if err := rf.feedRepo.UpdateFetchState(ctx, feed); err != nil {
		rf.logger.Error("フィード状態の更新に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (rf *Refresher) recordFailure(feedID, reason string) {
	if rf.collector != nil {
		rf.collector.RecordFetchFailure(feedID, reason)
	}
}

// convertGofeedItems はgofeedの記事をmodel.ArticleCandidateに変換する。
// guidがない記事はリンクをguidとして使用し、どちらもない記事はスキップする。
func convertGofeedItems(feedID string, items []*gofeed.Item) []model.ArticleCandidate {
	candidates := make([]model.ArticleCandidate, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		cand := model.ArticleCandidate{
			FeedID:     feedID,
			Title:      item.Title,
			Link:       item.Link,
			Content:    item.Content,
			Summary:    item.Description,
			Categories: item.Categories,
		}

		// guidの設定: guidがなければリンクで代用する
		cand.Guid = item.GUID
		if cand.Guid == "" {
			cand.Guid = item.Link
		}
		if cand.Guid == "" {
			continue
		}

		// 著者情報は正規化せず生の値のまま渡す
		if len(item.Authors) > 0 {
			names := make([]string, 0, len(item.Authors))
			for _, a := range item.Authors {
				if a != nil && a.Name != "" {
					names = append(names, a.Name)
				}
			}
			if len(names) > 0 {
				cand.Author = names
			}
		}
		if cand.Author == nil && item.Author != nil && item.Author.Name != "" {
			cand.Author = item.Author.Name
		}

		// 公開日時
		if item.PublishedParsed != nil {
			cand.PubDate = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			cand.PubDate = *item.UpdatedParsed
		} else {
			cand.PubDate = time.Now()
		}

		// Contentが空の場合はDescriptionを使用
		if cand.Content == "" && item.Description != "" {
			cand.Content = item.Description
		}

		// LinkがなくguidがURL形式の場合はguidをリンクとして使用
		if cand.Link == "" &&
			(strings.HasPrefix(cand.Guid, "http://") || strings.HasPrefix(cand.Guid, "https://")) {
			cand.Link = cand.Guid
		}

		if item.Image != nil {
			cand.ImageURL = item.Image.URL
		}

		candidates = append(candidates, cand)
	}

	return candidates
}
