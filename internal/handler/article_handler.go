package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/letterman/internal/model"
)

// ArticleIngesterInterface は記事一括取り込みのインターフェース。
type ArticleIngesterInterface interface {
	// IngestBatch は記事候補を一括で取り込み、集計結果を返す。
	IngestBatch(ctx context.Context, candidates []model.ArticleCandidate) model.BatchResult
}

// ArticleRetrieverInterface は期間指定の記事取得インターフェース。
type ArticleRetrieverInterface interface {
	// Retrieve は指定フィード集合と期間に一致する記事を発行日時降順で返す。
	Retrieve(ctx context.Context, feedIDs []string, start, end time.Time, limit int) ([]model.ScoredArticle, error)
}

// ArticleHandler は記事取り込み・取得のHTTPハンドラー。
type ArticleHandler struct {
	ingester  ArticleIngesterInterface
	retriever ArticleRetrieverInterface
}

// NewArticleHandler はArticleHandlerを生成する。
func NewArticleHandler(ingester ArticleIngesterInterface, retriever ArticleRetrieverInterface) *ArticleHandler {
	return &ArticleHandler{
		ingester:  ingester,
		retriever: retriever,
	}
}

// articleCandidateRequest は取り込みリクエストの記事候補。
// authorはフィードごとに文字列・オブジェクト・配列など形式が揺れるため、
// 生の値のまま受け取り正規化は取り込みエンジンに委ねる。
type articleCandidateRequest struct {
	Guid       string   `json:"guid"`
	FeedID     string   `json:"feed_id"`
	Title      string   `json:"title"`
	Link       string   `json:"link"`
	Content    string   `json:"content"`
	Summary    string   `json:"summary"`
	PubDate    string   `json:"pub_date"`
	Author     any      `json:"author"`
	Categories []string `json:"categories"`
	ImageURL   string   `json:"image_url"`
}

// importArticlesRequest は記事一括取り込みリクエストのボディ。
type importArticlesRequest struct {
	Articles []articleCandidateRequest `json:"articles"`
}

// importArticlesResponse は取り込み集計結果のレスポンス。
type importArticlesResponse struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// articleResponse は記事のAPIレスポンス。
type articleResponse struct {
	ID            string   `json:"id"`
	Guid          string   `json:"guid"`
	PrimaryFeedID string   `json:"primary_feed_id"`
	SourceFeedIDs []string `json:"source_feed_ids"`
	SourceCount   int      `json:"source_count"`
	Title         string   `json:"title"`
	Link          string   `json:"link"`
	Summary       string   `json:"summary"`
	PubDate       string   `json:"pub_date"`
	Author        string   `json:"author,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	ImageURL      string   `json:"image_url,omitempty"`
}

// ImportArticles は記事候補の一括取り込みを処理する。
// POST /api/articles/import
// 個別候補の失敗はレスポンスのerrorsに集計され、リクエスト全体は失敗しない。
func (h *ArticleHandler) ImportArticles(w http.ResponseWriter, r *http.Request) {
	var req importArticlesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyError(w)
		return
	}

	candidates := make([]model.ArticleCandidate, 0, len(req.Articles))
	for _, a := range req.Articles {
		candidates = append(candidates, model.ArticleCandidate{
			Guid:       a.Guid,
			FeedID:     a.FeedID,
			Title:      a.Title,
			Link:       a.Link,
			Content:    a.Content,
			Summary:    a.Summary,
			PubDate:    parseCandidateTime(a.PubDate),
			Author:     a.Author,
			Categories: a.Categories,
			ImageURL:   a.ImageURL,
		})
	}

	result := h.ingester.IngestBatch(r.Context(), candidates)

	writeJSON(w, http.StatusOK, importArticlesResponse{
		Created: result.Created,
		Skipped: result.Skipped,
		Errors:  result.Errors,
	})
}

// ListArticles は期間指定の記事一覧を返す。
// GET /api/articles?feed_ids=a,b&start=2025-01-01&end=2025-01-07&limit=100
func (h *ArticleHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	feedIDs := splitNonEmpty(q.Get("feed_ids"))
	if len(feedIDs) == 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewMissingFeedIDsError())
		return
	}

	start, startErr := parseWindowTime(q.Get("start"), false)
	end, endErr := parseWindowTime(q.Get("end"), true)
	if startErr != nil || endErr != nil || end.Before(start) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidDateRangeError())
		return
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     model.ErrCodeValidation,
				Message:  "limitパラメータが不正です。",
				Category: "validation",
				Action:   "limitには0以上の整数を指定してください。",
			})
			return
		}
		limit = n
	}

	articles, err := h.retriever.Retrieve(r.Context(), feedIDs, start, end, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]articleResponse, 0, len(articles))
	for _, a := range articles {
		resp = append(resp, toArticleResponse(a))
	}

	writeJSON(w, http.StatusOK, map[string]any{"articles": resp})
}

// toArticleResponse はmodel.ScoredArticleからAPIレスポンスに変換する。
func toArticleResponse(a model.ScoredArticle) articleResponse {
	return articleResponse{
		ID:            a.ID,
		Guid:          a.Guid,
		PrimaryFeedID: a.PrimaryFeedID,
		SourceFeedIDs: a.SourceFeedIDs,
		SourceCount:   a.SourceCount,
		Title:         a.Title,
		Link:          a.Link,
		Summary:       a.Summary,
		PubDate:       a.PubDate.Format(time.RFC3339),
		Author:        a.Author,
		Categories:    a.Categories,
		ImageURL:      a.ImageURL,
	}
}

// splitNonEmpty はカンマ区切り文字列を空要素を除いて分割する。
func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseCandidateTime は記事候補の発行日時を解析する。
// 解析できない場合は現在時刻とする。
func parseCandidateTime(raw string) time.Time {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Now()
}

// parseWindowTime は期間パラメータを解析する。
// RFC3339形式と日付のみ（2006-01-02）形式を受け付ける。
// 日付のみの場合、endOfDayがtrueならその日の終端（23:59:59）として扱う。
func parseWindowTime(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}
