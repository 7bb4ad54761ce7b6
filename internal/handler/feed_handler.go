package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/letterman/internal/model"
)

// FeedServiceInterface はフィードハンドラーが必要とするサービス操作。
type FeedServiceInterface interface {
	// RegisterFeed はURLからフィードを検出し登録する。
	RegisterFeed(ctx context.Context, inputURL string) (*model.Feed, error)
	// GetFeed はフィード情報を取得する。
	GetFeed(ctx context.Context, feedID string) (*model.Feed, error)
	// ListFeeds は登録済みフィードの一覧を返す。
	ListFeeds(ctx context.Context) ([]*model.Feed, error)
	// DeleteFeed はフィードを削除する。
	DeleteFeed(ctx context.Context, feedID string) error
}

// FeedHandler はフィード管理のHTTPハンドラー。
type FeedHandler struct {
	service FeedServiceInterface
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(service FeedServiceInterface) *FeedHandler {
	return &FeedHandler{service: service}
}

type registerFeedRequest struct {
	URL string `json:"url"`
}

// feedResponse はフィード情報のAPIレスポンス。
type feedResponse struct {
	ID          string `json:"id"`
	FeedURL     string `json:"feed_url"`
	SiteURL     string `json:"site_url"`
	Title       string `json:"title"`
	FetchStatus string `json:"fetch_status"`
}

func toFeedResponse(feed *model.Feed) feedResponse {
	return feedResponse{
		ID:          feed.ID,
		FeedURL:     feed.FeedURL,
		SiteURL:     feed.SiteURL,
		Title:       feed.Title,
		FetchStatus: string(feed.FetchStatus),
	}
}

// RegisterFeed はフィード登録を処理する。
// POST /api/feeds
func (h *FeedHandler) RegisterFeed(w http.ResponseWriter, r *http.Request) {
	var req registerFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyError(w)
		return
	}
	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	feed, err := h.service.RegisterFeed(r.Context(), req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toFeedResponse(feed))
}

// ListFeeds は登録済みフィード一覧を返す。
// GET /api/feeds
func (h *FeedHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.service.ListFeeds(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]feedResponse, 0, len(feeds))
	for _, f := range feeds {
		resp = append(resp, toFeedResponse(f))
	}

	writeJSON(w, http.StatusOK, map[string]any{"feeds": resp})
}

// GetFeed はフィード詳細を取得する。
// GET /api/feeds/:id
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := h.service.GetFeed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFeedResponse(feed))
}

// DeleteFeed はフィードを削除する。
// DELETE /api/feeds/:id
func (h *FeedHandler) DeleteFeed(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteFeed(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
