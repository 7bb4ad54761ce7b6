package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/letterman/internal/generate"
	"github.com/hitoshi/letterman/internal/middleware"
	"github.com/hitoshi/letterman/internal/model"
)

// PreparerInterface は生成準備（同期アドバイザリ）のインターフェース。
type PreparerInterface interface {
	Prepare(ctx context.Context, req model.GenerationRequest) (model.PrepareResult, error)
}

// GeneratorInterface はストリーミング生成セッションの開始インターフェース。
type GeneratorInterface interface {
	Start(ctx context.Context, req model.GenerationRequest) (*generate.Session, error)
}

// SaverInterface は完成ドラフトの検証・保存インターフェース。
type SaverInterface interface {
	Save(ctx context.Context, draft model.NewsletterDraft, req model.GenerationRequest) (*model.Newsletter, error)
}

// NewsletterReaderInterface は保存済みニュースレターの読み取りインターフェース。
type NewsletterReaderInterface interface {
	FindByID(ctx context.Context, id string) (*model.Newsletter, error)
	List(ctx context.Context, limit int) ([]*model.Newsletter, error)
}

// NewsletterHandler はニュースレター生成・保存のHTTPハンドラー。
type NewsletterHandler struct {
	preparer  PreparerInterface
	generator GeneratorInterface
	saver     SaverInterface
	reader    NewsletterReaderInterface
}

// NewNewsletterHandler はNewsletterHandlerを生成する。
func NewNewsletterHandler(
	preparer PreparerInterface,
	generator GeneratorInterface,
	saver SaverInterface,
	reader NewsletterReaderInterface,
) *NewsletterHandler {
	return &NewsletterHandler{
		preparer:  preparer,
		generator: generator,
		saver:     saver,
		reader:    reader,
	}
}

// generationRequestBody は生成要求リクエストのボディ。
type generationRequestBody struct {
	FeedIDs   []string `json:"feed_ids"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	UserInput string   `json:"user_input"`
}

// toGenerationRequest はリクエストボディをドメインモデルに変換する。
func (b *generationRequestBody) toGenerationRequest() (model.GenerationRequest, error) {
	start, err := parseWindowTime(b.StartDate, false)
	if err != nil {
		return model.GenerationRequest{}, err
	}
	end, err := parseWindowTime(b.EndDate, true)
	if err != nil {
		return model.GenerationRequest{}, err
	}
	return model.GenerationRequest{
		FeedIDs:   b.FeedIDs,
		StartDate: start,
		EndDate:   end,
		UserInput: b.UserInput,
	}, nil
}

// prepareResponse は生成準備結果のレスポンス。
type prepareResponse struct {
	FeedsToRefresh int `json:"feeds_to_refresh"`
	ArticlesFound  int `json:"articles_found"`
}

// saveNewsletterRequest はニュースレター保存リクエストのボディ。
type saveNewsletterRequest struct {
	SuggestedTitles       []string `json:"suggested_titles"`
	SuggestedSubjectLines []string `json:"suggested_subject_lines"`
	Body                  string   `json:"body"`
	TopAnnouncements      []string `json:"top_announcements"`
	AdditionalInfo        string   `json:"additional_info"`
	FeedIDs               []string `json:"feed_ids"`
	StartDate             string   `json:"start_date"`
	EndDate               string   `json:"end_date"`
	UserInput             string   `json:"user_input"`
}

// newsletterResponse は保存済みニュースレターのAPIレスポンス。
type newsletterResponse struct {
	ID                    string   `json:"id"`
	SuggestedTitles       []string `json:"suggested_titles"`
	SuggestedSubjectLines []string `json:"suggested_subject_lines"`
	Body                  string   `json:"body"`
	TopAnnouncements      []string `json:"top_announcements"`
	AdditionalInfo        string   `json:"additional_info,omitempty"`
	FeedIDs               []string `json:"feed_ids"`
	StartDate             string   `json:"start_date"`
	EndDate               string   `json:"end_date"`
	UserInput             string   `json:"user_input,omitempty"`
	CreatedAt             string   `json:"created_at"`
}

// Prepare は生成前の同期準備ステップを処理する。
// POST /api/newsletters/prepare
// 再取得が必要なフィードの更新と対象記事数の確認を行い、
// 生成を開始すべきかの判断材料を返す。
func (h *NewsletterHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGenerationRequest(w, r)
	if !ok {
		return
	}

	result, err := h.preparer.Prepare(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, prepareResponse{
		FeedsToRefresh: result.FeedsToRefresh,
		ArticlesFound:  result.ArticlesFound,
	})
}

// GenerateStream はストリーミング生成をSSEで配信する。
// POST /api/newsletters/generate-stream
//
// イベント種別:
//   - snapshot: 生成途中の累積ドラフト
//   - complete: 最終ドラフト（このイベントでストリームは終了）
//   - error:    失敗理由（このイベントでストリームは終了）
//
// クライアントが切断した場合は生成セッションをキャンセルする。
// キャンセルされた生成のドラフトが保存されることはない。
func (h *NewsletterHandler) GenerateStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeGenerationRequest(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     "STREAMING_UNSUPPORTED",
			Message:  "ストリーミング配信に対応していない環境です。",
			Category: "system",
			Action:   "サーバー構成を確認してください。",
		})
		return
	}

	session, err := h.generator.Start(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// クライアント切断でセッションをキャンセルする
	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			session.Cancel()
			// 終端スナップショットの配信を待ってから終了
			<-session.Done()
			return

		case snap, open := <-session.Updates():
			if !open {
				return
			}
			writeSSEEvent(w, flusher, snap)
			if snap.State == generate.StateComplete || snap.State == generate.StateFailed {
				return
			}
		}
	}
}

// writeSSEEvent はスナップショットをSSEイベントとして書き込む。
func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, snap generate.Snapshot) {
	var event string
	var payload any

	switch snap.State {
	case generate.StateComplete:
		event = "complete"
		payload = snap.Draft
	case generate.StateFailed:
		event = "error"
		var apiErr *model.APIError
		if !errors.As(snap.Err, &apiErr) {
			apiErr = model.NewCapabilityError("生成が失敗しました")
		}
		payload = middleware.ErrorResponseBody{
			Code:     apiErr.Code,
			Message:  apiErr.Message,
			Category: apiErr.Category,
			Action:   apiErr.Action,
		}
	default:
		event = "snapshot"
		payload = snap.Draft
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

// SaveNewsletter は完成ドラフトの検証・保存を処理する。
// POST /api/newsletters
// タイトル案・件名案・トップ記事がそれぞれちょうど5件でない場合は保存されない。
func (h *NewsletterHandler) SaveNewsletter(w http.ResponseWriter, r *http.Request) {
	var body saveNewsletterRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeInvalidBodyError(w)
		return
	}

	start, startErr := parseWindowTime(body.StartDate, false)
	end, endErr := parseWindowTime(body.EndDate, true)
	if startErr != nil || endErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidDateRangeError())
		return
	}

	draft := model.NewsletterDraft{
		SuggestedTitles:       body.SuggestedTitles,
		SuggestedSubjectLines: body.SuggestedSubjectLines,
		Body:                  body.Body,
		TopAnnouncements:      body.TopAnnouncements,
		AdditionalInfo:        body.AdditionalInfo,
	}
	req := model.GenerationRequest{
		FeedIDs:   body.FeedIDs,
		StartDate: start,
		EndDate:   end,
		UserInput: body.UserInput,
	}

	newsletter, err := h.saver.Save(r.Context(), draft, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toNewsletterResponse(newsletter))
}

// ListNewsletters は保存済みニュースレター一覧を返す。
// GET /api/newsletters
func (h *NewsletterHandler) ListNewsletters(w http.ResponseWriter, r *http.Request) {
	newsletters, err := h.reader.List(r.Context(), 0)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]newsletterResponse, 0, len(newsletters))
	for _, n := range newsletters {
		resp = append(resp, toNewsletterResponse(n))
	}

	writeJSON(w, http.StatusOK, map[string]any{"newsletters": resp})
}

// GetNewsletter は保存済みニュースレターを取得する。
// GET /api/newsletters/:id
func (h *NewsletterHandler) GetNewsletter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	newsletter, err := h.reader.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if newsletter == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewNewsletterNotFoundError(id))
		return
	}

	writeJSON(w, http.StatusOK, toNewsletterResponse(newsletter))
}

// decodeGenerationRequest は生成要求ボディを解析・検証する。
// 失敗した場合はエラーレスポンスを書き込みfalseを返す。
func decodeGenerationRequest(w http.ResponseWriter, r *http.Request) (model.GenerationRequest, bool) {
	var body generationRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeInvalidBodyError(w)
		return model.GenerationRequest{}, false
	}

	req, err := body.toGenerationRequest()
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidDateRangeError())
		return model.GenerationRequest{}, false
	}

	if apiErr := req.Validate(); apiErr != nil {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return model.GenerationRequest{}, false
	}

	return req, true
}

// toNewsletterResponse はmodel.NewsletterからAPIレスポンスに変換する。
func toNewsletterResponse(n *model.Newsletter) newsletterResponse {
	return newsletterResponse{
		ID:                    n.ID,
		SuggestedTitles:       n.SuggestedTitles,
		SuggestedSubjectLines: n.SuggestedSubjectLines,
		Body:                  n.Body,
		TopAnnouncements:      n.TopAnnouncements,
		AdditionalInfo:        n.AdditionalInfo,
		FeedIDs:               n.FeedIDs,
		StartDate:             n.StartDate.Format(time.RFC3339),
		EndDate:               n.EndDate.Format(time.RFC3339),
		UserInput:             n.UserInput,
		CreatedAt:             n.CreatedAt.Format(time.RFC3339),
	}
}
