// Package ai は構造化生成バックエンドへのクライアントを提供する。
//
// バックエンドはプロンプトと目標スキーマを受け取り、ニュースレターの
// 部分オブジェクトをServer-Sent Eventsで逐次配信する。各イベントは
// 直前のスナップショットを包含する累積スナップショットであり、
// 最後にcompleteイベントで確定オブジェクトが届く。
package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/letterman/internal/model"
)

// Composer はニュースレター構造化生成のインターフェース。
type Composer interface {
	// Stream は生成を開始し、部分スナップショットのストリームを返す。
	// 呼び出し元はRecvで逐次スナップショットを受け取り、Closeで解放する。
	Stream(ctx context.Context, req ComposeRequest) (DraftStream, error)
}

// ComposeRequest は生成に必要な入力を表す。
type ComposeRequest struct {
	Articles  []model.ScoredArticle
	StartDate time.Time
	EndDate   time.Time
	UserInput string
}

// DraftStream は部分スナップショットの受信インターフェース。
type DraftStream interface {
	// Recv は次のスナップショットを返す。
	// doneがtrueの場合、draftは確定オブジェクトでありストリームは終端している。
	// エラーの場合はストリームを継続できない。
	Recv() (draft *model.NewsletterDraft, done bool, err error)
	// Close はストリームを解放する。複数回呼び出しても安全。
	Close() error
}

// HTTPComposer は生成バックエンドへのHTTP SSEクライアント。
type HTTPComposer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// Config はHTTPComposerの設定。
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration // 接続確立までのタイムアウト。ストリーム全体には適用しない。
}

// NewHTTPComposer はHTTPComposerを生成する。endpointが空の場合はエラーを返す。
func NewHTTPComposer(cfg Config) (*HTTPComposer, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("生成バックエンドのエンドポイントが設定されていません")
	}
	// ストリーミング応答を受けるためClientにはタイムアウトを設定せず、
	// 接続確立はリクエスト側のコンテキストで制御する。
	return &HTTPComposer{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		client:   &http.Client{},
	}, nil
}

// composePayload はバックエンドへ送信するリクエストボディ。
type composePayload struct {
	Prompt string          `json:"prompt"`
	Schema json.RawMessage `json:"schema"`
}

// newsletterSchema は目標スキーマの宣言。
// 確定オブジェクトではタイトル案・件名案・トップ記事が各5件になることを
// バックエンドに指示するが、中間スナップショットには適用されない。
const newsletterSchema = `{
	"type": "object",
	"properties": {
		"suggested_titles": {"type": "array", "items": {"type": "string"}, "minItems": 5, "maxItems": 5},
		"suggested_subject_lines": {"type": "array", "items": {"type": "string"}, "minItems": 5, "maxItems": 5},
		"body": {"type": "string"},
		"top_announcements": {"type": "array", "items": {"type": "string"}, "minItems": 5, "maxItems": 5},
		"additional_info": {"type": "string"}
	},
	"required": ["suggested_titles", "suggested_subject_lines", "body", "top_announcements"]
}`

// Stream は生成をリクエストし、SSEストリームを開く。
func (c *HTTPComposer) Stream(ctx context.Context, req ComposeRequest) (DraftStream, error) {
	body, err := json.Marshal(composePayload{
		Prompt: BuildPrompt(req),
		Schema: json.RawMessage(newsletterSchema),
	})
	if err != nil {
		return nil, fmt.Errorf("リクエストの組み立てに失敗しました: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/v1/newsletter/compose", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, model.NewCapabilityError(err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, model.NewCapabilityError(
			fmt.Sprintf("バックエンドがステータス %d を返しました: %s", resp.StatusCode, string(b)))
	}

	return &sseDraftStream{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
	}, nil
}

// sseDraftStream はSSEレスポンスボディからスナップショットを読み出す。
type sseDraftStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	closed  bool
}

// Recv はSSEイベントを1件読み取り、スナップショットへデコードする。
// eventフィールドがcompleteの場合は確定オブジェクトとしてdone=trueを返す。
// errorイベントはバックエンド失敗として呼び出し元へ返す。
func (s *sseDraftStream) Recv() (*model.NewsletterDraft, bool, error) {
	event := "draft"
	var data strings.Builder

	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			// イベント境界
			if data.Len() == 0 {
				continue
			}
			return s.decodeEvent(event, data.String())
		}
	}

	if err := s.scanner.Err(); err != nil {
		return nil, false, model.NewCapabilityError(err.Error())
	}
	// イベント境界前にストリームが終端した場合もバッファを処理する
	if data.Len() > 0 {
		return s.decodeEvent(event, data.String())
	}
	return nil, false, model.NewCapabilityError("ストリームが終端イベントなしに切断されました")
}

// decodeEvent は1件のSSEイベントをスナップショットへ変換する。
func (s *sseDraftStream) decodeEvent(event, data string) (*model.NewsletterDraft, bool, error) {
	switch event {
	case "error":
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil || payload.Message == "" {
			return nil, false, model.NewCapabilityError("バックエンドがエラーを返しました")
		}
		return nil, false, model.NewCapabilityError(payload.Message)
	case "complete", "draft":
		draft := &model.NewsletterDraft{}
		if err := json.Unmarshal([]byte(data), draft); err != nil {
			return nil, false, model.NewCapabilityError(
				fmt.Sprintf("スナップショットのデコードに失敗しました: %s", err))
		}
		return draft, event == "complete", nil
	default:
		// 未知のイベント種別は読み飛ばして次を待つ
		return s.Recv()
	}
}

// Close はレスポンスボディを閉じる。
func (s *sseDraftStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
