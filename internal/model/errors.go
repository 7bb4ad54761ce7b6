// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, feed, generation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeMissingFeedIDs      = "MISSING_FEED_IDS"
	ErrCodeInvalidDateRange    = "INVALID_DATE_RANGE"
	ErrCodeFeedNotDetected     = "FEED_NOT_DETECTED"
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeSSRFBlocked         = "SSRF_BLOCKED"
	ErrCodeFetchFailed         = "FETCH_FAILED"
	ErrCodeParseFailed         = "PARSE_FAILED"
	ErrCodeFeedNotFound        = "FEED_NOT_FOUND"
	ErrCodeArticleNotFound     = "ARTICLE_NOT_FOUND"
	ErrCodeNewsletterNotFound  = "NEWSLETTER_NOT_FOUND"
	ErrCodeCapability          = "CAPABILITY_ERROR"
	ErrCodeTimeout             = "TIMEOUT_ERROR"
	ErrCodeDuplicateFeed       = "DUPLICATE_FEED"
	ErrCodeGenerationInFlight  = "GENERATION_IN_FLIGHT"
	ErrCodeGenerationCancelled = "GENERATION_CANCELLED"
)

// ErrConflict は作成時の一意制約違反を表すセンチネルエラー。
// 同一guidの候補が並行して作成を競合した場合に発生し、
// 一括取り込みではエラーではなくスキップとして集計される。
var ErrConflict = errors.New("重複キーの競合が発生しました")

// ErrStreamTimeout は生成バックエンドが制限時間内に進捗を返さなかったことを表す。
var ErrStreamTimeout = errors.New("生成ストリームがタイムアウトしました")

// NewValidationError は保存時の形状検証エラーを生成する。
func NewValidationError(field string, got, want int) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("%s の要素数が不正です: %d件（%d件必要）", field, got, want),
		Category: "validation",
		Action:   "生成を完了してから保存してください。",
	}
}

// NewMissingFeedIDsError はフィードID未指定エラーを生成する。
func NewMissingFeedIDsError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingFeedIDs,
		Message:  "フィードIDが指定されていません。",
		Category: "validation",
		Action:   "1件以上のフィードを選択してください。",
	}
}

// NewInvalidDateRangeError は期間指定エラーを生成する。
func NewInvalidDateRangeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDateRange,
		Message:  "開始日が終了日より後になっています。",
		Category: "validation",
		Action:   "開始日と終了日を確認してください。",
	}
}

// NewFeedNotDetectedError はフィード未検出エラーを生成する。
func NewFeedNotDetectedError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotDetected,
		Message:  fmt.Sprintf("指定されたURLからRSS/Atomフィードを検出できませんでした: %s", url),
		Category: "feed",
		Action:   "RSS/AtomフィードのURLを直接入力するか、フィードが公開されているページのURLを確認してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewFetchFailedError はフェッチ失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("URLの取得に失敗しました: %s", reason),
		Category: "feed",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewFeedNotFoundError はフィード未検出エラーを生成する。
func NewFeedNotFoundError(feedID string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotFound,
		Message:  fmt.Sprintf("指定されたフィードが見つかりません: %s", feedID),
		Category: "feed",
		Action:   "フィードIDを確認してください。",
	}
}

// NewNewsletterNotFoundError はニュースレター未検出エラーを生成する。
func NewNewsletterNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeNewsletterNotFound,
		Message:  fmt.Sprintf("指定されたニュースレターが見つかりません: %s", id),
		Category: "feed",
		Action:   "ニュースレターIDを確認してください。",
	}
}

// NewDuplicateFeedError は既に登録済みのフィードを再登録しようとした場合のエラーを生成する。
func NewDuplicateFeedError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateFeed,
		Message:  "このフィードは既に登録されています。",
		Category: "feed",
		Action:   "フィード一覧から該当フィードを確認してください。",
	}
}

// NewGenerationInFlightError は同一条件の生成が進行中の場合のエラーを生成する。
func NewGenerationInFlightError() *APIError {
	return &APIError{
		Code:     ErrCodeGenerationInFlight,
		Message:  "同一条件のニュースレター生成がすでに進行中です。",
		Category: "generation",
		Action:   "進行中の生成が完了するまでお待ちください。",
	}
}

// NewGenerationCancelledError は生成が中断された場合のエラーを生成する。
func NewGenerationCancelledError() *APIError {
	return &APIError{
		Code:     ErrCodeGenerationCancelled,
		Message:  "ニュースレター生成がキャンセルされました。",
		Category: "generation",
		Action:   "必要に応じて生成を再実行してください。",
	}
}

// NewCapabilityError は生成バックエンドの失敗エラーを生成する。
func NewCapabilityError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeCapability,
		Message:  fmt.Sprintf("ニュースレターの生成に失敗しました: %s", reason),
		Category: "generation",
		Action:   "しばらく待ってから再度生成を実行してください。",
	}
}

// NewTimeoutError は生成の進捗タイムアウトエラーを生成する。
func NewTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeTimeout,
		Message:  "生成バックエンドが制限時間内に応答しませんでした。",
		Category: "generation",
		Action:   "しばらく待ってから再度生成を実行してください。",
	}
}
