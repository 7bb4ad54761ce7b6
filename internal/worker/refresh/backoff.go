package refresh

import (
	"fmt"
	"time"

	"github.com/hitoshi/letterman/internal/model"
)

// StatusClass はHTTPステータスコードに基づくフェッチ結果の分類。
type StatusClass int

const (
	// StatusOK はフェッチ成功（200）。
	StatusOK StatusClass = iota
	// StatusNotModified はコンテンツ未変更（304）。
	StatusNotModified
	// StatusStop はフェッチ停止が必要なステータス（404/410/401/403）。
	StatusStop
	// StatusBackoff はバックオフが必要なステータス（429/5xx）。
	StatusBackoff
	// StatusUnknown は未知のステータスコード。
	StatusUnknown
)

const (
	// initialBackoff は指数バックオフの初回遅延（30分）。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（12時間）。
	maxBackoff = 12 * time.Hour
	// parseFailureThreshold はパース失敗によるフェッチ停止の閾値。
	parseFailureThreshold = 10
)

// Classify はHTTPステータスコードをフェッチ結果に分類する。
func Classify(statusCode int) StatusClass {
	switch {
	case statusCode == 200:
		return StatusOK
	case statusCode == 304:
		return StatusNotModified
	case statusCode == 404 || statusCode == 410:
		return StatusStop
	case statusCode == 401 || statusCode == 403:
		return StatusStop
	case statusCode == 429:
		return StatusBackoff
	case statusCode >= 500:
		return StatusBackoff
	default:
		return StatusUnknown
	}
}

// Backoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func Backoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// MarkStopped はフィードのフェッチを停止する。
// fetch_statusをstoppedに設定し、エラーメッセージを記録する。
func MarkStopped(feed *model.Feed, reason string) {
	feed.FetchStatus = model.FetchStatusStopped
	feed.ErrorMessage = reason
	feed.UpdatedAt = time.Now()
}

// MarkFailure はフィードにバックオフ戦略を適用する。
// 連続エラー回数をインクリメントし、指数バックオフでnext_fetch_atを設定する。
func MarkFailure(feed *model.Feed, reason string) {
	feed.ConsecutiveErrors++
	feed.ErrorMessage = reason
	delay := Backoff(feed.ConsecutiveErrors - 1)
	feed.NextFetchAt = time.Now().Add(delay)
	feed.UpdatedAt = time.Now()
}

// MarkSuccess はフェッチ成功時にフィードの状態をリセットする。
// 連続エラー回数を0にリセットし、エラーメッセージをクリアする。
// intervalMinutesに基づいてnext_fetch_atを設定する。
func MarkSuccess(feed *model.Feed, intervalMinutes int) {
	feed.ConsecutiveErrors = 0
	feed.ErrorMessage = ""
	feed.NextFetchAt = time.Now().Add(time.Duration(intervalMinutes) * time.Minute)
	feed.UpdatedAt = time.Now()
}

// MarkParseFailure はパース失敗時にフィードの連続エラー回数をインクリメントする。
// 閾値に達した場合はフェッチを停止する。
func MarkParseFailure(feed *model.Feed, reason string) {
	feed.ConsecutiveErrors++
	feed.ErrorMessage = fmt.Sprintf("パース失敗 (%d回連続): %s", feed.ConsecutiveErrors, reason)
	feed.UpdatedAt = time.Now()

	if feed.ConsecutiveErrors >= parseFailureThreshold {
		feed.FetchStatus = model.FetchStatusStopped
		feed.ErrorMessage = fmt.Sprintf("パース失敗が%d回連続したためフェッチを停止しました: %s", feed.ConsecutiveErrors, reason)
	}
}
