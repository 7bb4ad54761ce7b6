// Package model はドメインモデルを定義する。
package model

import "time"

// Feed は購読中のRSS/Atomフィード。
// ETag/LastModifiedは条件付きGETに使い、ConsecutiveErrorsは
// 連続失敗時のバックオフ判定に使う。
type Feed struct {
	ID                string
	FeedURL           string
	SiteURL           string
	Title             string
	ETag              string
	LastModified      string
	FetchStatus       FetchStatus
	ConsecutiveErrors int
	ErrorMessage      string
	NextFetchAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FetchStatus はフィードのフェッチ状態を表す。
type FetchStatus string

const (
	// FetchStatusActive はアクティブなフェッチ状態。
	FetchStatusActive FetchStatus = "active"
	// FetchStatusStopped は停止されたフェッチ状態。
	FetchStatusStopped FetchStatus = "stopped"
	// FetchStatusError はエラーによるフェッチ停止状態。
	FetchStatusError FetchStatus = "error"
)

// NeedsRefresh はフィードが生成前に再取得を必要とするかを返す。
// next_fetch_atが現在時刻以前のアクティブなフィードが対象となる。
func (f *Feed) NeedsRefresh(now time.Time) bool {
	return f.FetchStatus == FetchStatusActive && !f.NextFetchAt.After(now)
}
