// Package model はドメインモデルを定義する。
package model

import "time"

// RequiredListLength はニュースレターの各候補リストに要求される要素数。
// タイトル案、件名案、トップ記事はそれぞれちょうど5件でなければならない。
const RequiredListLength = 5

// NewsletterDraft は生成途中のニュースレターを表す。
// ストリーミング中は部分的にしか埋まっていない状態で観測されるため、
// 全フィールドが任意であり、配列長の制約も課されない。
// フィールドは単調に埋まっていく（一度設定された値が後で消えることはない）。
type NewsletterDraft struct {
	SuggestedTitles       []string `json:"suggested_titles,omitempty"`
	SuggestedSubjectLines []string `json:"suggested_subject_lines,omitempty"`
	Body                  string   `json:"body,omitempty"`
	TopAnnouncements      []string `json:"top_announcements,omitempty"`
	AdditionalInfo        string   `json:"additional_info,omitempty"`
}

// Newsletter は保存されたニュースレターを表す。
// 保存時にはタイトル案・件名案・トップ記事がそれぞれちょうど5件であることが検証される。
type Newsletter struct {
	ID                    string
	SuggestedTitles       []string
	SuggestedSubjectLines []string
	Body                  string
	TopAnnouncements      []string
	AdditionalInfo        string
	FeedIDs               []string
	StartDate             time.Time
	EndDate               time.Time
	UserInput             string
	CreatedAt             time.Time
}

// GenerationRequest はニュースレター生成の要求を表す。永続化されない。
type GenerationRequest struct {
	FeedIDs   []string
	StartDate time.Time
	EndDate   time.Time
	UserInput string
}

// Validate は生成要求の必須パラメータを検証する。
// フィードIDが空、または期間が逆転している場合はエラーを返す。
func (r *GenerationRequest) Validate() *APIError {
	if len(r.FeedIDs) == 0 {
		return NewMissingFeedIDsError()
	}
	if r.EndDate.Before(r.StartDate) {
		return NewInvalidDateRangeError()
	}
	return nil
}

// PrepareResult は生成準備ステップの結果を表す。
// 呼び出し元への進捗表示のための情報であり、生成ステップはこの結果に依存しない。
type PrepareResult struct {
	FeedsToRefresh int
	ArticlesFound  int
}

// BatchResult は一括取り込みの集計結果を表す。
// Created + Skipped + Errors は常に入力件数に一致する。
type BatchResult struct {
	Created int
	Skipped int
	Errors  int
}
