// Package model はドメインモデルを定義する。
package model

import "time"

// Article は複数フィードにまたがって重複排除された記事を表す。
// guidが重複排除キーであり、同一guidの記事は全フィードを通じて1件のみ存在する。
type Article struct {
	ID            string
	Guid          string
	PrimaryFeedID string   // 最初に観測されたフィード。作成後は不変。
	SourceFeedIDs []string // 観測されたフィードの集合。初出順を保持し、重複なし。単調増加。
	Title         string
	Link          string
	Content       string // サニタイズ済みHTML
	Summary       string // サニタイズ済み
	PubDate       time.Time
	Author        string // 正規化済み。不明の場合は空文字列。
	Categories    []string
	ImageURL      string
	CreatedAt     time.Time
}

// HasSourceFeed は指定フィードが観測元集合に含まれるかを返す。
func (a *Article) HasSourceFeed(feedID string) bool {
	for _, id := range a.SourceFeedIDs {
		if id == feedID {
			return true
		}
	}
	return false
}

// ScoredArticle は記事とクロスフィード重要度シグナルを結合したモデル。
// SourceCountは取得時に毎回計算され、永続化されない。
type ScoredArticle struct {
	Article
	SourceCount int // len(SourceFeedIDs)。複数フィードでの裏付けの広さを表す。
}

// ArticleCandidate はフィードから取得した未保存の記事候補を表す。
// 取り込みエンジンに渡される前の状態で、Authorは正規化前の生の値を保持する。
type ArticleCandidate struct {
	Guid       string
	FeedID     string
	Title      string
	Link       string
	Content    string // 未サニタイズのHTML
	Summary    string // 未サニタイズ
	PubDate    time.Time
	Author     any // 正規化前の生の値（文字列、構造体、nil等）
	Categories []string
	ImageURL   string
}
