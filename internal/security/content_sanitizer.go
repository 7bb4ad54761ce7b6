package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は記事HTMLのサニタイズ機能を定義する。
// 取り込んだフィード記事の本文を保存する前に適用する。
type ContentSanitizerService interface {
	// Sanitize はHTMLを許可リストベースでサニタイズして返す。
	// 許可タグ（p, br, a, ul, ol, li, blockquote, pre, code, strong, em, img）
	// のみを通過させ、script, iframe, styleタグとon*イベント属性を除去する。
	// imgのsrcはhttpsのみ許可。aタグにはtarget="_blank"と
	// rel="noopener noreferrer"が付与される。
	// 空文字列には空文字列を返し、同一入力には常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// contentSanitizer はbluemondayのポリシーを保持するContentSanitizerServiceの実装。
// bluemonday.Policyは構築後は読み取り専用なので複数goroutineから共有できる。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{policy: buildArticlePolicy()}
}

// buildArticlePolicy は記事本文向けのbluemondayポリシーを構築する。
// scriptやiframe、on*イベント属性は許可リストに含まれないため自動的に落ちる。
func buildArticlePolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	// 構造系・装飾系の基本タグ。属性は持たせない。
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	// リンク: hrefのみ許可。相対URLはフィード記事では解決できないため拒否し、
	// 外部リンクにはtarget="_blank"とrel="noreferrer noopener"を強制する。
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	// 画像: src（httpsのみ）とaltを許可。http, data, javascriptスキームは落ちる。
	p.AllowAttrs("src").OnElements("img")
	p.AllowAttrs("alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return p
}

// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
