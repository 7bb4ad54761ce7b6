// Package feed はフィード登録・管理のドメインロジックを提供する。
package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/letterman/internal/model"
	"golang.org/x/net/html"
)

// FeedType はフィードの種類（RSS/Atom）を表す。
type FeedType string

const (
	// FeedTypeRSS はRSSフィード。
	FeedTypeRSS FeedType = "rss"
	// FeedTypeAtom はAtomフィード。
	FeedTypeAtom FeedType = "atom"
)

// FeedCandidate はHTMLの自動検出で見つかったフィード候補。
type FeedCandidate struct {
	URL      string
	FeedType FeedType
	Title    string
}

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

const (
	detectTimeout = 10 * time.Second
	// フィード本体・HTMLとも読み込みは5MBで打ち切る
	maxFetchSize = 5 * 1024 * 1024
	// XMLのルート要素判定に読む先頭バイト数
	sniffSize = 4096
)

// directFeedTypes はContent-Typeだけでフィードと確定できるメディアタイプ。
// link要素のtype属性の判定にも使う。
var directFeedTypes = map[string]FeedType{
	"application/rss+xml":  FeedTypeRSS,
	"application/atom+xml": FeedTypeAtom,
}

// genericXMLTypes はボディを見ないとフィードか判断できないメディアタイプ。
var genericXMLTypes = map[string]bool{
	"text/xml":        true,
	"application/xml": true,
}

// FeedDetector は入力URLからフィードURLを自動検出する。
type FeedDetector struct {
	ssrfGuard SSRFValidator
}

// NewFeedDetector はFeedDetectorの新しいインスタンスを生成する。
func NewFeedDetector(ssrfGuard SSRFValidator) *FeedDetector {
	return &FeedDetector{ssrfGuard: ssrfGuard}
}

// DetectFeedURL は入力URLを検査してフィードURLを決定する。
// URL自体がフィードならそのまま返し、HTMLならlink要素から候補を集めて
// 最適な1件を選ぶ。フィードが見つからない場合はカテゴリと対処方法を
// 持ったAPIErrorを返す。
func (d *FeedDetector) DetectFeedURL(ctx context.Context, inputURL string) (string, error) {
	if inputURL == "" {
		return "", model.NewInvalidURLError("URLが入力されていません")
	}

	if d.ssrfGuard != nil {
		if err := d.ssrfGuard.ValidateURL(inputURL); err != nil {
			return "", model.NewSSRFBlockedError()
		}
	}

	contentType, body, err := d.fetch(ctx, inputURL)
	if err != nil {
		return "", err
	}

	if d.IsDirectFeed(contentType, body) {
		return inputURL, nil
	}

	// フィードでないならHTMLの自動検出を試みる
	mediaType := normalizeMediaType(contentType)
	if !strings.Contains(mediaType, "html") {
		return "", model.NewFeedNotDetectedError(inputURL)
	}

	candidates := d.ParseFeedLinksFromHTML(body, inputURL)
	best := d.SelectBestFeed(candidates, inputURL)
	if best == nil {
		return "", model.NewFeedNotDetectedError(inputURL)
	}
	return best.URL, nil
}

// fetch は対象URLを取得してContent-Typeとボディを返す。
func (d *FeedDetector) fetch(ctx context.Context, target string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", "Letterman/1.0 RSS Aggregator")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html, */*")

	resp, err := d.httpClient().Do(req)
	if err != nil {
		return "", nil, model.NewFetchFailedError(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchSize))
	if err != nil {
		return "", nil, model.NewFetchFailedError(fmt.Sprintf("レスポンスの読み取りに失敗: %v", err))
	}
	return resp.Header.Get("Content-Type"), body, nil
}

// httpClient はssrfGuardがあればSSRF防止付きクライアントを返す。
func (d *FeedDetector) httpClient() *http.Client {
	if d.ssrfGuard != nil {
		return d.ssrfGuard.NewSafeClient(detectTimeout, maxFetchSize)
	}
	return &http.Client{Timeout: detectTimeout}
}

// IsDirectFeed はレスポンスそのものがRSS/Atomフィードかを判定する。
// RSS/Atom固有のContent-Typeなら即確定。汎用XMLの場合は先頭の
// ルート要素まで読んで判定する。
func (d *FeedDetector) IsDirectFeed(contentType string, body []byte) bool {
	mediaType := normalizeMediaType(contentType)

	if _, ok := directFeedTypes[mediaType]; ok {
		return true
	}
	if !genericXMLTypes[mediaType] || len(body) == 0 {
		return false
	}
	return sniffFeedXML(body)
}

// normalizeMediaType はContent-Typeからcharset等のパラメータを落とし、
// 小文字のメディアタイプだけを返す。
func normalizeMediaType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.ToLower(mediaType)
}

// sniffFeedXML はXMLの先頭を読んでRSS/Atomのルート要素を探す。
// rss/rdf:RDFはRSS、Atom namespace付きのfeed要素はAtomとみなす。
func sniffFeedXML(body []byte) bool {
	n := sniffSize
	if len(body) < n {
		n = len(body)
	}
	head := strings.ToLower(string(body[:n]))

	if strings.Contains(head, "<rss") || strings.Contains(head, "<rdf:rdf") {
		return true
	}
	return strings.Contains(head, "<feed") && strings.Contains(head, "http://www.w3.org/2005/atom")
}

// linkAttrs はlink要素から取り出す属性の組。
type linkAttrs struct {
	rel, typ, href, title string
}

// ParseFeedLinksFromHTML はHTMLのhead内のlink要素からフィード候補を集める。
// rel="alternate"かつRSS/Atomのtype属性を持つものだけが対象で、
// 相対hrefはbaseURLを基準に絶対URLへ解決する。
func (d *FeedDetector) ParseFeedLinksFromHTML(htmlBody []byte, baseURL string) []FeedCandidate {
	baseU, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var candidates []FeedCandidate
	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return candidates

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			switch string(tn) {
			case "head":
				inHead = true
			case "body":
				// head解析はbody開始で打ち切る
				return candidates
			case "link":
				if !inHead || !hasAttr {
					continue
				}
				attrs := readLinkAttrs(tokenizer)
				if c, ok := candidateFromLink(attrs, baseU); ok {
					candidates = append(candidates, c)
				}
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "head" {
				return candidates
			}
		}
	}
}

// readLinkAttrs は現在のlinkトークンの属性を読み取る。
func readLinkAttrs(tokenizer *html.Tokenizer) linkAttrs {
	var a linkAttrs
	for {
		key, val, more := tokenizer.TagAttr()
		v := string(val)
		switch strings.ToLower(string(key)) {
		case "rel":
			a.rel = strings.ToLower(v)
		case "type":
			a.typ = strings.ToLower(v)
		case "href":
			a.href = v
		case "title":
			a.title = v
		}
		if !more {
			return a
		}
	}
}

// candidateFromLink はlink属性からフィード候補を組み立てる。
// 対象外のlink要素にはfalseを返す。
func candidateFromLink(a linkAttrs, base *url.URL) (FeedCandidate, bool) {
	if a.rel != "alternate" || a.href == "" {
		return FeedCandidate{}, false
	}
	feedType, ok := directFeedTypes[a.typ]
	if !ok {
		return FeedCandidate{}, false
	}

	ref, err := url.Parse(a.href)
	if err != nil {
		return FeedCandidate{}, false
	}
	resolved := base.ResolveReference(ref).String()
	if resolved == "" {
		return FeedCandidate{}, false
	}

	return FeedCandidate{URL: resolved, FeedType: feedType, Title: a.title}, true
}

// SelectBestFeed は候補から最適な1件を選ぶ。
// 優先順位は 同一ホスト > Atom > RSS。同順位なら文書内で先に現れた方。
func (d *FeedDetector) SelectBestFeed(candidates []FeedCandidate, inputURL string) *FeedCandidate {
	if len(candidates) == 0 {
		return nil
	}

	inputHost := hostOf(inputURL)
	bestIdx := 0
	bestScore := -1

	for i, c := range candidates {
		score := 0
		if hostOf(c.URL) == inputHost {
			score += 100
		}
		if c.FeedType == FeedTypeAtom {
			score += 10
		}
		// 同スコアは先勝ちなので > で比較する
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return &candidates[bestIdx]
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
