package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/letterman/internal/model"
)

// mockSSRFGuard はテスト用のSSRFGuardモック。
// blockAllを立てると全URLを拒否する。
type mockSSRFGuard struct {
	blockAll bool
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockSSRFGuard) ValidateURL(rawURL string) error {
	if m.blockAll {
		return fmt.Errorf("blocked by SSRF guard")
	}
	return nil
}

// TestIsDirectFeed はContent-Typeとボディによるフィード判定をテストする。
func TestIsDirectFeed(t *testing.T) {
	rssBody := `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Test</title></channel></rss>`
	atomBody := `<?xml version="1.0" encoding="UTF-8"?><feed xmlns="http://www.w3.org/2005/Atom"><title>Test</title></feed>`
	rdfBody := `<?xml version="1.0"?><rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"></rdf:RDF>`
	htmlBody := `<?xml version="1.0"?><html><head><title>Test</title></head></html>`

	tests := []struct {
		name        string
		contentType string
		body        string
		want        bool
	}{
		{"rss+xmlはボディなしで確定", "application/rss+xml", "", true},
		{"atom+xmlはボディなしで確定", "application/atom+xml", "", true},
		{"charsetパラメータ付きでも判定できる", "application/rss+xml; charset=utf-8", "", true},
		{"text/xml + RSSボディ", "text/xml", rssBody, true},
		{"text/xml + Atomボディ", "text/xml", atomBody, true},
		{"text/xml + RDFボディ", "text/xml", rdfBody, true},
		{"application/xml + RSSボディ", "application/xml", rssBody, true},
		{"text/xml + HTMLボディはフィードでない", "text/xml", htmlBody, false},
		{"text/xml + 空ボディはフィードでない", "text/xml", "", false},
		{"text/htmlはフィードでない", "text/html", "", false},
		{"application/jsonはフィードでない", "application/json", "", false},
	}

	d := NewFeedDetector(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.IsDirectFeed(tt.contentType, []byte(tt.body)); got != tt.want {
				t.Errorf("IsDirectFeed(%q, ...) = %v, want %v", tt.contentType, got, tt.want)
			}
		})
	}
}

// TestParseFeedLinksFromHTML はHTMLのlink要素からの候補収集をテストする。
func TestParseFeedLinksFromHTML(t *testing.T) {
	d := NewFeedDetector(nil)

	t.Run("RSSとAtomの両方を検出する", func(t *testing.T) {
		page := `<html><head>
			<link rel="alternate" type="application/rss+xml" title="RSS" href="/rss.xml">
			<link rel="alternate" type="application/atom+xml" title="Atom" href="/atom.xml">
		</head><body></body></html>`

		links := d.ParseFeedLinksFromHTML([]byte(page), "https://example.com")

		if len(links) != 2 {
			t.Fatalf("expected 2 candidates, got %d", len(links))
		}
		if links[0].FeedType != FeedTypeRSS || links[0].URL != "https://example.com/rss.xml" {
			t.Errorf("unexpected first candidate: %+v", links[0])
		}
		if links[1].FeedType != FeedTypeAtom || links[1].URL != "https://example.com/atom.xml" {
			t.Errorf("unexpected second candidate: %+v", links[1])
		}
	})

	t.Run("title属性を保持する", func(t *testing.T) {
		page := `<html><head>
			<link rel="alternate" type="application/rss+xml" title="技術ブログ" href="https://example.com/feed.xml">
		</head><body></body></html>`

		links := d.ParseFeedLinksFromHTML([]byte(page), "https://example.com")

		if len(links) != 1 {
			t.Fatalf("expected 1 candidate, got %d", len(links))
		}
		if links[0].Title != "技術ブログ" {
			t.Errorf("expected title 技術ブログ, got %q", links[0].Title)
		}
	})

	t.Run("相対hrefをベースURL基準で解決する", func(t *testing.T) {
		page := `<html><head>
			<link rel="alternate" type="application/rss+xml" href="/feed/rss.xml">
		</head><body></body></html>`

		links := d.ParseFeedLinksFromHTML([]byte(page), "https://blog.example.com/page")

		if len(links) != 1 {
			t.Fatalf("expected 1 candidate, got %d", len(links))
		}
		if links[0].URL != "https://blog.example.com/feed/rss.xml" {
			t.Errorf("expected resolved URL, got %q", links[0].URL)
		}
	})

	t.Run("alternate以外のlink要素は無視する", func(t *testing.T) {
		page := `<html><head>
			<link rel="stylesheet" type="text/css" href="/style.css">
			<link rel="icon" href="/favicon.ico">
			<link rel="alternate" type="text/html" href="/mobile">
			<link rel="alternate" type="application/rss+xml" href="/feed.xml">
		</head><body></body></html>`

		links := d.ParseFeedLinksFromHTML([]byte(page), "https://example.com")

		if len(links) != 1 {
			t.Fatalf("expected 1 candidate, got %d", len(links))
		}
		if links[0].URL != "https://example.com/feed.xml" {
			t.Errorf("unexpected candidate: %+v", links[0])
		}
	})

	t.Run("body以降のlink要素は見ない", func(t *testing.T) {
		page := `<html><head><title>t</title></head><body>
			<link rel="alternate" type="application/rss+xml" href="/feed.xml">
		</body></html>`

		links := d.ParseFeedLinksFromHTML([]byte(page), "https://example.com")

		if len(links) != 0 {
			t.Errorf("expected no candidates, got %d", len(links))
		}
	})

	t.Run("フィードリンクのないHTMLは空を返す", func(t *testing.T) {
		page := `<html><head><title>No Feed</title></head><body></body></html>`

		links := d.ParseFeedLinksFromHTML([]byte(page), "https://example.com")

		if len(links) != 0 {
			t.Errorf("expected no candidates, got %d", len(links))
		}
	})
}

// TestSelectBestFeed は候補選択の優先順位をテストする。
// 同一ホスト > Atom > RSS、同順位は文書内の先勝ち。
func TestSelectBestFeed(t *testing.T) {
	tests := []struct {
		name       string
		candidates []FeedCandidate
		inputURL   string
		wantURL    string
		wantNil    bool
	}{
		{
			name:    "候補0件はnil",
			wantNil: true,
		},
		{
			name: "単一候補はそのまま",
			candidates: []FeedCandidate{
				{URL: "https://other.com/feed.xml", FeedType: FeedTypeRSS},
			},
			inputURL: "https://example.com",
			wantURL:  "https://other.com/feed.xml",
		},
		{
			name: "同一ホストが他ホストのAtomより優先",
			candidates: []FeedCandidate{
				{URL: "https://other.com/atom.xml", FeedType: FeedTypeAtom},
				{URL: "https://example.com/rss.xml", FeedType: FeedTypeRSS},
			},
			inputURL: "https://example.com",
			wantURL:  "https://example.com/rss.xml",
		},
		{
			name: "同一ホスト内ではAtom優先",
			candidates: []FeedCandidate{
				{URL: "https://example.com/rss.xml", FeedType: FeedTypeRSS},
				{URL: "https://example.com/atom.xml", FeedType: FeedTypeAtom},
			},
			inputURL: "https://example.com",
			wantURL:  "https://example.com/atom.xml",
		},
		{
			name: "同条件は先勝ち",
			candidates: []FeedCandidate{
				{URL: "https://example.com/feed1.xml", FeedType: FeedTypeRSS},
				{URL: "https://example.com/feed2.xml", FeedType: FeedTypeRSS},
			},
			inputURL: "https://example.com",
			wantURL:  "https://example.com/feed1.xml",
		},
		{
			name: "4候補の全順位",
			candidates: []FeedCandidate{
				{URL: "https://other.com/rss.xml", FeedType: FeedTypeRSS},
				{URL: "https://other.com/atom.xml", FeedType: FeedTypeAtom},
				{URL: "https://example.com/rss.xml", FeedType: FeedTypeRSS},
				{URL: "https://example.com/atom.xml", FeedType: FeedTypeAtom},
			},
			inputURL: "https://example.com",
			wantURL:  "https://example.com/atom.xml",
		},
	}

	d := NewFeedDetector(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			best := d.SelectBestFeed(tt.candidates, tt.inputURL)
			if tt.wantNil {
				if best != nil {
					t.Errorf("expected nil, got %+v", best)
				}
				return
			}
			if best == nil {
				t.Fatal("expected a candidate, got nil")
			}
			if best.URL != tt.wantURL {
				t.Errorf("SelectBestFeed = %q, want %q", best.URL, tt.wantURL)
			}
		})
	}
}

// TestDetectFeedURL_フィードURL直接入力 はRSS/Atom/汎用XMLの各Content-Typeで
// 入力URLがそのまま返ることをテストする。
func TestDetectFeedURL_フィードURL直接入力(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{
			name:        "RSS",
			contentType: "application/rss+xml",
			body:        `<?xml version="1.0"?><rss version="2.0"><channel><title>Test</title></channel></rss>`,
		},
		{
			name:        "Atom",
			contentType: "application/atom+xml",
			body:        `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"><title>Test</title></feed>`,
		},
		{
			name:        "text/xmlにRSSボディ",
			contentType: "text/xml; charset=utf-8",
			body:        `<?xml version="1.0"?><rss version="2.0"><channel><title>Test</title></channel></rss>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			d := NewFeedDetector(&mockSSRFGuard{})
			got, err := d.DetectFeedURL(context.Background(), server.URL+"/feed")
			if err != nil {
				t.Fatalf("DetectFeedURL returned error: %v", err)
			}
			if got != server.URL+"/feed" {
				t.Errorf("expected %s/feed, got %s", server.URL, got)
			}
		})
	}
}

// TestDetectFeedURL_HTML自動検出 はHTMLページのlink要素からフィードURLを
// 検出することをテストする。相対hrefの解決と優先順位の適用も確認する。
func TestDetectFeedURL_HTML自動検出(t *testing.T) {
	var serverURL string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/blog":
			w.Header().Set("Content-Type", "text/html")
			// 同一ホストのAtomが最優先で選ばれるべき並び
			fmt.Fprintf(w, `<html><head>
				<link rel="alternate" type="application/rss+xml" href="https://external.example/rss.xml">
				<link rel="alternate" type="application/rss+xml" href="/rss.xml">
				<link rel="alternate" type="application/atom+xml" href="%s/atom.xml">
			</head><body></body></html>`, serverURL)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()
	serverURL = server.URL

	d := NewFeedDetector(&mockSSRFGuard{})
	got, err := d.DetectFeedURL(context.Background(), server.URL+"/blog")
	if err != nil {
		t.Fatalf("DetectFeedURL returned error: %v", err)
	}
	if got != server.URL+"/atom.xml" {
		t.Errorf("expected %s/atom.xml, got %s", server.URL, got)
	}
}

// TestDetectFeedURL_フィード未検出 はフィードのないHTMLでFEED_NOT_DETECTEDを返すテスト。
func TestDetectFeedURL_フィード未検出(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>No Feed</title></head><body></body></html>`)
	}))
	defer server.Close()

	d := NewFeedDetector(&mockSSRFGuard{})
	_, err := d.DetectFeedURL(context.Background(), server.URL+"/")
	if err == nil {
		t.Fatal("expected error for page without feed links")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeFeedNotDetected {
		t.Errorf("expected code %s, got %s", model.ErrCodeFeedNotDetected, apiErr.Code)
	}
	if apiErr.Action == "" {
		t.Error("expected non-empty action")
	}
}

// TestDetectFeedURL_フィードでもHTMLでもない はJSON等のレスポンスでエラーを返すテスト。
func TestDetectFeedURL_フィードでもHTMLでもない(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"hello":"world"}`)
	}))
	defer server.Close()

	d := NewFeedDetector(&mockSSRFGuard{})
	_, err := d.DetectFeedURL(context.Background(), server.URL+"/api")
	if err == nil {
		t.Fatal("expected error for non-feed non-HTML response")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeFeedNotDetected {
		t.Errorf("expected code %s, got %s", model.ErrCodeFeedNotDetected, apiErr.Code)
	}
}

// TestDetectFeedURL_SSRFブロック はSSRF検証で拒否されたURLがSSRF_BLOCKEDになるテスト。
func TestDetectFeedURL_SSRFブロック(t *testing.T) {
	d := NewFeedDetector(&mockSSRFGuard{blockAll: true})

	_, err := d.DetectFeedURL(context.Background(), "http://192.168.1.1/feed.xml")
	if err == nil {
		t.Fatal("expected error for SSRF-blocked URL")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeSSRFBlocked {
		t.Errorf("expected code %s, got %s", model.ErrCodeSSRFBlocked, apiErr.Code)
	}
}

// TestDetectFeedURL_空URL をテストする。
func TestDetectFeedURL_空URL(t *testing.T) {
	d := NewFeedDetector(&mockSSRFGuard{})

	_, err := d.DetectFeedURL(context.Background(), "")
	if err == nil {
		t.Fatal("expected error for empty URL")
	}
}
