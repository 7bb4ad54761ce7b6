package security

import (
	"strings"
	"testing"
)

// sanitizeCase は入力HTMLに対し、出力に残るべき部分文字列と
// 除去されるべき部分文字列を指定する。
type sanitizeCase struct {
	name         string
	input        string
	wantContains []string
	wantAbsent   []string
}

func runSanitizeCases(t *testing.T, cases []sanitizeCase) {
	t.Helper()
	sanitizer := NewContentSanitizer()
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, should NOT contain %q", tt.input, got, absent)
				}
			}
		})
	}
}

// TestSanitize_許可タグ は記事本文で使われる基本タグが通過することを検証する。
func TestSanitize_許可タグ(t *testing.T) {
	runSanitizeCases(t, []sanitizeCase{
		{
			name:         "段落と改行",
			input:        "<p>第一段落</p>一行目<br>二行目",
			wantContains: []string{"<p>第一段落</p>", "<br>", "一行目", "二行目"},
		},
		{
			name:         "箇条書き",
			input:        "<ul><li>記事A</li><li>記事B</li></ul>",
			wantContains: []string{"<ul>", "<li>記事A</li>", "<li>記事B</li>", "</ul>"},
		},
		{
			name:         "番号付きリスト",
			input:        "<ol><li>第一位</li><li>第二位</li></ol>",
			wantContains: []string{"<ol>", "<li>第一位</li>", "</ol>"},
		},
		{
			name:         "引用",
			input:        "<blockquote>記事からの引用</blockquote>",
			wantContains: []string{"<blockquote>記事からの引用</blockquote>"},
		},
		{
			name:         "コードブロック",
			input:        "<pre><code>func main() {}</code></pre>",
			wantContains: []string{"<pre>", "<code>", "func main() {}", "</code>", "</pre>"},
		},
		{
			name:         "強調",
			input:        "<strong>重要</strong>と<em>注目</em>",
			wantContains: []string{"<strong>重要</strong>", "<em>注目</em>"},
		},
		{
			name:         "リンク",
			input:        `<a href="https://example.com/entry/1">元記事</a>`,
			wantContains: []string{"<a", `href="https://example.com/entry/1"`, "元記事", "</a>"},
		},
		{
			name:         "https画像",
			input:        `<img src="https://example.com/thumb.png" alt="サムネイル">`,
			wantContains: []string{"<img", `src="https://example.com/thumb.png"`, `alt="サムネイル"`},
		},
	})
}

// TestSanitize_禁止タグ はscript等の危険タグと許可外タグが除去されることを検証する。
func TestSanitize_禁止タグ(t *testing.T) {
	runSanitizeCases(t, []sanitizeCase{
		{
			name:         "scriptタグ",
			input:        `<p>本文</p><script>alert('xss')</script>`,
			wantContains: []string{"本文"},
			wantAbsent:   []string{"<script", "alert"},
		},
		{
			name:         "iframeタグ",
			input:        `<p>本文</p><iframe src="https://evil.example/frame"></iframe>`,
			wantContains: []string{"本文"},
			wantAbsent:   []string{"<iframe", "evil.example"},
		},
		{
			name:         "styleタグ",
			input:        `<p>本文</p><style>body{display:none}</style>`,
			wantContains: []string{"本文"},
			wantAbsent:   []string{"<style", "display:none"},
		},
		{
			name:         "divとspanはタグだけ剥がされる",
			input:        `<div><span>本文</span></div>`,
			wantContains: []string{"本文"},
			wantAbsent:   []string{"<div", "<span"},
		},
		{
			name:       "formとinput",
			input:      `<form action="https://evil.example"><input type="text"></form>`,
			wantAbsent: []string{"<form", "<input"},
		},
		{
			name:       "objectとembed",
			input:      `<object data="https://evil.example/x.swf"></object><embed src="https://evil.example/p">`,
			wantAbsent: []string{"<object", "<embed", "evil.example"},
		},
	})
}

// TestSanitize_XSSペイロード は典型的なXSSベクタが無害化されることを検証する。
func TestSanitize_XSSペイロード(t *testing.T) {
	runSanitizeCases(t, []sanitizeCase{
		{
			name:       "onclick属性",
			input:      `<p onclick="alert('xss')">本文</p>`,
			wantAbsent: []string{"onclick", "alert"},
		},
		{
			name:       "img onerror",
			input:      `<img src="https://example.com/a.png" onerror="alert('xss')">`,
			wantAbsent: []string{"onerror", "alert"},
		},
		{
			name:       "img onload",
			input:      `<img src="https://example.com/a.png" onload="alert('xss')">`,
			wantAbsent: []string{"onload", "alert"},
		},
		{
			name:       "svg onload",
			input:      `<svg onload="alert('xss')">`,
			wantAbsent: []string{"<svg", "onload"},
		},
		{
			name:       "javascript URI",
			input:      `<a href="javascript:alert('xss')">クリック</a>`,
			wantAbsent: []string{"javascript:"},
		},
		{
			name:       "data URIリンク",
			input:      `<a href="data:text/html,<script>alert('xss')</script>">データ</a>`,
			wantAbsent: []string{"data:text/html"},
		},
		{
			name:       "style属性",
			input:      `<p style="background:url(javascript:alert('xss'))">本文</p>`,
			wantAbsent: []string{"style=", "javascript:"},
		},
		{
			name:       "大文字混在イベント属性",
			input:      `<p OnClick="alert('xss')">本文</p>`,
			wantAbsent: []string{"OnClick", "onclick", "alert"},
		},
	})
}

// TestSanitize_画像スキーム はimgのsrcがhttpsのみ許可されることを検証する。
func TestSanitize_画像スキーム(t *testing.T) {
	runSanitizeCases(t, []sanitizeCase{
		{
			name:         "httpsは通過",
			input:        `<img src="https://example.com/photo.jpg" alt="写真">`,
			wantContains: []string{"https://example.com/photo.jpg", `alt="写真"`},
		},
		{
			name:       "httpは拒否",
			input:      `<img src="http://example.com/photo.jpg" alt="写真">`,
			wantAbsent: []string{"http://example.com/photo.jpg"},
		},
		{
			name:       "javascriptスキームは拒否",
			input:      `<img src="javascript:alert('xss')">`,
			wantAbsent: []string{"javascript:"},
		},
		{
			name:       "data URIは拒否",
			input:      `<img src="data:image/png;base64,abc">`,
			wantAbsent: []string{"data:image"},
		},
	})
}

// TestSanitize_リンク属性 は外部リンクへのtarget/rel付与を検証する。
func TestSanitize_リンク属性(t *testing.T) {
	sanitizer := NewContentSanitizer()

	got := sanitizer.Sanitize(`<a href="https://example.com/entry/1" target="_self" rel="nofollow">元記事</a>`)

	for _, want := range []string{`target="_blank"`, "noopener", "noreferrer", "元記事"} {
		if !strings.Contains(got, want) {
			t.Errorf("result %q expected to contain %q", got, want)
		}
	}
	if strings.Contains(got, `target="_self"`) {
		t.Errorf("result %q should NOT contain target=\"_self\"", got)
	}
}

// TestSanitize_空入力とプレーンテキスト を検証する。
func TestSanitize_空入力とプレーンテキスト(t *testing.T) {
	sanitizer := NewContentSanitizer()

	if got := sanitizer.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, expected empty string", got)
	}

	plain := "タグを含まない記事の要約です。"
	if got := sanitizer.Sanitize(plain); got != plain {
		t.Errorf("Sanitize(%q) = %q, expected unchanged", plain, got)
	}
}

// TestSanitize_冪等性 は二重サニタイズで結果が変わらないことを検証する。
// 取り込み時にサニタイズ済みの本文を再取り込みしても壊れないことの保証になる。
func TestSanitize_冪等性(t *testing.T) {
	sanitizer := NewContentSanitizer()

	input := `<p>本文<strong>強調</strong></p><a href="https://example.com">リンク</a><img src="https://example.com/a.png" alt="画像">`

	first := sanitizer.Sanitize(input)
	second := sanitizer.Sanitize(input)
	double := sanitizer.Sanitize(first)

	if first != second {
		t.Errorf("同一入力で結果が異なる: %q vs %q", first, second)
	}
	if first != double {
		t.Errorf("二重サニタイズで結果が変わった: %q vs %q", first, double)
	}
}

// TestSanitize_記事本文全体 はフィード記事相当の複合HTMLを検証する。
func TestSanitize_記事本文全体(t *testing.T) {
	sanitizer := NewContentSanitizer()

	input := `<div class="entry-body">
<h1>見出し</h1>
<p>これは<strong>注目の</strong>記事です。</p>
<script>document.cookie</script>
<ul>
<li>ポイント1</li>
<li>ポイント2</li>
</ul>
<img src="https://example.com/photo.jpg" alt="写真" onerror="steal()">
<a href="https://example.com/entry/1" onclick="steal()">続きを読む</a>
<iframe src="https://evil.example"></iframe>
<blockquote>引用部分</blockquote>
<pre><code>fmt.Println("hello")</code></pre>
</div>`

	got := sanitizer.Sanitize(input)

	// bluemondayはダブルクォートを&#34;にエンコードするためfmt.Printlnは部分一致で見る
	kept := []string{
		"<p>", "<strong>注目の</strong>",
		"<ul>", "<li>ポイント1</li>",
		"https://example.com/photo.jpg",
		"続きを読む",
		"<blockquote>引用部分</blockquote>",
		"<pre>", "<code>", "fmt.Println(",
		`target="_blank"`, "noopener", "noreferrer",
	}
	for _, part := range kept {
		if !strings.Contains(got, part) {
			t.Errorf("結果に %q が含まれていない: %q", part, got)
		}
	}

	removed := []string{
		"<div", "<h1", "<script", "<iframe",
		"onclick", "onerror",
		"document.cookie", "steal()", "evil.example",
	}
	for _, part := range removed {
		if strings.Contains(got, part) {
			t.Errorf("結果に禁止要素 %q が含まれている: %q", part, got)
		}
	}
}

// TestContentSanitizerInterface はContentSanitizerServiceの適合を検証する。
func TestContentSanitizerInterface(t *testing.T) {
	var _ ContentSanitizerService = NewContentSanitizer()
}
