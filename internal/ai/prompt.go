package ai

import (
	"fmt"
	"strings"
)

// composePrompt はニュースレター生成プロンプトのテンプレート。
// 期間、記事一覧、ユーザー指示を埋め込む。
const composePrompt = `You are an experienced newsletter editor. Using the articles below,
write a newsletter covering %s to %s.

Produce:
- exactly 5 suggested titles
- exactly 5 suggested subject lines
- a newsletter body in markdown
- exactly 5 top announcements (the most important stories)
- optional additional info for the editor

Articles marked with a higher source count were reported by more independent
feeds and should be treated as more significant.

Articles:
%s
%s`

// BuildPrompt は生成リクエストからプロンプト本文を組み立てる。
// 記事は観測元フィード数（重要度シグナル）付きで列挙する。
func BuildPrompt(req ComposeRequest) string {
	var articles strings.Builder
	for _, a := range req.Articles {
		articles.WriteString(fmt.Sprintf("- [sources: %d] %s", a.SourceCount, a.Title))
		if a.Summary != "" {
			articles.WriteString(" — ")
			articles.WriteString(a.Summary)
		}
		if a.Link != "" {
			articles.WriteString(" (")
			articles.WriteString(a.Link)
			articles.WriteString(")")
		}
		articles.WriteString("\n")
	}

	userInput := ""
	if req.UserInput != "" {
		userInput = "\nEditor instructions:\n" + req.UserInput + "\n"
	}

	return fmt.Sprintf(composePrompt,
		req.StartDate.Format("2006-01-02"),
		req.EndDate.Format("2006-01-02"),
		articles.String(),
		userInput,
	)
}
