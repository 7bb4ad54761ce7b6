// Package ingest はフィード横断の記事重複排除と取り込みを提供する。
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/letterman/internal/author"
	"github.com/hitoshi/letterman/internal/model"
	"github.com/hitoshi/letterman/internal/repository"
	"github.com/hitoshi/letterman/internal/security"
)

// Outcome は1件の取り込み結果の分類。
type Outcome int

const (
	// OutcomeCreated は新規記事として作成されたことを示す。
	OutcomeCreated Outcome = iota
	// OutcomeMerged は既存記事の観測元フィード集合に追加されたことを示す。
	OutcomeMerged
	// OutcomeUnchanged は同一(guid, feedID)の再観測で変更がなかったことを示す。
	OutcomeUnchanged
)

// Engine は記事の重複排除と取り込みを行う。
// guidをフィード境界をまたぐ重複排除キーとし、同一guidの記事は
// 観測元フィード集合のマージのみを行い、コンテンツは初出時の値を保持する。
type Engine struct {
	articleRepo repository.ArticleRepository
	sanitizer   security.ContentSanitizerService
}

// NewEngine はEngineの新しいインスタンスを生成する。
func NewEngine(
	articleRepo repository.ArticleRepository,
	sanitizer security.ContentSanitizerService,
) *Engine {
	return &Engine{
		articleRepo: articleRepo,
		sanitizer:   sanitizer,
	}
}

// IngestOne は1件の候補を取り込み、結果の記事と分類を返す。
// 同一guidの記事が存在しない場合は新規作成し、存在する場合は
// 観測元フィード集合への追加のみを行う（コンテンツは上書きしない）。
// 作成時の一意制約競合は呼び出し元へ伝播せず、マージへフォールバックして解決する。
func (e *Engine) IngestOne(ctx context.Context, cand model.ArticleCandidate) (*model.Article, Outcome, error) {
	existing, err := e.articleRepo.FindByGuid(ctx, cand.Guid)
	if err != nil {
		return nil, OutcomeUnchanged, err
	}

	if existing == nil {
		created, err := e.createArticle(ctx, cand)
		if err == nil {
			return created, OutcomeCreated, nil
		}
		if !errors.Is(err, model.ErrConflict) {
			return nil, OutcomeUnchanged, err
		}
		// 並行する取り込みが同一guidの作成を先行した。マージへフォールバックする。
		slog.Info("記事作成が競合したためマージへフォールバックします",
			slog.String("guid", cand.Guid),
			slog.String("feed_id", cand.FeedID),
		)
	} else if existing.HasSourceFeed(cand.FeedID) {
		// 同一(guid, feedID)の再観測。冪等に既存記事を返す。
		return existing, OutcomeUnchanged, nil
	}

	// ストア側のアトミックなset-addで観測元フィードを追加する。
	// read-modify-writeではないため、並行する追加でも重複要素は生じない。
	merged, err := e.articleRepo.AppendSourceFeed(ctx, cand.Guid, cand.FeedID)
	if err != nil {
		return nil, OutcomeUnchanged, err
	}
	if merged == nil {
		return nil, OutcomeUnchanged, errors.New("マージ対象の記事が見つかりません")
	}
	return merged, OutcomeMerged, nil
}

// IngestBatch は候補列を順に取り込み、集計結果を返す。
// 1件の失敗は後続の処理を妨げない（ロールバックもバッチ単位の原子性もない）。
// 作成時の重複キー競合はスキップとして集計される。
// Created + Skipped + Errors は常に入力件数に一致する。
func (e *Engine) IngestBatch(ctx context.Context, candidates []model.ArticleCandidate) model.BatchResult {
	var result model.BatchResult

	for _, cand := range candidates {
		_, outcome, err := e.IngestOne(ctx, cand)
		if err != nil {
			slog.Error("記事の取り込みに失敗しました",
				slog.String("guid", cand.Guid),
				slog.String("feed_id", cand.FeedID),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}
		if outcome == OutcomeCreated {
			result.Created++
		} else {
			result.Skipped++
		}
	}

	slog.Info("記事取り込みバッチ完了",
		slog.Int("created", result.Created),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", result.Errors),
	)

	return result
}

// createArticle は候補から新規記事を作成する。
// コンテンツとサマリーはサニタイズし、著者は正規化する。
// 正規化が不在を返した場合は空文字列を保存する。
func (e *Engine) createArticle(ctx context.Context, cand model.ArticleCandidate) (*model.Article, error) {
	authorName, _ := author.Normalize(cand.Author)

	article := &model.Article{
		ID:            uuid.New().String(),
		Guid:          cand.Guid,
		PrimaryFeedID: cand.FeedID,
		SourceFeedIDs: []string{cand.FeedID},
		Title:         cand.Title,
		Link:          cand.Link,
		Content:       e.sanitizer.Sanitize(cand.Content),
		Summary:       e.sanitizer.Sanitize(cand.Summary),
		PubDate:       cand.PubDate,
		Author:        authorName,
		Categories:    dedupeStrings(cand.Categories),
		ImageURL:      cand.ImageURL,
		CreatedAt:     time.Now(),
	}

	if err := e.articleRepo.Create(ctx, article); err != nil {
		return nil, err
	}
	return article, nil
}

// dedupeStrings は初出順を保持しつつ重複要素を除去する。
func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
