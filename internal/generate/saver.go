package generate

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/letterman/internal/model"
	"github.com/hitoshi/letterman/internal/repository"
)

// Saver は完成したドラフトの形状を検証し、ニュースレターとして永続化する。
type Saver struct {
	newsletterRepo repository.NewsletterRepository
}

// NewSaver はSaverの新しいインスタンスを生成する。
func NewSaver(newsletterRepo repository.NewsletterRepository) *Saver {
	return &Saver{newsletterRepo: newsletterRepo}
}

// ValidateDraft は保存前の厳格な形状検証を行う。
// タイトル案、件名案、トップ記事の3リストはそれぞれ正確に5件でなければならない。
// 不足や超過を丸めることはせず、不正な形状はそのままエラーとして報告する。
func ValidateDraft(draft *model.NewsletterDraft) *model.APIError {
	if got := len(draft.SuggestedTitles); got != model.RequiredListLength {
		return model.NewValidationError("suggested_titles", got, model.RequiredListLength)
	}
	if got := len(draft.SuggestedSubjectLines); got != model.RequiredListLength {
		return model.NewValidationError("suggested_subject_lines", got, model.RequiredListLength)
	}
	if got := len(draft.TopAnnouncements); got != model.RequiredListLength {
		return model.NewValidationError("top_announcements", got, model.RequiredListLength)
	}
	return nil
}

// Save はドラフトを検証し、生成条件とともにニュースレターとして保存する。
// 検証に失敗した場合は何も永続化せずエラーを返す。
func (s *Saver) Save(
	ctx context.Context,
	draft model.NewsletterDraft,
	req model.GenerationRequest,
) (*model.Newsletter, error) {
	if apiErr := ValidateDraft(&draft); apiErr != nil {
		return nil, apiErr
	}

	newsletter := &model.Newsletter{
		ID:                    uuid.New().String(),
		SuggestedTitles:       draft.SuggestedTitles,
		SuggestedSubjectLines: draft.SuggestedSubjectLines,
		Body:                  draft.Body,
		TopAnnouncements:      draft.TopAnnouncements,
		AdditionalInfo:        draft.AdditionalInfo,
		FeedIDs:               req.FeedIDs,
		StartDate:             req.StartDate,
		EndDate:               req.EndDate,
		UserInput:             req.UserInput,
		CreatedAt:             time.Now(),
	}

	if err := s.newsletterRepo.Create(ctx, newsletter); err != nil {
		return nil, err
	}

	slog.Info("ニュースレターを保存しました", slog.String("newsletter_id", newsletter.ID))

	return newsletter, nil
}
