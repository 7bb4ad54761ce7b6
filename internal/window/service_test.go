package window

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/hitoshi/letterman/internal/model"
)

// mockArticleRepo は期間検索の述語をメモリ上で再現するモック。
type mockArticleRepo struct {
	articles  []*model.Article
	err       error
	lastLimit int
}

func (m *mockArticleRepo) FindByGuid(_ context.Context, guid string) (*model.Article, error) {
	return nil, nil
}

func (m *mockArticleRepo) Create(_ context.Context, article *model.Article) error {
	return nil
}

func (m *mockArticleRepo) AppendSourceFeed(_ context.Context, guid, feedID string) (*model.Article, error) {
	return nil, nil
}

func (m *mockArticleRepo) QueryByFeedsAndWindow(_ context.Context, feedIDs []string, start, end time.Time, limit int) ([]*model.Article, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.lastLimit = limit

	inSet := func(id string) bool {
		for _, f := range feedIDs {
			if f == id {
				return true
			}
		}
		return false
	}

	var out []*model.Article
	for _, a := range m.articles {
		overlap := inSet(a.PrimaryFeedID)
		for _, src := range a.SourceFeedIDs {
			if inSet(src) {
				overlap = true
			}
		}
		if !overlap {
			continue
		}
		if a.PubDate.Before(start) || a.PubDate.After(end) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PubDate.After(out[j].PubDate)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func article(guid, primary string, sources []string, pubDate time.Time) *model.Article {
	return &model.Article{
		ID:            "id-" + guid,
		Guid:          guid,
		PrimaryFeedID: primary,
		SourceFeedIDs: sources,
		Title:         "title-" + guid,
		PubDate:       pubDate,
	}
}

func TestRetrieve_期間とフィードの選択述語(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo := &mockArticleRepo{
		articles: []*model.Article{
			article("in-primary", "f1", []string{"f1"}, base),
			article("in-source", "f9", []string{"f9", "f1"}, base.Add(time.Hour)),
			article("no-overlap", "f9", []string{"f9"}, base),
			article("before-window", "f1", []string{"f1"}, base.Add(-48*time.Hour)),
			article("after-window", "f1", []string{"f1"}, base.Add(48*time.Hour)),
		},
	}
	svc := NewService(repo)

	got, err := svc.Retrieve(context.Background(), []string{"f1"}, base.Add(-24*time.Hour), base.Add(24*time.Hour), 0)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(got), got)
	}
	// pub_date降順
	if got[0].Guid != "in-source" || got[1].Guid != "in-primary" {
		t.Errorf("順序が不正: got[0]=%s got[1]=%s", got[0].Guid, got[1].Guid)
	}
}

func TestRetrieve_境界は両端を含む(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	repo := &mockArticleRepo{
		articles: []*model.Article{
			article("at-start", "f1", []string{"f1"}, start),
			article("at-end", "f1", []string{"f1"}, end),
		},
	}
	svc := NewService(repo)

	got, err := svc.Retrieve(context.Background(), []string{"f1"}, start, end, 0)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2（開始日・終了日ちょうどの記事を含む）", len(got))
	}
}

func TestRetrieve_SourceCountは毎回計算される(t *testing.T) {
	base := time.Now()
	a := article("abc", "f1", []string{"f1", "f2"}, base)
	repo := &mockArticleRepo{articles: []*model.Article{a}}
	svc := NewService(repo)

	got, err := svc.Retrieve(context.Background(), []string{"f1"}, base.Add(-time.Hour), base.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got[0].SourceCount != 2 {
		t.Errorf("SourceCount = %d, want 2", got[0].SourceCount)
	}

	// 観測元フィードが増えた後の呼び出しでは新しい値が反映される
	a.SourceFeedIDs = append(a.SourceFeedIDs, "f3")
	got, err = svc.Retrieve(context.Background(), []string{"f1"}, base.Add(-time.Hour), base.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got[0].SourceCount != 3 {
		t.Errorf("SourceCount = %d, want 3（再計算されること）", got[0].SourceCount)
	}
}

func TestRetrieve_デフォルト上限(t *testing.T) {
	repo := &mockArticleRepo{}
	svc := NewService(repo)

	if _, err := svc.Retrieve(context.Background(), []string{"f1"}, time.Now(), time.Now(), 0); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if repo.lastLimit != DefaultLimit {
		t.Errorf("limit = %d, want %d", repo.lastLimit, DefaultLimit)
	}
}

func TestRetrieve_リポジトリエラーの伝播(t *testing.T) {
	repo := &mockArticleRepo{err: errors.New("接続エラー")}
	svc := NewService(repo)

	if _, err := svc.Retrieve(context.Background(), []string{"f1"}, time.Now(), time.Now(), 0); err == nil {
		t.Error("エラーが伝播していません")
	}
}
