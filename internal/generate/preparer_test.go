package generate

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/letterman/internal/model"
)

// mockFeedRepo はFeedRepositoryのテスト用モック。
type mockFeedRepo struct {
	feeds []*model.Feed
	err   error
}

func (m *mockFeedRepo) FindByID(ctx context.Context, id string) (*model.Feed, error) {
	for _, f := range m.feeds {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, nil
}

func (m *mockFeedRepo) FindByFeedURL(ctx context.Context, feedURL string) (*model.Feed, error) {
	return nil, nil
}

func (m *mockFeedRepo) ListByIDs(ctx context.Context, ids []string) ([]*model.Feed, error) {
	if m.err != nil {
		return nil, m.err
	}
	var result []*model.Feed
	for _, id := range ids {
		for _, f := range m.feeds {
			if f.ID == id {
				result = append(result, f)
			}
		}
	}
	return result, nil
}

func (m *mockFeedRepo) List(ctx context.Context) ([]*model.Feed, error) {
	return m.feeds, nil
}

func (m *mockFeedRepo) Create(ctx context.Context, feed *model.Feed) error { return nil }
func (m *mockFeedRepo) Delete(ctx context.Context, id string) error        { return nil }

func (m *mockFeedRepo) ListDueForFetch(ctx context.Context) ([]*model.Feed, error) {
	return nil, nil
}

func (m *mockFeedRepo) UpdateFetchState(ctx context.Context, feed *model.Feed) error { return nil }

// mockRefresher は再取得したフィードIDを記録するモック。
type mockRefresher struct {
	mu        sync.Mutex
	refreshed []string
	failIDs   map[string]bool
}

func (m *mockRefresher) Refresh(ctx context.Context, feed *model.Feed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshed = append(m.refreshed, feed.ID)
	if m.failIDs[feed.ID] {
		return errors.New("fetch failed")
	}
	return nil
}

func (m *mockRefresher) refreshedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.refreshed))
	copy(ids, m.refreshed)
	sort.Strings(ids)
	return ids
}

// mockRetriever は固定の記事リストを返すモック。
type mockRetriever struct {
	articles  []model.ScoredArticle
	err       error
	lastLimit int
}

func (m *mockRetriever) Retrieve(ctx context.Context, feedIDs []string, start, end time.Time, limit int) ([]model.ScoredArticle, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.articles, nil
}

func validRequest() model.GenerationRequest {
	return model.GenerationRequest{
		FeedIDs:   []string{"feed-1", "feed-2", "feed-3"},
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 1, 7, 23, 59, 59, 0, time.UTC),
	}
}

func TestPrepare_再取得が必要なフィードのみ再取得される(t *testing.T) {
	now := time.Now()
	feedRepo := &mockFeedRepo{
		feeds: []*model.Feed{
			{ID: "feed-1", FetchStatus: model.FetchStatusActive, NextFetchAt: now.Add(-time.Hour)},
			{ID: "feed-2", FetchStatus: model.FetchStatusActive, NextFetchAt: now.Add(time.Hour)},
			{ID: "feed-3", FetchStatus: model.FetchStatusActive},
		},
	}
	refresher := &mockRefresher{}
	retriever := &mockRetriever{
		articles: []model.ScoredArticle{
			{Article: model.Article{ID: "a1"}, SourceCount: 1},
			{Article: model.Article{ID: "a2"}, SourceCount: 2},
		},
	}

	preparer := NewPreparer(feedRepo, refresher, retriever, 2)

	result, err := preparer.Prepare(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if result.FeedsToRefresh != 2 {
		t.Errorf("FeedsToRefresh = %d, want 2", result.FeedsToRefresh)
	}
	if result.ArticlesFound != 2 {
		t.Errorf("ArticlesFound = %d, want 2", result.ArticlesFound)
	}

	got := refresher.refreshedIDs()
	want := []string{"feed-1", "feed-3"}
	if len(got) != len(want) {
		t.Fatalf("再取得されたフィード = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("再取得されたフィード = %v, want %v", got, want)
		}
	}
}

func TestPrepare_個別フィードの再取得失敗は許容される(t *testing.T) {
	now := time.Now()
	feedRepo := &mockFeedRepo{
		feeds: []*model.Feed{
			{ID: "feed-1", FetchStatus: model.FetchStatusActive, NextFetchAt: now.Add(-time.Hour)},
			{ID: "feed-2", FetchStatus: model.FetchStatusActive, NextFetchAt: now.Add(-time.Hour)},
		},
	}
	refresher := &mockRefresher{failIDs: map[string]bool{"feed-1": true}}
	retriever := &mockRetriever{}

	preparer := NewPreparer(feedRepo, refresher, retriever, 0)

	result, err := preparer.Prepare(context.Background(), model.GenerationRequest{
		FeedIDs:   []string{"feed-1", "feed-2"},
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("再取得失敗が準備全体を失敗させた: %v", err)
	}
	if result.FeedsToRefresh != 2 {
		t.Errorf("FeedsToRefresh = %d, want 2", result.FeedsToRefresh)
	}
}

func TestPrepare_フィードID未指定は検証エラー(t *testing.T) {
	preparer := NewPreparer(&mockFeedRepo{}, &mockRefresher{}, &mockRetriever{}, 0)

	_, err := preparer.Prepare(context.Background(), model.GenerationRequest{
		StartDate: time.Now().Add(-time.Hour),
		EndDate:   time.Now(),
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが返されるべき: %v", err)
	}
	if apiErr.Code != model.ErrCodeMissingFeedIDs {
		t.Errorf("Code = %s, want %s", apiErr.Code, model.ErrCodeMissingFeedIDs)
	}
}

func TestPrepare_記事取得エラーは伝播する(t *testing.T) {
	retrieveErr := errors.New("db error")
	preparer := NewPreparer(&mockFeedRepo{}, &mockRefresher{}, &mockRetriever{err: retrieveErr}, 0)

	_, err := preparer.Prepare(context.Background(), validRequest())
	if !errors.Is(err, retrieveErr) {
		t.Errorf("取得エラーが伝播していない: %v", err)
	}
}
