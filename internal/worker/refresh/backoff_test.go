package refresh

import (
	"testing"
	"time"

	"github.com/hitoshi/letterman/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       StatusClass
	}{
		{"200はOK", 200, StatusOK},
		{"304はNotModified", 304, StatusNotModified},
		{"404は停止", 404, StatusStop},
		{"410は停止", 410, StatusStop},
		{"401は停止", 401, StatusStop},
		{"403は停止", 403, StatusStop},
		{"429はバックオフ", 429, StatusBackoff},
		{"500はバックオフ", 500, StatusBackoff},
		{"503はバックオフ", 503, StatusBackoff},
		{"302は未知", 302, StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.statusCode); got != tt.want {
				t.Errorf("Classify(%d) = %v, want %v", tt.statusCode, got, tt.want)
			}
		})
	}
}

func TestBackoff_指数的に増加し上限で頭打ちになる(t *testing.T) {
	tests := []struct {
		consecutiveErrors int
		want              time.Duration
	}{
		{0, 30 * time.Minute},
		{1, 1 * time.Hour},
		{2, 2 * time.Hour},
		{3, 4 * time.Hour},
		{4, 8 * time.Hour},
		{5, 12 * time.Hour},
		{10, 12 * time.Hour},
	}

	for _, tt := range tests {
		if got := Backoff(tt.consecutiveErrors); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.consecutiveErrors, got, tt.want)
		}
	}
}

func TestMarkFailure_連続エラー回数に応じて遅延が伸びる(t *testing.T) {
	feed := &model.Feed{FetchStatus: model.FetchStatusActive}

	MarkFailure(feed, "server error")
	if feed.ConsecutiveErrors != 1 {
		t.Fatalf("ConsecutiveErrors = %d, want 1", feed.ConsecutiveErrors)
	}
	first := feed.NextFetchAt

	MarkFailure(feed, "server error")
	if feed.ConsecutiveErrors != 2 {
		t.Fatalf("ConsecutiveErrors = %d, want 2", feed.ConsecutiveErrors)
	}
	if !feed.NextFetchAt.After(first) {
		t.Error("2回目の失敗ではより遅いnext_fetch_atが設定されるべき")
	}
	if feed.FetchStatus != model.FetchStatusActive {
		t.Errorf("バックオフでフィードは停止しない: %q", feed.FetchStatus)
	}
}

func TestMarkSuccess_エラー状態がリセットされる(t *testing.T) {
	feed := &model.Feed{
		FetchStatus:       model.FetchStatusActive,
		ConsecutiveErrors: 3,
		ErrorMessage:      "過去のエラー",
	}

	MarkSuccess(feed, 60)

	if feed.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", feed.ConsecutiveErrors)
	}
	if feed.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", feed.ErrorMessage)
	}
	wantMin := time.Now().Add(59 * time.Minute)
	if !feed.NextFetchAt.After(wantMin) {
		t.Errorf("next_fetch_atが約60分後に設定されるべき: %v", feed.NextFetchAt)
	}
}

func TestMarkParseFailure_閾値で停止する(t *testing.T) {
	feed := &model.Feed{FetchStatus: model.FetchStatusActive}

	for i := 0; i < parseFailureThreshold-1; i++ {
		MarkParseFailure(feed, "invalid xml")
	}
	if feed.FetchStatus != model.FetchStatusActive {
		t.Fatalf("閾値未満では停止しない: %q", feed.FetchStatus)
	}

	MarkParseFailure(feed, "invalid xml")
	if feed.FetchStatus != model.FetchStatusStopped {
		t.Errorf("%d回目のパース失敗で停止すべき: %q", parseFailureThreshold, feed.FetchStatus)
	}
}

func TestMarkStopped_ステータスと理由が設定される(t *testing.T) {
	feed := &model.Feed{FetchStatus: model.FetchStatusActive}

	MarkStopped(feed, "404 Not Found")

	if feed.FetchStatus != model.FetchStatusStopped {
		t.Errorf("FetchStatus = %q, want stopped", feed.FetchStatus)
	}
	if feed.ErrorMessage != "404 Not Found" {
		t.Errorf("ErrorMessage = %q", feed.ErrorMessage)
	}
}
