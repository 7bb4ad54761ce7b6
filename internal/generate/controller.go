package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/letterman/internal/ai"
	"github.com/hitoshi/letterman/internal/metrics"
	"github.com/hitoshi/letterman/internal/model"
)

// State はストリーミング生成セッションの状態を表す。
type State int

const (
	// StateIdle は生成開始前の初期状態。
	StateIdle State = iota
	// StatePreparing は準備ステップと記事取得を実行中の状態。
	StatePreparing
	// StateStreaming はドラフトスナップショットを受信中の状態。
	StateStreaming
	// StateComplete は最終ドラフトを受信して正常終了した状態。
	StateComplete
	// StateFailed はエラーまたはキャンセルにより終了した状態。
	StateFailed
)

// String はstateの文字列表現を返す。
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultProgressTimeout はスナップショット間の最大待ち時間のデフォルト値。
const DefaultProgressTimeout = 60 * time.Second

// PrepareRunner は生成前の準備ステップを実行するインターフェース。
type PrepareRunner interface {
	Prepare(ctx context.Context, req model.GenerationRequest) (model.PrepareResult, error)
}

// Controller はストリーミング生成セッションの生成と多重起動の抑止を担う。
// 同一の生成条件に対するセッションは同時に1つしか存在できない。
// セッションが終端状態に達するとラッチは解放され、新しい試行が可能になる。
type Controller struct {
	preparer        PrepareRunner
	retriever       ArticleRetriever
	composer        ai.Composer
	progressTimeout time.Duration
	retrieveLimit   int
	collector       metrics.MetricsCollector

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// SetCollector はメトリクス収集の実装を設定する。nilの場合は記録しない。
func (c *Controller) SetCollector(m metrics.MetricsCollector) {
	c.collector = m
}

// NewController はControllerの新しいインスタンスを生成する。
// progressTimeoutが0以下の場合はDefaultProgressTimeoutを使用する。
func NewController(
	preparer PrepareRunner,
	retriever ArticleRetriever,
	composer ai.Composer,
	progressTimeout time.Duration,
	retrieveLimit int,
) *Controller {
	if progressTimeout <= 0 {
		progressTimeout = DefaultProgressTimeout
	}
	return &Controller{
		preparer:        preparer,
		retriever:       retriever,
		composer:        composer,
		progressTimeout: progressTimeout,
		retrieveLimit:   retrieveLimit,
		inFlight:        make(map[string]struct{}),
	}
}

// requestKey は生成条件からラッチのキーを導出する。
func requestKey(req model.GenerationRequest) string {
	return fmt.Sprintf("%v|%d|%d", req.FeedIDs, req.StartDate.Unix(), req.EndDate.Unix())
}

// Start は検証済みのリクエストに対して生成セッションを開始する。
// リクエストが不正な場合、または同一条件のセッションが進行中の場合はエラーを返す。
// 返されたSessionのUpdatesチャネルで状態遷移とドラフトの進捗を観測できる。
func (c *Controller) Start(ctx context.Context, req model.GenerationRequest) (*Session, error) {
	if apiErr := req.Validate(); apiErr != nil {
		return nil, apiErr
	}

	key := requestKey(req)

	c.mu.Lock()
	if _, exists := c.inFlight[key]; exists {
		c.mu.Unlock()
		return nil, model.NewGenerationInFlightError()
	}
	c.inFlight[key] = struct{}{}
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)

	s := &Session{
		req:             req,
		preparer:        c.preparer,
		retriever:       c.retriever,
		composer:        c.composer,
		progressTimeout: c.progressTimeout,
		retrieveLimit:   c.retrieveLimit,
		collector:       c.collector,
		startedAt:       time.Now(),
		cancel:          cancel,
		state:           StateIdle,
		updates:         make(chan Snapshot, 16),
		done:            make(chan struct{}),
		release: func() {
			c.mu.Lock()
			delete(c.inFlight, key)
			c.mu.Unlock()
		},
	}

	go s.run(ctx)

	return s, nil
}

// Snapshot はセッションのある時点の観測結果を表す。
// Draftは呼び出し側が保持しても安全なコピーである。
type Snapshot struct {
	State State
	Draft model.NewsletterDraft
	Err   error
}

// Session は1回のストリーミング生成の実行単位。
// 状態はIdle→Preparing→Streaming→Complete/Failedの順にのみ遷移し、
// 終端状態に達した後は変化しない。
type Session struct {
	req             model.GenerationRequest
	preparer        PrepareRunner
	retriever       ArticleRetriever
	composer        ai.Composer
	progressTimeout time.Duration
	retrieveLimit   int
	collector       metrics.MetricsCollector
	startedAt       time.Time
	cancel          context.CancelFunc
	release         func()

	mu    sync.Mutex
	state State
	draft model.NewsletterDraft
	err   error

	updates chan Snapshot
	done    chan struct{}
}

// Updates はスナップショットの配信チャネルを返す。
// セッションが終端状態に達するとチャネルはクローズされる。
// 受信が追いつかない場合は中間スナップショットが破棄されることがあるが、
// 終端スナップショットは必ず配信される。
func (s *Session) Updates() <-chan Snapshot {
	return s.updates
}

// Snapshot は現在の状態とドラフトのコピーを返す。
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{State: s.state, Draft: s.draft, Err: s.err}
}

// Final は正常終了した場合に最終ドラフトを返す。
// 終端状態に達していない場合、または失敗した場合はfalseを返す。
func (s *Session) Final() (model.NewsletterDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateComplete {
		return model.NewsletterDraft{}, false
	}
	return s.draft, true
}

// Done はセッションの終了を通知するチャネルを返す。
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Cancel はセッションを中断する。すでに終端状態の場合は何もしない。
// 中断された生成の部分的なドラフトが保存されることはない。
func (s *Session) Cancel() {
	s.cancel()
}

func (s *Session) run(ctx context.Context) {
	// ラッチの解放はDoneの通知より先に完了していなければならない。
	defer func() {
		s.release()
		close(s.done)
	}()
	defer s.cancel()

	s.transition(StatePreparing)

	if s.preparer != nil {
		// 準備は進捗情報のためのベストエフォート。失敗しても生成は続行する。
		if _, err := s.preparer.Prepare(ctx, s.req); err != nil {
			slog.Warn("生成前の準備ステップに失敗しました", slog.String("error", err.Error()))
		}
	}

	articles, err := s.retriever.Retrieve(ctx, s.req.FeedIDs, s.req.StartDate, s.req.EndDate, s.retrieveLimit)
	if err != nil {
		s.fail(err)
		return
	}

	stream, err := s.composer.Stream(ctx, ai.ComposeRequest{
		Articles:  articles,
		StartDate: s.req.StartDate,
		EndDate:   s.req.EndDate,
		UserInput: s.req.UserInput,
	})
	if err != nil {
		s.fail(err)
		return
	}
	// Closeはブロック中のRecvを解除する。タイムアウト経路でのgoroutineリークを防ぐ。
	defer stream.Close()

	s.transition(StateStreaming)

	type recvResult struct {
		draft *model.NewsletterDraft
		done  bool
		err   error
	}

	timer := time.NewTimer(s.progressTimeout)
	defer timer.Stop()

	for {
		recvCh := make(chan recvResult, 1)
		go func() {
			draft, done, err := stream.Recv()
			recvCh <- recvResult{draft: draft, done: done, err: err}
		}()

		select {
		case <-ctx.Done():
			s.fail(model.NewGenerationCancelledError())
			return
		case <-timer.C:
			s.fail(model.NewTimeoutError())
			return
		case r := <-recvCh:
			if r.err != nil {
				s.fail(r.err)
				return
			}
			if r.draft != nil {
				s.applySnapshot(r.draft)
			}
			if r.done {
				s.complete()
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.progressTimeout)
		}
	}
}

// applySnapshot は受信したスナップショットを単調に反映する。
// 一度埋まったフィールドが後続のスナップショットで空に戻ることはなく、
// リストは要素数が減らない方向にのみ更新される。
func (s *Session) applySnapshot(incoming *model.NewsletterDraft) {
	s.mu.Lock()
	mergeDraft(&s.draft, incoming)
	snap := Snapshot{State: s.state, Draft: s.draft}
	s.mu.Unlock()

	s.notify(snap, false)
}

func mergeDraft(dst, src *model.NewsletterDraft) {
	if len(src.SuggestedTitles) >= len(dst.SuggestedTitles) && len(src.SuggestedTitles) > 0 {
		dst.SuggestedTitles = src.SuggestedTitles
	}
	if len(src.SuggestedSubjectLines) >= len(dst.SuggestedSubjectLines) && len(src.SuggestedSubjectLines) > 0 {
		dst.SuggestedSubjectLines = src.SuggestedSubjectLines
	}
	if len(src.TopAnnouncements) >= len(dst.TopAnnouncements) && len(src.TopAnnouncements) > 0 {
		dst.TopAnnouncements = src.TopAnnouncements
	}
	if len(src.Body) >= len(dst.Body) && src.Body != "" {
		dst.Body = src.Body
	}
	if len(src.AdditionalInfo) >= len(dst.AdditionalInfo) && src.AdditionalInfo != "" {
		dst.AdditionalInfo = src.AdditionalInfo
	}
}

func (s *Session) transition(next State) {
	s.mu.Lock()
	s.state = next
	snap := Snapshot{State: s.state, Draft: s.draft}
	s.mu.Unlock()

	s.notify(snap, false)
}

func (s *Session) complete() {
	s.mu.Lock()
	s.state = StateComplete
	snap := Snapshot{State: s.state, Draft: s.draft}
	s.mu.Unlock()

	if s.collector != nil {
		s.collector.RecordGenerationOutcome("complete")
		s.collector.RecordGenerationDuration(time.Since(s.startedAt))
	}
	slog.Info("ニュースレター生成が完了しました")
	s.notify(snap, true)
}

// generationOutcome は失敗原因をメトリクスのラベル値に変換する。
func generationOutcome(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrCodeGenerationCancelled:
			return "cancelled"
		case model.ErrCodeTimeout:
			return "timeout"
		}
	}
	return "failed"
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.state == StateComplete || s.state == StateFailed {
		s.mu.Unlock()
		return
	}
	s.state = StateFailed
	s.err = err
	snap := Snapshot{State: s.state, Draft: s.draft, Err: err}
	s.mu.Unlock()

	if s.collector != nil {
		s.collector.RecordGenerationOutcome(generationOutcome(err))
		s.collector.RecordGenerationDuration(time.Since(s.startedAt))
	}
	slog.Error("ニュースレター生成が失敗しました", slog.String("error", err.Error()))
	s.notify(snap, true)
}

// notify はスナップショットをUpdatesチャネルへ送信する。
// 中間スナップショットはバッファ満杯時に破棄されるが、終端スナップショットは
// バッファの先頭を捨ててでも必ず配信し、その後チャネルをクローズする。
func (s *Session) notify(snap Snapshot, terminal bool) {
	if terminal {
		for {
			select {
			case s.updates <- snap:
				close(s.updates)
				return
			default:
				select {
				case <-s.updates:
				default:
				}
			}
		}
	}

	select {
	case s.updates <- snap:
	default:
	}
}
