package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/letterman/internal/middleware"
)

// HealthChecker はヘルスチェックのためのDB疎通確認インターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ドメインサービス
	FeedService      FeedServiceInterface
	ArticleIngester  ArticleIngesterInterface
	ArticleRetriever ArticleRetrieverInterface
	Preparer         PreparerInterface
	Generator        GeneratorInterface
	Saver            SaverInterface
	NewsletterReader NewsletterReaderInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → RecoveryMiddleware → SecurityHeadersMiddleware → LoggingMiddleware → RateLimitMiddleware
//
// 運用エンドポイント（/health, /metrics）はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}

	feedHandler := NewFeedHandler(deps.FeedService)
	articleHandler := NewArticleHandler(deps.ArticleIngester, deps.ArticleRetriever)
	newsletterHandler := NewNewsletterHandler(deps.Preparer, deps.Generator, deps.Saver, deps.NewsletterReader)

	// --- 運用エンドポイント ---

	r.Get("/health", newHealthHandler(deps.HealthChecker))

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- APIルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// フィード管理
		r.Route("/api/feeds", func(r chi.Router) {
			// POST /api/feeds - フィード登録（登録専用レート制限を追加）
			r.With(deps.RateLimiter.FeedRegistrationMiddleware()).Post("/", feedHandler.RegisterFeed)
			r.Get("/", feedHandler.ListFeeds)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", feedHandler.GetFeed)
				r.Delete("/", feedHandler.DeleteFeed)
			})
		})

		// 記事管理
		r.Route("/api/articles", func(r chi.Router) {
			r.Post("/import", articleHandler.ImportArticles)
			r.Get("/", articleHandler.ListArticles)
		})

		// ニュースレター生成・保存
		r.Route("/api/newsletters", func(r chi.Router) {
			r.Post("/prepare", newsletterHandler.Prepare)
			r.Post("/generate-stream", newsletterHandler.GenerateStream)
			r.Post("/", newsletterHandler.SaveNewsletter)
			r.Get("/", newsletterHandler.ListNewsletters)
			r.Get("/{id}", newsletterHandler.GetNewsletter)
		})
	})

	return r
}

// newHealthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unhealthy"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}
