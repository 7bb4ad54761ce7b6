// Package config は環境変数ベースの設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定。
// 起動時に1回読み込み、以降はイミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Composer（ニュースレター生成バックエンド）
	ComposerEndpoint string
	ComposerAPIKey   string
	ComposerTimeout  time.Duration

	// Generation
	GenerationProgressTimeout time.Duration
	GenerationArticleLimit    int
	PrepareMaxConcurrent      int

	// Fetch
	FetchTimeout       time.Duration
	FetchMaxSize       int64
	FetchMaxConcurrent int
	FetchInterval      time.Duration

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitFeedReg int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを組み立てる。
// 必須変数が1つでも欠けている場合は、欠けている変数名をまとめてエラーにする。
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		ComposerEndpoint: os.Getenv("COMPOSER_ENDPOINT"),
		ComposerAPIKey:   os.Getenv("COMPOSER_API_KEY"),
	}

	var missing []string
	for _, req := range []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"COMPOSER_ENDPOINT", cfg.ComposerEndpoint},
		{"COMPOSER_API_KEY", cfg.ComposerAPIKey},
	} {
		if req.value == "" {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.ComposerTimeout = envDuration("COMPOSER_TIMEOUT", 30*time.Second)
	cfg.GenerationProgressTimeout = envDuration("GENERATION_PROGRESS_TIMEOUT", 60*time.Second)
	cfg.GenerationArticleLimit = envInt("GENERATION_ARTICLE_LIMIT", 100)
	cfg.PrepareMaxConcurrent = envInt("PREPARE_MAX_CONCURRENT", 5)
	cfg.FetchTimeout = envDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = envInt64("FETCH_MAX_SIZE", 5*1024*1024)
	cfg.FetchMaxConcurrent = envInt("FETCH_MAX_CONCURRENT", 10)
	cfg.FetchInterval = envDuration("FETCH_INTERVAL", 5*time.Minute)
	cfg.RateLimitGeneral = envInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitFeedReg = envInt("RATE_LIMIT_FEED_REG", 10)
	cfg.ServerPort = envString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = envString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// 以下のヘルパーは未設定・パース不能な値をデフォルトに落とす。
// 起動を止めるほどではない設定ミスは既定値で動かす方針。

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
