package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/letterman/internal/model"
)

// PostgresNewsletterRepo はPostgreSQLを使用したニュースレターリポジトリ。
type PostgresNewsletterRepo struct {
	db *sql.DB
}

// NewPostgresNewsletterRepo はPostgresNewsletterRepoを生成する。
func NewPostgresNewsletterRepo(db *sql.DB) *PostgresNewsletterRepo {
	return &PostgresNewsletterRepo{db: db}
}

const newsletterColumns = `id, suggested_titles, suggested_subject_lines, body,
	        top_announcements, additional_info, feed_ids, start_date, end_date,
	        user_input, created_at`

// scanNewsletter は1行を*model.Newsletterへスキャンする。
func scanNewsletter(row interface{ Scan(...any) error }) (*model.Newsletter, error) {
	n := &model.Newsletter{}
	var additionalInfo, userInput sql.NullString
	var titles, subjects, announcements, feedIDs pq.StringArray

	err := row.Scan(
		&n.ID, &titles, &subjects, &n.Body,
		&announcements, &additionalInfo, &feedIDs, &n.StartDate, &n.EndDate,
		&userInput, &n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.SuggestedTitles = []string(titles)
	n.SuggestedSubjectLines = []string(subjects)
	n.TopAnnouncements = []string(announcements)
	n.FeedIDs = []string(feedIDs)
	n.AdditionalInfo = additionalInfo.String
	n.UserInput = userInput.String
	return n, nil
}

// Create はニュースレターを保存する。
func (r *PostgresNewsletterRepo) Create(ctx context.Context, n *model.Newsletter) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO newsletters (
			id, suggested_titles, suggested_subject_lines, body,
			top_announcements, additional_info, feed_ids, start_date, end_date,
			user_input, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, pq.Array(n.SuggestedTitles), pq.Array(n.SuggestedSubjectLines),
		n.Body, pq.Array(n.TopAnnouncements), nullString(n.AdditionalInfo),
		pq.Array(n.FeedIDs), n.StartDate, n.EndDate,
		nullString(n.UserInput), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ニュースレターの保存に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのニュースレターを取得する。見つからない場合はnilを返す。
func (r *PostgresNewsletterRepo) FindByID(ctx context.Context, id string) (*model.Newsletter, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+newsletterColumns+` FROM newsletters WHERE id = $1`, id)
	n, err := scanNewsletter(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ニュースレターの取得に失敗しました: %w", err)
	}
	return n, nil
}

// List は保存済みニュースレターを作成日時降順で返す。
func (r *PostgresNewsletterRepo) List(ctx context.Context, limit int) ([]*model.Newsletter, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+newsletterColumns+`
		 FROM newsletters ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("ニュースレター一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var newsletters []*model.Newsletter
	for rows.Next() {
		n, err := scanNewsletter(rows)
		if err != nil {
			return nil, fmt.Errorf("ニュースレターのスキャンに失敗しました: %w", err)
		}
		newsletters = append(newsletters, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ニュースレターの読み取りに失敗しました: %w", err)
	}
	return newsletters, nil
}
