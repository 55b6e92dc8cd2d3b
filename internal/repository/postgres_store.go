package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"FinSense/internal/domain/models"
	domrepo "FinSense/internal/domain/repository"
	"FinSense/pkg/logger"
	"FinSense/pkg/postgres"

	"github.com/jmoiron/sqlx"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS predictions (
		id               TEXT PRIMARY KEY,
		symbol           TEXT NOT NULL,
		timeframe        TEXT NOT NULL,
		sentiment        TEXT NOT NULL,
		confidence       DOUBLE PRECISION NOT NULL,
		price            DOUBLE PRECISION NOT NULL,
		model_version    TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL,
		verified         BOOLEAN NOT NULL DEFAULT FALSE,
		verified_at      TIMESTAMPTZ,
		actual_sentiment TEXT NOT NULL DEFAULT '',
		verify_price     DOUBLE PRECISION NOT NULL DEFAULT 0,
		change_pct       DOUBLE PRECISION NOT NULL DEFAULT 0,
		correct          BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS predictions_symbol_verified_idx ON predictions (symbol, verified, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS predictions_verified_at_idx ON predictions (verified_at) WHERE verified`,
	`CREATE TABLE IF NOT EXISTS model_versions (
		version       TEXT PRIMARY KEY,
		training_date TIMESTAMPTZ NOT NULL,
		test_accuracy DOUBLE PRECISION NOT NULL,
		cv_mean       DOUBLE PRECISION NOT NULL,
		metadata      JSONB NOT NULL
	)`,
}

const predictionColumns = `id, symbol, timeframe, sentiment, confidence, price, model_version, created_at,
	verified, verified_at, actual_sentiment, verify_price, change_pct, correct`

// PostgresStore keeps predictions and model versions in PostgreSQL.
type PostgresStore struct {
	client *postgres.Client
	db     *sqlx.DB
	l      *logger.Logger
}

var (
	_ domrepo.PredictionStore = (*PostgresStore)(nil)
	_ domrepo.ModelRegistry   = (*PostgresStore)(nil)
)

func NewPostgresStore(client *postgres.Client, l *logger.Logger) *PostgresStore {
	if l == nil {
		l = logger.Nop()
	}
	return &PostgresStore{client: client, db: client.DB(), l: l}
}

func (s *PostgresStore) Init(ctx context.Context) error {
	return s.client.Migrate(ctx, postgresSchema)
}

func (s *PostgresStore) CreatePrediction(ctx context.Context, p *models.Prediction) error {
	q := `INSERT INTO predictions (` + predictionColumns + `) VALUES (
		:id, :symbol, :timeframe, :sentiment, :confidence, :price, :model_version, :created_at,
		:verified, :verified_at, :actual_sentiment, :verify_price, :change_pct, :correct)`
	if _, err := s.db.NamedExecContext(ctx, q, p); err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPredictions(ctx context.Context, f models.PredictionFilter) ([]*models.Prediction, error) {
	where, args := predicateBuilder(f, dollar)
	q := `SELECT ` + predictionColumns + ` FROM predictions` + where + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	var out []*models.Prediction
	if err := s.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("select predictions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountPredictions(ctx context.Context, f models.PredictionFilter) (int, error) {
	where, args := predicateBuilder(f, dollar)
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM predictions`+where, args...); err != nil {
		return 0, fmt.Errorf("count predictions: %w", err)
	}
	return n, nil
}

// VerifyPrediction only updates an unverified row; zero affected rows means
// another writer got there first or the id is unknown.
func (s *PostgresStore) VerifyPrediction(ctx context.Context, id string, v models.Verification) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE predictions
		SET verified = TRUE, verified_at = $2, actual_sentiment = $3, verify_price = $4, change_pct = $5, correct = $6
		WHERE id = $1 AND NOT verified`,
		id, v.VerifiedAt.UTC(), string(v.ActualSentiment), v.Price, v.ChangePct, v.Correct)
	if err != nil {
		return fmt.Errorf("verify prediction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify prediction: %w", err)
	}
	if n == 1 {
		return nil
	}
	var verified bool
	err = s.db.GetContext(ctx, &verified, `SELECT verified FROM predictions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domrepo.ErrPredictionNotFound
	}
	if err != nil {
		return fmt.Errorf("verify prediction: %w", err)
	}
	return domrepo.ErrAlreadyVerified
}

func (s *PostgresStore) CreateModelVersion(ctx context.Context, meta models.ModelMetadata) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode model version: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO model_versions (version, training_date, test_accuracy, cv_mean, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (version) DO UPDATE SET metadata = EXCLUDED.metadata`,
		meta.Version, meta.TrainingDate.UTC(), meta.TestAccuracy, meta.CVMean, b)
	if err != nil {
		return fmt.Errorf("insert model version: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListModelVersions(ctx context.Context) ([]models.ModelMetadata, error) {
	var raw [][]byte
	if err := s.db.SelectContext(ctx, &raw, `SELECT metadata FROM model_versions ORDER BY training_date DESC`); err != nil {
		return nil, fmt.Errorf("select model versions: %w", err)
	}
	out := make([]models.ModelMetadata, 0, len(raw))
	for _, b := range raw {
		var m models.ModelMetadata
		if err := json.Unmarshal(b, &m); err != nil {
			s.l.Warn("postgres skip corrupt model version", logger.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *PostgresStore) Close() error {
	return s.client.Close()
}
