package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"FinSense/internal/domain/models"
	domrepo "FinSense/internal/domain/repository"
	pkgch "FinSense/pkg/clickhouse"
	applogger "FinSense/pkg/logger"
)

// CHPredictionStore keeps predictions in a ReplacingMergeTree keyed by id.
// A verify writes a newer row_version; reads use FINAL so only the latest
// row per id is visible. ClickHouse has no conditional update, so the
// read-then-insert of a verify runs under a per-id lock shared by every
// process writing to the table, plus a mutex within this process.
type CHPredictionStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger

	locker   domrepo.Locker
	lockWait time.Duration
	verifyMu sync.Mutex
}

type CHStoreOption func(*CHPredictionStore)

// WithVerifyLocker shares verify transitions across processes. Without it
// the store must be the only writer of the table.
func WithVerifyLocker(locker domrepo.Locker) CHStoreOption {
	return func(s *CHPredictionStore) { s.locker = locker }
}

// WithVerifyLockWait bounds how long a verify waits for another process
// holding the same prediction.
func WithVerifyLockWait(d time.Duration) CHStoreOption {
	return func(s *CHPredictionStore) {
		if d > 0 {
			s.lockWait = d
		}
	}
}

const (
	verifyLockTTL  = 30 * time.Second
	verifyLockPoll = 50 * time.Millisecond
)

var (
	_ domrepo.PredictionStore = (*CHPredictionStore)(nil)
	_ domrepo.ModelRegistry   = (*CHPredictionStore)(nil)
)

func NewCHPredictionStore(ch *pkgch.Client, l *applogger.Logger, opts ...CHStoreOption) *CHPredictionStore {
	if l == nil {
		l = applogger.Nop()
	}
	s := &CHPredictionStore{ch: ch, db: ch.DB(), l: l, lockWait: 2 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CHPredictionStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx)
}

const chInsertPrediction = `INSERT INTO finsense.predictions
	(id, symbol, timeframe, sentiment, confidence, price, model_version, created_at,
	 verified, verified_at, actual_sentiment, verify_price, change_pct, correct, row_version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *CHPredictionStore) insert(ctx context.Context, p *models.Prediction) error {
	_, err := s.db.ExecContext(ctx, chInsertPrediction,
		p.ID, p.Symbol, p.Timeframe, string(p.Sentiment), p.Confidence, p.Price, p.ModelVersion, p.CreatedAt.UTC(),
		p.Verified, p.VerifiedAt, string(p.ActualSentiment), p.VerifyPrice, p.ChangePct, p.Correct,
		uint64(time.Now().UnixNano()),
	)
	return err
}

func (s *CHPredictionStore) CreatePrediction(ctx context.Context, p *models.Prediction) error {
	if err := s.insert(ctx, p); err != nil {
		s.l.Error("clickhouse insert prediction error",
			applogger.String("id", p.ID),
			applogger.String("symbol", p.Symbol),
			applogger.Error(err),
		)
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

func (s *CHPredictionStore) GetPredictions(ctx context.Context, f models.PredictionFilter) ([]*models.Prediction, error) {
	start := time.Now()
	where, args := predicateBuilder(f, question)
	q := `SELECT id, symbol, timeframe, sentiment, confidence, price, model_version, created_at,
		verified, verified_at, actual_sentiment, verify_price, change_pct, correct
		FROM finsense.predictions FINAL` + where + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("get predictions: %w", err)
	}
	defer rows.Close()

	var out []*models.Prediction
	for rows.Next() {
		var (
			p            models.Prediction
			sent, actual string
			verifiedAt   *time.Time
		)
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Timeframe, &sent, &p.Confidence, &p.Price, &p.ModelVersion, &p.CreatedAt,
			&p.Verified, &verifiedAt, &actual, &p.VerifyPrice, &p.ChangePct, &p.Correct); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		p.Sentiment = models.Sentiment(sent)
		p.ActualSentiment = models.Sentiment(actual)
		p.VerifiedAt = verifiedAt
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse get_predictions ok",
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHPredictionStore) CountPredictions(ctx context.Context, f models.PredictionFilter) (int, error) {
	where, args := predicateBuilder(f, question)
	var n uint64
	if err := s.db.QueryRowContext(ctx, `SELECT count() FROM finsense.predictions FINAL`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count predictions: %w", err)
	}
	return int(n), nil
}

func (s *CHPredictionStore) VerifyPrediction(ctx context.Context, id string, v models.Verification) error {
	s.verifyMu.Lock()
	defer s.verifyMu.Unlock()

	unlock, err := s.lockVerify(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	rows, err := s.GetPredictionsByID(ctx, id)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return domrepo.ErrPredictionNotFound
	}
	p := rows[0]
	if p.Verified {
		return domrepo.ErrAlreadyVerified
	}
	p.Apply(v)
	if err := s.insert(ctx, p); err != nil {
		return fmt.Errorf("verify prediction: %w", err)
	}
	return nil
}

// lockVerify takes the shared lock for id, polling until lockWait passes.
func (s *CHPredictionStore) lockVerify(ctx context.Context, id string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := "predictions:verify:" + id
	deadline := time.Now().Add(s.lockWait)
	for {
		ok, err := s.locker.TryLock(ctx, key, verifyLockTTL)
		if err != nil {
			return nil, fmt.Errorf("verify lock %s: %w: %v", id, domrepo.ErrPersistenceFailure, err)
		}
		if ok {
			return func() {
				if err := s.locker.Unlock(context.Background(), key); err != nil {
					s.l.Warn("release verify lock failed", applogger.String("id", id), applogger.Error(err))
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("verify lock %s busy: %w", id, domrepo.ErrPersistenceFailure)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(verifyLockPoll):
		}
	}
}

// GetPredictionsByID returns the current row for id, if any.
func (s *CHPredictionStore) GetPredictionsByID(ctx context.Context, id string) ([]*models.Prediction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, symbol, timeframe, sentiment, confidence, price, model_version, created_at, verified
		FROM finsense.predictions FINAL WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get prediction: %w", err)
	}
	defer rows.Close()
	var out []*models.Prediction
	for rows.Next() {
		var p models.Prediction
		var sent string
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Timeframe, &sent, &p.Confidence, &p.Price, &p.ModelVersion, &p.CreatedAt, &p.Verified); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		p.Sentiment = models.Sentiment(sent)
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *CHPredictionStore) CreateModelVersion(ctx context.Context, meta models.ModelMetadata) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode model version: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO finsense.model_versions (version, training_date, test_accuracy, cv_mean, metadata) VALUES (?, ?, ?, ?, ?)`,
		meta.Version, meta.TrainingDate.UTC(), meta.TestAccuracy, meta.CVMean, string(b))
	if err != nil {
		return fmt.Errorf("insert model version: %w", err)
	}
	return nil
}

func (s *CHPredictionStore) ListModelVersions(ctx context.Context) ([]models.ModelMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT metadata FROM finsense.model_versions FINAL ORDER BY training_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("list model versions: %w", err)
	}
	defer rows.Close()
	var out []models.ModelMetadata
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan model version: %w", err)
		}
		var m models.ModelMetadata
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			s.l.Warn("clickhouse skip corrupt model version", applogger.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *CHPredictionStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *CHPredictionStore) Close() error {
	return s.ch.Close()
}

// CHBarFeed serves bars from finsense.bars.
type CHBarFeed struct {
	db *sql.DB
	l  *applogger.Logger
}

var _ domrepo.BarFeed = (*CHBarFeed)(nil)

func NewCHBarFeed(ch *pkgch.Client, l *applogger.Logger) *CHBarFeed {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHBarFeed{db: ch.DB(), l: l}
}

// GetBars returns the latest count bars, oldest first.
func (f *CHBarFeed) GetBars(ctx context.Context, symbol string, tf domrepo.Timeframe, count int) ([]models.Bar, error) {
	start := time.Now()
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	rows, err := f.db.QueryContext(ctx, `
		SELECT ts, symbol, open, high, low, close, volume, spread, real_volume
		FROM finsense.bars FINAL
		WHERE symbol = ? AND timeframe = ?
		ORDER BY ts DESC
		LIMIT ?`, symbol, string(tf), count)
	if err != nil {
		f.l.Error("clickhouse get_bars query error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, count)
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Time, &b.Symbol, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Spread, &b.RealVolume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("get bars %s %s: %w", symbol, tf, domrepo.ErrDataUnavailable)
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	f.l.Info("clickhouse get_bars ok",
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("limit", count),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}
