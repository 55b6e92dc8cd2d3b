package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"FinSense/internal/domain/models"
	domrepo "FinSense/internal/domain/repository"
	"FinSense/pkg/logger"

	"github.com/dgraph-io/badger/v4"
)

const (
	predictionPrefix = "pred/"
	modelPrefix      = "model/"
)

// BadgerStore keeps predictions and model versions in an embedded BadgerDB.
type BadgerStore struct {
	db *badger.DB
	l  *logger.Logger
}

var (
	_ domrepo.PredictionStore = (*BadgerStore)(nil)
	_ domrepo.ModelRegistry   = (*BadgerStore)(nil)
)

func NewBadgerStore(db *badger.DB, l *logger.Logger) *BadgerStore {
	if l == nil {
		l = logger.Nop()
	}
	return &BadgerStore{db: db, l: l}
}

func (s *BadgerStore) Init(context.Context) error { return nil }

func (s *BadgerStore) CreatePrediction(_ context.Context, p *models.Prediction) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode prediction: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(predictionPrefix+p.ID), b)
	})
}

func (s *BadgerStore) scan(f models.PredictionFilter) ([]*models.Prediction, error) {
	var out []*models.Prediction
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(predictionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var p models.Prediction
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &p) }); err != nil {
				s.l.Warn("badger skip corrupt prediction",
					logger.String("key", string(it.Item().Key())),
					logger.Error(err),
				)
				continue
			}
			if f.Match(&p) {
				out = append(out, &p)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan predictions: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *BadgerStore) GetPredictions(_ context.Context, f models.PredictionFilter) ([]*models.Prediction, error) {
	out, err := s.scan(f)
	if err != nil {
		return nil, err
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *BadgerStore) CountPredictions(_ context.Context, f models.PredictionFilter) (int, error) {
	out, err := s.scan(f)
	return len(out), err
}

// VerifyPrediction settles the row inside one transaction. A write conflict
// is retried so the loser observes the verified row.
func (s *BadgerStore) VerifyPrediction(_ context.Context, id string, v models.Verification) error {
	key := []byte(predictionPrefix + id)
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return domrepo.ErrPredictionNotFound
			}
			if err != nil {
				return err
			}
			var p models.Prediction
			if err := item.Value(func(b []byte) error { return json.Unmarshal(b, &p) }); err != nil {
				return fmt.Errorf("decode prediction: %w", err)
			}
			if p.Verified {
				return domrepo.ErrAlreadyVerified
			}
			p.Apply(v)
			b, err := json.Marshal(&p)
			if err != nil {
				return fmt.Errorf("encode prediction: %w", err)
			}
			return txn.Set(key, b)
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("verify prediction %s: %w", id, err)
}

func (s *BadgerStore) CreateModelVersion(_ context.Context, meta models.ModelMetadata) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode model version: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(modelPrefix+meta.Version), b)
	})
}

// ListModelVersions returns registered versions, newest training date first.
func (s *BadgerStore) ListModelVersions(context.Context) ([]models.ModelMetadata, error) {
	var out []models.ModelMetadata
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(modelPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var m models.ModelMetadata
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &m) }); err != nil {
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list model versions: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrainingDate.After(out[j].TrainingDate) })
	return out, nil
}

func (s *BadgerStore) Health(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger is closed")
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
