package learner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"FinSense/internal/domain/models"
	"FinSense/pkg/logger"
)

const setupFile = "first_run_config.json"

func (l *Learner) setupPath() string {
	return filepath.Join(l.manager.Dir(), setupFile)
}

// SetupRequired reports whether the one-time initial training has not run yet.
func (l *Learner) SetupRequired() bool {
	_, err := os.Stat(l.setupPath())
	return err != nil
}

// SetupRecord returns the stored setup record.
func (l *Learner) SetupRecord() (*models.SetupRecord, error) {
	b, err := os.ReadFile(l.setupPath())
	if err != nil {
		return nil, fmt.Errorf("read setup record: %w", err)
	}
	var rec models.SetupRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode setup record: %w", err)
	}
	return &rec, nil
}

// Setup runs the initial training and records it. With an existing record and
// force unset it returns that record without training.
func (l *Learner) Setup(ctx context.Context, p models.RetrainParams, force bool, progress ProgressFunc) (*models.SetupRecord, *models.RetrainResult, error) {
	if !force && !l.SetupRequired() {
		rec, err := l.SetupRecord()
		return rec, nil, err
	}
	p.Trigger = models.TriggerSetup
	res := l.ExecuteRetraining(ctx, p, progress)
	if !res.Success {
		return nil, res, fmt.Errorf("initial training: %s", res.Error)
	}

	rec := &models.SetupRecord{
		Symbol:          res.Symbol,
		Timeframe:       res.Timeframe,
		NumBars:         p.Bars,
		ModelVersion:    res.Version,
		Accuracy:        res.TestAccuracy,
		CVScore:         res.CVScore,
		TrainingSamples: res.TrainingSamples,
		CompletedAt:     l.now().UTC(),
	}
	if rec.NumBars <= 0 {
		rec.NumBars = l.cfg.NumBars
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, res, fmt.Errorf("encode setup record: %w", err)
	}
	if err := os.WriteFile(l.setupPath(), b, 0o644); err != nil {
		return nil, res, fmt.Errorf("write setup record: %w", err)
	}
	l.log.Info("initial setup completed",
		logger.String("category", "setup"),
		logger.String("version", rec.ModelVersion),
		logger.Float64("accuracy", rec.Accuracy),
	)
	return rec, res, nil
}
