package modelmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"FinSense/internal/domain/models"
	"FinSense/internal/domain/repository"
	"FinSense/internal/services/features"
	"FinSense/internal/services/ml"
	"FinSense/pkg/logger"
)

const activeFile = "ACTIVE"

var versionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]*$`)

// Loaded is an immutable, fully loaded model version.
type Loaded struct {
	Version  string
	Model    *ml.VotingEnsemble
	Scaler   *ml.StandardScaler
	Metadata models.ModelMetadata
	LoadedAt time.Time
}

// Output is the result of Predict. Proba is nil unless probabilities were requested.
type Output struct {
	Version string
	Classes []int
	Proba   [][]float64
}

// Option configures Manager.
type Option func(*Manager)

// Manager owns model artifacts on disk and the active version pointer.
type Manager struct {
	dir      string
	trainer  *ml.Trainer
	registry repository.ModelRegistry
	metrics  repository.Metrics
	log      *logger.Logger
	now      func() time.Time

	active  atomic.Pointer[Loaded]
	writeMu sync.Mutex
}

func New(dir string, trainer *ml.Trainer, l *logger.Logger, opts ...Option) (*Manager, error) {
	if l == nil {
		l = logger.Nop()
	}
	m := &Manager{
		dir:     dir,
		trainer: trainer,
		log:     l,
		metrics: repository.NoopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w: %v", repository.ErrPersistenceFailure, err)
	}
	return m, nil
}

// WithRegistry records every saved version in the persistence layer.
func WithRegistry(r repository.ModelRegistry) Option {
	return func(m *Manager) {
		m.registry = r
	}
}

func WithMetrics(r repository.Metrics) Option {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func (m *Manager) Dir() string { return m.dir }

// Init loads the version named in ACTIVE, falling back to the newest complete version.
// Having no model at all is not an error.
func (m *Manager) Init(ctx context.Context) error {
	if v, err := m.readActive(); err == nil && v != "" {
		if m.Load(v) {
			return nil
		}
		m.log.Warn("active model could not be loaded, trying newest",
			logger.String("category", "model_manager"),
			logger.String("version", v),
		)
	}
	versions, err := m.ListVersions()
	if err != nil {
		return err
	}
	for _, v := range versions {
		if m.Load(v.Version) {
			return nil
		}
	}
	m.log.Info("no trained model available", logger.String("category", "model_manager"))
	return nil
}

// GenerateVersion returns v_<prefix>_<YYYYMMDD_HHMMSS>, or v_<timestamp> with no prefix.
func (m *Manager) GenerateVersion(prefix string) string {
	ts := m.now().UTC().Format("20060102_150405")
	base := "v_" + ts
	if prefix != "" {
		base = "v_" + prefix + "_" + ts
	}
	version := base
	for i := 2; m.exists(version); i++ {
		version = fmt.Sprintf("%s_%d", base, i)
	}
	return version
}

// Train fits a new ensemble, persists it and promotes it to active.
func (m *Manager) Train(ctx context.Context, table *features.Table, labels []int, version string, tuning bool) (*models.TrainingResult, error) {
	if m.trainer == nil {
		return nil, errors.New("model manager: no trainer configured")
	}
	if table.Len() != len(labels) {
		return nil, fmt.Errorf("train model: %d rows but %d labels", table.Len(), len(labels))
	}
	if version == "" {
		version = m.GenerateVersion("")
	}
	if !versionPattern.MatchString(version) {
		return nil, fmt.Errorf("train model: invalid version %q", version)
	}
	if m.exists(version) {
		return nil, fmt.Errorf("train model %s: %w", version, repository.ErrVersionExists)
	}

	art, err := m.trainer.Train(ctx, table.Names, table.Rows, labels, tuning)
	if err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}
	art.Result.Version = version

	meta := models.ModelMetadata{
		Version:           version,
		TrainingDate:      art.Result.TrainedAt.UTC(),
		TrainingSamples:   art.Result.TrainingSamples,
		TestSamples:       art.Result.TestSamples,
		TrainingDuration:  art.Result.Duration.Seconds(),
		TrainAccuracy:     art.Result.TrainAccuracy,
		TestAccuracy:      art.Result.TestAccuracy,
		CVMean:            art.Result.CVMean,
		CVStd:             art.Result.CVStd,
		FeatureImportance: art.Result.FeatureImportance,
		FeatureNames:      art.FeatureNames,
		FeatureSchema:     features.SchemaVersion,
		Params:            art.Result.Params,
	}
	if err := m.Save(art.Model, art.Scaler, meta); err != nil {
		return nil, err
	}

	if m.registry != nil {
		if err := m.registry.CreateModelVersion(ctx, meta); err != nil {
			m.log.Warn("register model version failed",
				logger.String("category", "model_manager"),
				logger.String("version", version),
				logger.Error(err),
			)
		}
	}

	if err := m.Activate(version); err != nil {
		return nil, err
	}
	return &art.Result, nil
}

// Save writes the model, scaler and metadata of a new version. Versions are
// immutable: Save refuses a version that already has any artifact on disk.
// Everything is encoded before the first write, metadata is written last and
// marks the version complete, and on failure only the files this call
// created are removed.
func (m *Manager) Save(model *ml.VotingEnsemble, scaler *ml.StandardScaler, meta models.ModelMetadata) error {
	if !versionPattern.MatchString(meta.Version) {
		return fmt.Errorf("save model: invalid version %q", meta.Version)
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.exists(meta.Version) {
		return fmt.Errorf("save model %s: %w", meta.Version, repository.ErrVersionExists)
	}

	blobs := []struct {
		kind string
		v    interface{}
		data []byte
	}{
		{kind: "model", v: model},
		{kind: "scaler", v: scaler},
		{kind: "metadata", v: meta},
	}
	for i := range blobs {
		data, err := json.Marshal(blobs[i].v)
		if err != nil {
			return m.saveFailed(meta.Version, blobs[i].kind, err)
		}
		blobs[i].data = data
	}

	var written []string
	for _, b := range blobs {
		path := m.path(b.kind, meta.Version)
		if err := writeFileAtomic(path, b.data); err != nil {
			for _, p := range written {
				_ = os.Remove(p)
			}
			return m.saveFailed(meta.Version, b.kind, err)
		}
		written = append(written, path)
	}

	m.log.Info("model saved",
		logger.String("category", "model_manager"),
		logger.String("version", meta.Version),
		logger.Float64("test_accuracy", meta.TestAccuracy),
	)
	return nil
}

// Load reads a complete version into the active slot. It returns false when
// any artifact is missing or unreadable and leaves the active model untouched.
func (m *Manager) Load(version string) bool {
	loaded, err := m.read(version)
	if err != nil {
		m.log.Warn("load model failed",
			logger.String("category", "model_manager"),
			logger.String("version", version),
			logger.Error(err),
		)
		return false
	}
	m.active.Store(loaded)
	m.metrics.RecordModelAccuracy(version, loaded.Metadata.TestAccuracy)
	m.log.Info("model loaded",
		logger.String("category", "model_manager"),
		logger.String("version", version),
	)
	return true
}

// Activate loads a version and records it as the active one on disk.
func (m *Manager) Activate(version string) error {
	if !m.Load(version) {
		return fmt.Errorf("activate %s: %w", version, repository.ErrModelNotLoaded)
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := writeFileAtomic(filepath.Join(m.dir, activeFile), []byte(version+"\n")); err != nil {
		return fmt.Errorf("activate %s: %w: %v", version, repository.ErrPersistenceFailure, err)
	}
	return nil
}

func (m *Manager) read(version string) (*Loaded, error) {
	if !versionPattern.MatchString(version) {
		return nil, fmt.Errorf("invalid version %q", version)
	}
	var meta models.ModelMetadata
	if err := readJSON(m.path("metadata", version), &meta); err != nil {
		return nil, err
	}
	var model ml.VotingEnsemble
	if err := readJSON(m.path("model", version), &model); err != nil {
		return nil, err
	}
	var scaler ml.StandardScaler
	if err := readJSON(m.path("scaler", version), &scaler); err != nil {
		return nil, err
	}
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if len(meta.FeatureNames) == 0 || len(meta.FeatureNames) != len(scaler.Mean) {
		return nil, fmt.Errorf("metadata lists %d features, scaler has %d", len(meta.FeatureNames), len(scaler.Mean))
	}
	if meta.FeatureSchema != features.SchemaVersion {
		return nil, fmt.Errorf("feature schema %d, engine produces %d", meta.FeatureSchema, features.SchemaVersion)
	}
	return &Loaded{Version: version, Model: &model, Scaler: &scaler, Metadata: meta, LoadedAt: m.now()}, nil
}

// Active returns the served model or nil.
func (m *Manager) Active() *Loaded {
	return m.active.Load()
}

func (m *Manager) ActiveVersion() string {
	if a := m.active.Load(); a != nil {
		return a.Version
	}
	return ""
}

// Predict scores every row of table with the active model.
func (m *Manager) Predict(table *features.Table, withProba bool) (*Output, error) {
	a := m.active.Load()
	if a == nil {
		return nil, repository.ErrModelNotLoaded
	}
	sel, err := table.Select(a.Metadata.FeatureNames)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	x, err := a.Scaler.Transform(sel.Rows)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	proba := a.Model.PredictProba(x)
	out := &Output{Version: a.Version, Classes: make([]int, len(proba))}
	for i, p := range proba {
		if p[1] > p[0] {
			out.Classes[i] = 1
		}
	}
	if withProba {
		out.Proba = proba
	}
	return out, nil
}

// ListVersions returns complete versions, newest training date first.
func (m *Manager) ListVersions() ([]models.ModelVersion, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w: %v", repository.ErrPersistenceFailure, err)
	}
	active := m.ActiveVersion()
	var out []models.ModelVersion
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "metadata_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		version := strings.TrimSuffix(strings.TrimPrefix(name, "metadata_"), ".json")
		if !m.complete(version) {
			continue
		}
		var meta models.ModelMetadata
		if err := readJSON(m.path("metadata", version), &meta); err != nil {
			continue
		}
		meta.Version = version
		out = append(out, models.ModelVersion{ModelMetadata: meta, Active: version == active})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TrainingDate.Equal(out[j].TrainingDate) {
			return out[i].TrainingDate.After(out[j].TrainingDate)
		}
		return out[i].Version > out[j].Version
	})
	return out, nil
}

func (m *Manager) saveFailed(version, kind string, err error) error {
	m.log.Error("save model failed",
		logger.String("category", "model_manager"),
		logger.String("version", version),
		logger.String("artifact", kind),
		logger.Error(err),
	)
	return fmt.Errorf("save %s %s: %w: %v", kind, version, repository.ErrPersistenceFailure, err)
}

// exists reports whether any regular artifact file of version is present.
func (m *Manager) exists(version string) bool {
	for _, kind := range []string{"model", "scaler", "metadata"} {
		if fi, err := os.Stat(m.path(kind, version)); err == nil && fi.Mode().IsRegular() {
			return true
		}
	}
	return false
}

func (m *Manager) complete(version string) bool {
	for _, kind := range []string{"model", "scaler", "metadata"} {
		if fi, err := os.Stat(m.path(kind, version)); err != nil || fi.IsDir() {
			return false
		}
	}
	return true
}

// Metadata returns the sidecar of one version.
func (m *Manager) Metadata(version string) (models.ModelMetadata, error) {
	var meta models.ModelMetadata
	if !versionPattern.MatchString(version) {
		return meta, fmt.Errorf("invalid version %q", version)
	}
	err := readJSON(m.path("metadata", version), &meta)
	return meta, err
}

// LastTrainingTime reports when the active (or newest) model was trained.
// It prefers the metadata training_date and falls back to the model file's
// modification time, reporting which source answered.
func (m *Manager) LastTrainingTime() (time.Time, models.TrainingTimeSource) {
	version := m.ActiveVersion()
	if version == "" {
		if versions, err := m.ListVersions(); err == nil && len(versions) > 0 {
			version = versions[0].Version
		}
	}
	if version != "" {
		if meta, err := m.Metadata(version); err == nil && !meta.TrainingDate.IsZero() {
			return meta.TrainingDate, models.TrainingTimeMetadata
		}
	}

	path := ""
	if version != "" {
		path = m.path("model", version)
	} else {
		path = m.newestModelFile()
	}
	if path == "" {
		return time.Time{}, models.TrainingTimeNone
	}
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, models.TrainingTimeNone
	}
	m.log.Warn("training date unavailable, using model file mtime",
		logger.String("category", "model_manager"),
		logger.String("path", path),
	)
	return fi.ModTime(), models.TrainingTimeFileMtime
}

func (m *Manager) newestModelFile() string {
	matches, _ := filepath.Glob(filepath.Join(m.dir, "model_*.json"))
	var newest string
	var newestTime time.Time
	for _, p := range matches {
		fi, err := os.Stat(p)
		if err != nil {
			continue
		}
		if newest == "" || fi.ModTime().After(newestTime) {
			newest, newestTime = p, fi.ModTime()
		}
	}
	return newest
}

func (m *Manager) readActive() (string, error) {
	b, err := os.ReadFile(filepath.Join(m.dir, activeFile))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (m *Manager) path(kind, version string) string {
	return filepath.Join(m.dir, fmt.Sprintf("%s_%s.json", kind, version))
}

func readJSON(path string, dest interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
