package modelmgr

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"FinSense/internal/domain/models"
	"FinSense/internal/domain/repository"
	"FinSense/internal/services/features"
	"FinSense/internal/services/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainingSet(t *testing.T, n int) (*features.Table, []int) {
	t.Helper()
	rng := rand.New(rand.NewSource(9))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	price := 1.1
	for i := range bars {
		open := price
		price *= 1 + rng.NormFloat64()*0.002
		bars[i] = models.Bar{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   open,
			High:   math.Max(open, price) * 1.0005,
			Low:    math.Min(open, price) * 0.9995,
			Close:  price,
			Volume: 1000 + rng.Float64()*100,
		}
	}
	table, err := features.NewEngineer(nil).Create(bars)
	require.NoError(t, err)
	labeled, labels := features.Labels(table, bars)
	return labeled, labels
}

func tinyTrainer() *ml.Trainer {
	return ml.NewTrainer(nil,
		ml.WithCVFolds(2),
		ml.WithBoosting(ml.BoostingParams{NEstimators: 5, MaxDepth: 2, LearningRate: 0.3, Lambda: 1, MinChildWeight: 1, MaxBins: 16}),
		ml.WithForest(ml.ForestParams{NEstimators: 5, MaxDepth: 3, MinSamplesLeaf: 1, MaxBins: 16, Seed: 1}),
	)
}

type fakeRegistry struct {
	mu       sync.Mutex
	versions []models.ModelMetadata
}

func (r *fakeRegistry) CreateModelVersion(_ context.Context, meta models.ModelMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions = append(r.versions, meta)
	return nil
}

func (r *fakeRegistry) ListModelVersions(context.Context) ([]models.ModelMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.ModelMetadata(nil), r.versions...), nil
}

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newManager(t *testing.T, dir string, opts ...Option) *Manager {
	t.Helper()
	clock := &stepClock{t: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	m, err := New(dir, tinyTrainer(), nil, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return m
}

func TestPredict_NoModel(t *testing.T) {
	m := newManager(t, t.TempDir())
	table, _ := trainingSet(t, 320)
	_, err := m.Predict(table, true)
	assert.True(t, errors.Is(err, repository.ErrModelNotLoaded))
	assert.Equal(t, "", m.ActiveVersion())
}

func TestTrain_PersistsAndPromotes(t *testing.T) {
	dir := t.TempDir()
	reg := &fakeRegistry{}
	m := newManager(t, dir, WithRegistry(reg))
	table, labels := trainingSet(t, 360)

	res, err := m.Train(context.Background(), table, labels, "", false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Version, "v_2025"))
	assert.Equal(t, res.Version, m.ActiveVersion())

	for _, kind := range []string{"model", "scaler", "metadata"} {
		assert.FileExists(t, filepath.Join(dir, kind+"_"+res.Version+".json"))
	}
	active, err := os.ReadFile(filepath.Join(dir, "ACTIVE"))
	require.NoError(t, err)
	assert.Equal(t, res.Version, strings.TrimSpace(string(active)))

	require.Len(t, reg.versions, 1)
	assert.Equal(t, res.Version, reg.versions[0].Version)

	out, err := m.Predict(table, true)
	require.NoError(t, err)
	assert.Len(t, out.Classes, table.Len())
	require.Len(t, out.Proba, table.Len())
	for _, p := range out.Proba {
		assert.InDelta(t, 1.0, p[0]+p[1], 1e-9)
	}

	out, err = m.Predict(table, false)
	require.NoError(t, err)
	assert.Nil(t, out.Proba)
}

func TestListVersions_NewestFirstAndCompleteOnly(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir)
	table, labels := trainingSet(t, 360)

	first, err := m.Train(context.Background(), table, labels, "v_a", false)
	require.NoError(t, err)
	second, err := m.Train(context.Background(), table, labels, "v_b", false)
	require.NoError(t, err)

	// an interrupted save leaves no metadata and must stay invisible
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model_v_partial.json"), []byte("{}"), 0o644))

	versions, err := m.ListVersions()
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, second.Version, versions[0].Version)
	assert.True(t, versions[0].Active)
	assert.Equal(t, first.Version, versions[1].Version)
	assert.False(t, versions[1].Active)

	assert.False(t, m.Load("v_partial"))
	assert.Equal(t, "v_b", m.ActiveVersion())
}

func TestSave_FailureCleansUpAndKeepsActive(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir)
	table, labels := trainingSet(t, 360)
	_, err := m.Train(context.Background(), table, labels, "v_good", false)
	require.NoError(t, err)

	// a directory where the metadata file should go makes the final rename fail
	require.NoError(t, os.Mkdir(filepath.Join(dir, "metadata_v_bad.json"), 0o755))
	_, err = m.Train(context.Background(), table, labels, "v_bad", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrPersistenceFailure))

	assert.NoFileExists(t, filepath.Join(dir, "model_v_bad.json"))
	assert.NoFileExists(t, filepath.Join(dir, "scaler_v_bad.json"))
	assert.Equal(t, "v_good", m.ActiveVersion())
}

func TestSave_ExistingVersionIsImmutable(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir)
	table, labels := trainingSet(t, 360)
	_, err := m.Train(context.Background(), table, labels, "v_one", false)
	require.NoError(t, err)
	before, err := os.ReadFile(filepath.Join(dir, "model_v_one.json"))
	require.NoError(t, err)

	active := m.Active()
	require.NotNil(t, active)
	bad := &ml.StandardScaler{Mean: []float64{math.NaN()}, Std: []float64{1}}
	err = m.Save(active.Model, bad, active.Metadata)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrVersionExists))

	_, err = m.Train(context.Background(), table, labels, "v_one", false)
	assert.True(t, errors.Is(err, repository.ErrVersionExists))

	after, err := os.ReadFile(filepath.Join(dir, "model_v_one.json"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	versions, err := m.ListVersions()
	require.NoError(t, err)
	assert.Len(t, versions, 1)
	assert.True(t, m.Load("v_one"))
}

func TestSave_EncodeFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir)
	table, labels := trainingSet(t, 360)
	_, err := m.Train(context.Background(), table, labels, "v_one", false)
	require.NoError(t, err)
	active := m.Active()

	meta := active.Metadata
	meta.Version = "v_two"
	bad := &ml.StandardScaler{Mean: []float64{math.NaN()}, Std: []float64{1}}
	err = m.Save(active.Model, bad, meta)
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrPersistenceFailure))

	for _, kind := range []string{"model", "scaler", "metadata"} {
		assert.NoFileExists(t, filepath.Join(dir, kind+"_v_two.json"))
	}
	assert.Equal(t, "v_one", m.ActiveVersion())
}

func TestInit_RestoresActiveVersion(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir)
	table, labels := trainingSet(t, 360)
	_, err := m.Train(context.Background(), table, labels, "v_one", false)
	require.NoError(t, err)
	_, err = m.Train(context.Background(), table, labels, "v_two", false)
	require.NoError(t, err)
	require.NoError(t, m.Activate("v_one"))

	restarted := newManager(t, dir)
	require.NoError(t, restarted.Init(context.Background()))
	assert.Equal(t, "v_one", restarted.ActiveVersion())

	assert.Error(t, restarted.Activate("../etc"))
}

func TestLastTrainingTime_Sources(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir)

	_, src := m.LastTrainingTime()
	assert.Equal(t, models.TrainingTimeNone, src)

	table, labels := trainingSet(t, 360)
	res, err := m.Train(context.Background(), table, labels, "v_meta", false)
	require.NoError(t, err)
	at, src := m.LastTrainingTime()
	assert.Equal(t, models.TrainingTimeMetadata, src)
	assert.True(t, at.Equal(res.TrainedAt))

	// a bare model file with no metadata falls back to its mtime
	other := t.TempDir()
	path := filepath.Join(other, "model_v_legacy.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	mtime := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	legacy := newManager(t, other)
	at, src = legacy.LastTrainingTime()
	assert.Equal(t, models.TrainingTimeFileMtime, src)
	assert.True(t, at.Equal(mtime))
}

func TestWatch_ReloadsOnActiveChange(t *testing.T) {
	dir := t.TempDir()
	writer := newManager(t, dir)
	table, labels := trainingSet(t, 360)
	_, err := writer.Train(context.Background(), table, labels, "v_first", false)
	require.NoError(t, err)

	reader := newManager(t, dir)
	require.NoError(t, reader.Init(context.Background()))
	require.Equal(t, "v_first", reader.ActiveVersion())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = reader.Watch(ctx)
	}()
	time.Sleep(100 * time.Millisecond)

	_, err = writer.Train(context.Background(), table, labels, "v_second", false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return reader.ActiveVersion() == "v_second"
	}, 5*time.Second, 50*time.Millisecond)
	cancel()
	<-done
}
