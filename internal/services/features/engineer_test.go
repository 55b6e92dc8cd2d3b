package features

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"FinSense/internal/domain/models"
	"FinSense/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomWalk(n int, seed int64) []models.Bar {
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	price := 1.1
	for i := range bars {
		open := price
		price *= 1 + rng.NormFloat64()*0.002
		high := math.Max(open, price) * (1 + rng.Float64()*0.001)
		low := math.Min(open, price) * (1 - rng.Float64()*0.001)
		bars[i] = models.Bar{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  price,
			Volume: 1000 + rng.Float64()*500,
		}
	}
	return bars
}

func TestCreate_RowCountMatchesWarmup(t *testing.T) {
	e := NewEngineer(nil)
	for _, n := range []int{200, 201, 350} {
		table, err := e.Create(randomWalk(n, 1))
		require.NoError(t, err)
		assert.Equal(t, n-Warmup, table.Len(), "n=%d", n)
		assert.Equal(t, Warmup, table.Index[0])
		assert.Equal(t, n-1, table.Index[table.Len()-1])
	}
}

func TestCreate_TooFewBars(t *testing.T) {
	for _, n := range []int{1, 50, MinBars - 1} {
		table, err := NewEngineer(nil).Create(randomWalk(n, 1))
		require.Error(t, err, "n=%d", n)
		assert.Nil(t, table, "n=%d", n)
		assert.True(t, errors.Is(err, repository.ErrDataUnavailable), "n=%d", n)
	}

	_, err := NewEngineer(nil).Create(nil)
	assert.True(t, errors.Is(err, repository.ErrDataUnavailable))
}

func TestCreate_Deterministic(t *testing.T) {
	bars := randomWalk(300, 7)
	a, err := NewEngineer(nil).Create(bars)
	require.NoError(t, err)
	b, err := NewEngineer(nil).Create(bars)
	require.NoError(t, err)
	assert.Equal(t, a.Names, b.Names)
	assert.Equal(t, a.Rows, b.Rows)
}

func TestCreate_SchemaAndFiniteValues(t *testing.T) {
	table, err := NewEngineer(nil).Create(randomWalk(260, 3))
	require.NoError(t, err)
	assert.Equal(t, FeatureNames, table.Names)
	assert.Len(t, FeatureNames, 31)
	for _, row := range table.Rows {
		for c, v := range row {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "column %s", table.Names[c])
		}
	}
	last := table.Last()
	assert.GreaterOrEqual(t, last["rsi"], 0.0)
	assert.LessOrEqual(t, last["rsi"], 100.0)
	assert.GreaterOrEqual(t, last["close_position"], 0.0)
	assert.LessOrEqual(t, last["close_position"], 1.0)
	assert.GreaterOrEqual(t, last["recent_highs"], 1.0)
}

func TestCreate_DegenerateBarsAreNotDropped(t *testing.T) {
	bars := make([]models.Bar, 220)
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = models.Bar{Time: start.Add(time.Duration(i) * time.Hour), Open: 1.2, High: 1.2, Low: 1.2, Close: 1.2}
	}
	table, err := NewEngineer(nil).Create(bars)
	require.NoError(t, err)
	require.Equal(t, 220-Warmup, table.Len())

	v, ok := table.Value(0, "close_position")
	require.True(t, ok)
	assert.Equal(t, 0.5, v)
	v, _ = table.Value(0, "volume_change")
	assert.Equal(t, 0.0, v)
	v, _ = table.Value(0, "rsi")
	assert.Equal(t, 50.0, v)
}

func TestCreate_SessionFlags(t *testing.T) {
	bars := randomWalk(224, 5)
	table, err := NewEngineer(nil).Create(bars)
	require.NoError(t, err)
	for r, i := range table.Index {
		h := bars[i].Time.Hour()
		london, _ := table.Value(r, "is_london_session")
		ny, _ := table.Value(r, "is_ny_session")
		hour, _ := table.Value(r, "hour")
		assert.Equal(t, float64(h), hour)
		assert.Equal(t, h >= 8 && h < 17, london == 1)
		assert.Equal(t, h >= 13 && h < 22, ny == 1)
	}
	// 2024-01-01 is a Monday
	dow, _ := table.Value(0, "day_of_week")
	assert.Equal(t, float64((int(bars[Warmup].Time.Weekday())+6)%7), dow)
}

func TestCreate_FailingGroupIsSkipped(t *testing.T) {
	e := NewEngineer(nil)
	e.groups = append([]group{}, defaultGroups...)
	e.groups = append(e.groups, group{name: "broken", compute: func(*series) (map[string][]float64, error) {
		panic("boom")
	}})

	table, err := e.Create(randomWalk(250, 2))
	require.NoError(t, err)
	assert.Equal(t, []string{"broken"}, table.Skipped)
	assert.Equal(t, FeatureNames, table.Names)
}

func TestCreate_SkippedTrendGroupShortensWarmup(t *testing.T) {
	e := NewEngineer(nil)
	e.groups = nil
	for _, g := range defaultGroups {
		if g.name == "trend" {
			g.compute = func(*series) (map[string][]float64, error) { return nil, errors.New("no trend") }
		}
		e.groups = append(e.groups, g)
	}

	table, err := e.Create(randomWalk(250, 2))
	require.NoError(t, err)
	_, ok := table.Column("sma_200")
	assert.False(t, ok)
	assert.Equal(t, []string{"trend"}, table.Skipped)
	assert.Greater(t, table.Len(), 250-Warmup)
}

func TestLabels_DropsLastRow(t *testing.T) {
	bars := randomWalk(230, 11)
	table, err := NewEngineer(nil).Create(bars)
	require.NoError(t, err)

	labeled, labels := Labels(table, bars)
	require.Equal(t, table.Len()-1, labeled.Len())
	require.Len(t, labels, labeled.Len())
	for r, i := range labeled.Index {
		want := 0
		if bars[i+1].Close > bars[i].Close {
			want = 1
		}
		assert.Equal(t, want, labels[r])
	}
}

func TestTable_Select(t *testing.T) {
	table, err := NewEngineer(nil).Create(randomWalk(210, 4))
	require.NoError(t, err)

	sel, err := table.Select([]string{"trend_strength", "rsi"})
	require.NoError(t, err)
	rsi, _ := table.Value(0, "rsi")
	assert.Equal(t, rsi, sel.Rows[0][1])

	_, err = table.Select([]string{"nope"})
	assert.Error(t, err)
}
