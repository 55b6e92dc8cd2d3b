package features

import (
	"fmt"
	"math"
	"time"

	"FinSense/internal/domain/models"
	"FinSense/internal/domain/repository"
	"FinSense/pkg/logger"
)

// SchemaVersion changes whenever FeatureNames changes.
const SchemaVersion = 1

// Warmup is the number of leading bars that never yield a row (SMA200).
const Warmup = 199

// MinBars is the smallest input that yields at least one row.
const MinBars = Warmup + 1

// FeatureNames is the canonical column order.
var FeatureNames = []string{
	"rsi", "macd", "macd_signal", "macd_hist",
	"adx", "plus_di", "minus_di",
	"bb_width", "atr_pct",
	"ema_20", "ema_50", "sma_200",
	"obv", "mfi",
	"price_change", "price_change_5", "price_change_10",
	"hl_range", "body_size", "upper_wick", "lower_wick", "close_position",
	"volume_change", "volume_ma_ratio",
	"hour", "day_of_week", "is_london_session", "is_ny_session",
	"recent_highs", "recent_lows", "trend_strength",
}

// Table is a feature matrix aligned with the source bars.
// Index[i] is the position in the input bar slice that produced Rows[i].
type Table struct {
	Names   []string
	Rows    [][]float64
	Index   []int
	Times   []time.Time
	Skipped []string
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Column returns the position of name.
func (t *Table) Column(name string) (int, bool) {
	for i, n := range t.Names {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// Value returns the named value of row i.
func (t *Table) Value(i int, name string) (float64, bool) {
	c, ok := t.Column(name)
	if !ok || i < 0 || i >= len(t.Rows) {
		return 0, false
	}
	return t.Rows[i][c], true
}

// Last returns the final row as a name -> value map.
func (t *Table) Last() map[string]float64 {
	if t.Len() == 0 {
		return nil
	}
	row := t.Rows[len(t.Rows)-1]
	out := make(map[string]float64, len(t.Names))
	for i, n := range t.Names {
		out[n] = row[i]
	}
	return out
}

// Select projects the table onto names, in that order.
func (t *Table) Select(names []string) (*Table, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		c, ok := t.Column(n)
		if !ok {
			return nil, fmt.Errorf("select features: missing column %q", n)
		}
		idx[i] = c
	}
	rows := make([][]float64, len(t.Rows))
	for r, row := range t.Rows {
		out := make([]float64, len(idx))
		for i, c := range idx {
			out[i] = row[c]
		}
		rows[r] = out
	}
	return &Table{Names: append([]string(nil), names...), Rows: rows, Index: t.Index, Times: t.Times, Skipped: t.Skipped}, nil
}

// Tail keeps the last n rows.
func (t *Table) Tail(n int) *Table {
	if n >= t.Len() {
		return t
	}
	from := t.Len() - n
	return &Table{Names: t.Names, Rows: t.Rows[from:], Index: t.Index[from:], Times: t.Times[from:], Skipped: t.Skipped}
}

// series holds the bar columns shared by every group.
type series struct {
	open, high, low, close, volume []float64
	times                          []time.Time
}

func newSeries(bars []models.Bar) *series {
	s := &series{
		open:   make([]float64, len(bars)),
		high:   make([]float64, len(bars)),
		low:    make([]float64, len(bars)),
		close:  make([]float64, len(bars)),
		volume: make([]float64, len(bars)),
		times:  make([]time.Time, len(bars)),
	}
	for i, b := range bars {
		s.open[i] = b.Open
		s.high[i] = b.High
		s.low[i] = b.Low
		s.close[i] = b.Close
		s.volume[i] = b.Volume
		s.times[i] = b.Time.UTC()
	}
	return s
}

func (s *series) len() int { return len(s.close) }

type group struct {
	name    string
	compute func(s *series) (map[string][]float64, error)
}

// Engineer turns bars into a feature table. It holds no state between calls.
type Engineer struct {
	log    *logger.Logger
	groups []group
}

func NewEngineer(l *logger.Logger) *Engineer {
	if l == nil {
		l = logger.Nop()
	}
	return &Engineer{log: l, groups: defaultGroups}
}

// Create computes every indicator group and drops rows that contain an
// undefined value. A failing group is logged and its columns are omitted.
func (e *Engineer) Create(bars []models.Bar) (*Table, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("create features: no bars: %w", repository.ErrDataUnavailable)
	}
	s := newSeries(bars)

	cols := make(map[string][]float64, len(FeatureNames))
	var skipped []string
	for _, g := range e.groups {
		out, err := runGroup(g, s)
		if err != nil {
			e.log.Warn("feature group failed",
				logger.String("category", "features"),
				logger.String("group", g.name),
				logger.Error(err),
			)
			skipped = append(skipped, g.name)
			continue
		}
		for name, values := range out {
			cols[name] = values
		}
	}

	names := make([]string, 0, len(cols))
	for _, n := range FeatureNames {
		if _, ok := cols[n]; ok {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("create features: every indicator group failed: %w", repository.ErrDataUnavailable)
	}

	t := &Table{Names: names, Skipped: skipped}
	for i := 0; i < s.len(); i++ {
		row := make([]float64, len(names))
		ok := true
		for c, n := range names {
			v := cols[n][i]
			if !defined(v) {
				ok = false
				break
			}
			row[c] = v
		}
		if !ok {
			continue
		}
		t.Rows = append(t.Rows, row)
		t.Index = append(t.Index, i)
		t.Times = append(t.Times, s.times[i])
	}

	if t.Len() == 0 {
		return nil, fmt.Errorf("create features: %d bars leave no usable rows (need at least %d): %w",
			len(bars), MinBars, repository.ErrDataUnavailable)
	}
	return t, nil
}

func runGroup(g group, s *series) (out map[string][]float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("panic in %s: %v", g.name, r)
		}
	}()
	out, err = g.compute(s)
	if err != nil {
		return nil, err
	}
	for name, values := range out {
		if len(values) != s.len() {
			return nil, fmt.Errorf("column %s has %d values, want %d", name, len(values), s.len())
		}
	}
	return out, nil
}

// Labels pairs each row with whether the next bar closed higher.
// The row for the final bar has no outcome and is dropped.
func Labels(t *Table, bars []models.Bar) (*Table, []int) {
	out := &Table{Names: t.Names, Skipped: t.Skipped}
	var labels []int
	for r, i := range t.Index {
		if i+1 >= len(bars) {
			continue
		}
		label := 0
		if bars[i+1].Close > bars[i].Close {
			label = 1
		}
		out.Rows = append(out.Rows, t.Rows[r])
		out.Index = append(out.Index, i)
		out.Times = append(out.Times, t.Times[r])
		labels = append(labels, label)
	}
	return out, labels
}

var defaultGroups = []group{
	{name: "momentum", compute: momentumGroup},
	{name: "trend", compute: trendGroup},
	{name: "volatility", compute: volatilityGroup},
	{name: "volume", compute: volumeGroup},
	{name: "price_action", compute: priceActionGroup},
	{name: "session", compute: sessionGroup},
	{name: "structure", compute: structureGroup},
}

func momentumGroup(s *series) (map[string][]float64, error) {
	line, sig, hist := MACD(s.close, 12, 26, 9)
	return map[string][]float64{
		"rsi":         RSI(s.close, 14),
		"macd":        line,
		"macd_signal": sig,
		"macd_hist":   hist,
	}, nil
}

func trendGroup(s *series) (map[string][]float64, error) {
	adx, plus, minus := ADX(s.high, s.low, s.close, 14)
	return map[string][]float64{
		"adx":      adx,
		"plus_di":  plus,
		"minus_di": minus,
		"ema_20":   EMA(s.close, 20),
		"ema_50":   EMA(s.close, 50),
		"sma_200":  SMA(s.close, 200),
	}, nil
}

func volatilityGroup(s *series) (map[string][]float64, error) {
	mid := SMA(s.close, 20)
	std := RollingStd(s.close, 20)
	atr := ATR(s.high, s.low, s.close, 14)
	width := nanSlice(s.len())
	atrPct := nanSlice(s.len())
	for i := 0; i < s.len(); i++ {
		if defined(mid[i]) && defined(std[i]) {
			// (upper - lower) / middle with bands at 2 sigma
			width[i] = safeDiv(4*std[i], mid[i])
		}
		if defined(atr[i]) {
			atrPct[i] = safeDiv(atr[i], s.close[i])
		}
	}
	return map[string][]float64{"bb_width": width, "atr_pct": atrPct}, nil
}

func volumeGroup(s *series) (map[string][]float64, error) {
	volMA := SMA(s.volume, 20)
	ratio := nanSlice(s.len())
	for i := range ratio {
		if defined(volMA[i]) {
			ratio[i] = safeDiv(s.volume[i], volMA[i])
		}
	}
	return map[string][]float64{
		"obv":             OBV(s.close, s.volume),
		"mfi":             MFI(s.high, s.low, s.close, s.volume, 14),
		"volume_change":   PctChange(s.volume, 1),
		"volume_ma_ratio": ratio,
	}, nil
}

func priceActionGroup(s *series) (map[string][]float64, error) {
	n := s.len()
	hl := make([]float64, n)
	body := make([]float64, n)
	upper := make([]float64, n)
	lower := make([]float64, n)
	pos := make([]float64, n)
	for i := 0; i < n; i++ {
		o, h, l, c := s.open[i], s.high[i], s.low[i], s.close[i]
		hl[i] = safeDiv(h-l, c)
		body[i] = safeDiv(math.Abs(c-o), c)
		upper[i] = safeDiv(h-math.Max(o, c), c)
		lower[i] = safeDiv(math.Min(o, c)-l, c)
		if h == l {
			pos[i] = 0.5
		} else {
			pos[i] = (c - l) / (h - l)
		}
	}
	return map[string][]float64{
		"price_change":    PctChange(s.close, 1),
		"price_change_5":  PctChange(s.close, 5),
		"price_change_10": PctChange(s.close, 10),
		"hl_range":        hl,
		"body_size":       body,
		"upper_wick":      upper,
		"lower_wick":      lower,
		"close_position":  pos,
	}, nil
}

func sessionGroup(s *series) (map[string][]float64, error) {
	n := s.len()
	hour := make([]float64, n)
	dow := make([]float64, n)
	london := make([]float64, n)
	ny := make([]float64, n)
	for i, t := range s.times {
		h := t.Hour()
		hour[i] = float64(h)
		// Monday = 0
		dow[i] = float64((int(t.Weekday()) + 6) % 7)
		if h >= 8 && h < 17 {
			london[i] = 1
		}
		if h >= 13 && h < 22 {
			ny[i] = 1
		}
	}
	return map[string][]float64{
		"hour":              hour,
		"day_of_week":       dow,
		"is_london_session": london,
		"is_ny_session":     ny,
	}, nil
}

func structureGroup(s *series) (map[string][]float64, error) {
	const window = 20
	n := s.len()
	maxHigh := RollingMax(s.high, window)
	minLow := RollingMin(s.low, window)
	highs := nanSlice(n)
	lows := nanSlice(n)
	for i := window - 1; i < n; i++ {
		var h, l float64
		for j := i - window + 1; j <= i; j++ {
			if s.high[j] == maxHigh[i] {
				h++
			}
			if s.low[j] == minLow[i] {
				l++
			}
		}
		highs[i] = h
		lows[i] = l
	}
	return map[string][]float64{
		"recent_highs":   highs,
		"recent_lows":    lows,
		"trend_strength": PctChange(s.close, window),
	}, nil
}
