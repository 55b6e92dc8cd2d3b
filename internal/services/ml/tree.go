package ml

import (
	"math/rand"
	"sort"
)

// Node is a flattened tree node. Leaves have Left == -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// Tree is a binary regression tree. Rows go left when x[Feature] <= Threshold.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// binned is a quantized copy of the training matrix used for split search.
// Bin b of feature f holds values <= cuts[f][b]; the last bin holds the rest.
type binned struct {
	bins [][]uint8
	cuts [][]float64
}

func binMatrix(rows [][]float64, maxBins int) *binned {
	if maxBins < 2 || maxBins > 256 {
		maxBins = 256
	}
	nf := 0
	if len(rows) > 0 {
		nf = len(rows[0])
	}
	b := &binned{bins: make([][]uint8, nf), cuts: make([][]float64, nf)}
	values := make([]float64, len(rows))
	for f := 0; f < nf; f++ {
		for i, row := range rows {
			values[i] = row[f]
		}
		b.cuts[f] = featureCuts(values, maxBins)
		col := make([]uint8, len(rows))
		for i, row := range rows {
			col[i] = uint8(sort.SearchFloat64s(b.cuts[f], row[f]))
		}
		b.bins[f] = col
	}
	return b
}

func featureCuts(values []float64, maxBins int) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	uniq := sorted[:0:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			uniq = append(uniq, v)
		}
	}
	if len(uniq) <= 1 {
		return nil
	}
	var cuts []float64
	if len(uniq) <= maxBins {
		for i := 1; i < len(uniq); i++ {
			cuts = append(cuts, (uniq[i-1]+uniq[i])/2)
		}
		return cuts
	}
	for k := 1; k < maxBins; k++ {
		v := sorted[k*len(sorted)/maxBins]
		if len(cuts) == 0 || v > cuts[len(cuts)-1] {
			cuts = append(cuts, v)
		}
	}
	return cuts
}

type treeParams struct {
	maxDepth       int
	minSamplesLeaf int
	minChildWeight float64
	lambda         float64
	maxFeatures    int // 0 means every feature
}

// treeBuilder grows a tree from per-sample gradients and hessians using the
// second order gain G^2/(H+lambda). With g = -y, h = 1 and lambda = 0 this is
// plain variance reduction and leaves hold the mean target.
type treeBuilder struct {
	data       *binned
	g, h       []float64
	params     treeParams
	rng        *rand.Rand
	nodes      []Node
	importance []float64
}

func buildTree(data *binned, samples []int, g, h []float64, p treeParams, rng *rand.Rand, importance []float64) *Tree {
	b := &treeBuilder{data: data, g: g, h: h, params: p, rng: rng, importance: importance}
	b.grow(samples, 0)
	return &Tree{Nodes: b.nodes}
}

func (b *treeBuilder) leafValue(gSum, hSum float64) float64 {
	d := hSum + b.params.lambda
	if d == 0 {
		return 0
	}
	return -gSum / d
}

func (b *treeBuilder) score(gSum, hSum float64) float64 {
	d := hSum + b.params.lambda
	if d == 0 {
		return 0
	}
	return gSum * gSum / d
}

func (b *treeBuilder) features() []int {
	nf := len(b.data.bins)
	if b.params.maxFeatures <= 0 || b.params.maxFeatures >= nf {
		all := make([]int, nf)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(nf)[:b.params.maxFeatures]
}

func (b *treeBuilder) grow(samples []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1})

	var gSum, hSum float64
	for _, s := range samples {
		gSum += b.g[s]
		hSum += b.h[s]
	}
	b.nodes[idx].Value = b.leafValue(gSum, hSum)

	minLeaf := b.params.minSamplesLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}
	if depth >= b.params.maxDepth || len(samples) < 2*minLeaf {
		return idx
	}

	parent := b.score(gSum, hSum)
	bestGain := 1e-12
	bestFeature, bestBin := -1, -1

	var gHist, hHist [256]float64
	var cHist [256]int
	for _, f := range b.features() {
		nb := len(b.data.cuts[f]) + 1
		if nb < 2 {
			continue
		}
		for i := 0; i < nb; i++ {
			gHist[i], hHist[i], cHist[i] = 0, 0, 0
		}
		col := b.data.bins[f]
		for _, s := range samples {
			bin := col[s]
			gHist[bin] += b.g[s]
			hHist[bin] += b.h[s]
			cHist[bin]++
		}
		var gl, hl float64
		var cl int
		for bin := 0; bin < nb-1; bin++ {
			gl += gHist[bin]
			hl += hHist[bin]
			cl += cHist[bin]
			cr := len(samples) - cl
			if cl < minLeaf {
				continue
			}
			if cr < minLeaf {
				break
			}
			hr := hSum - hl
			if hl < b.params.minChildWeight || hr < b.params.minChildWeight {
				continue
			}
			gain := b.score(gl, hl) + b.score(gSum-gl, hr) - parent
			if gain > bestGain {
				bestGain, bestFeature, bestBin = gain, f, bin
			}
		}
	}
	if bestFeature < 0 {
		return idx
	}

	col := b.data.bins[bestFeature]
	var left, right []int
	for _, s := range samples {
		if int(col[s]) <= bestBin {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	if b.importance != nil {
		b.importance[bestFeature] += bestGain
	}
	b.nodes[idx].Feature = bestFeature
	b.nodes[idx].Threshold = b.data.cuts[bestFeature][bestBin]
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[idx].Left = l
	b.nodes[idx].Right = r
	return idx
}
