package screen

import (
	"image"
	"math"
	"sort"

	"github.com/ConserveLee/snapbuy/internal/constants"
)

// MatchResult is the best placement of a template inside a frame.
// Position is only meaningful when Found is true.
type MatchResult struct {
	Position image.Point // Top-left, frame-local
	Score    float64     // Normalised correlation clamped to [0,1]
	Found    bool
}

// Center returns the frame-local center of the matched template.
func (r MatchResult) Center(t Template) image.Point {
	return image.Point{X: r.Position.X + t.Width()/2, Y: r.Position.Y + t.Height()/2}
}

// Matcher scores every translation of a template inside a frame with the
// mean-subtracted normalised cross-correlation over R,G,B and keeps the best.
type Matcher struct {
	// WorkBudget bounds frame area * template area for an exhaustive pass.
	// Larger searches run coarse-to-fine over a 2x pyramid.
	WorkBudget  int
	Candidates  int // Positions carried from one pyramid level to the next
	RefineRange int // Pixels searched around each carried position
	MinSide     int // Smallest template side allowed at a coarse level
}

// NewMatcher returns a matcher with the default search budget
func NewMatcher() *Matcher {
	return &Matcher{
		WorkBudget:  constants.CoarseSearchWork,
		Candidates:  constants.CoarseCandidates,
		RefineRange: constants.CoarseRefineRange,
		MinSide:     8,
	}
}

var defaultMatcher = NewMatcher()

// Match locates t inside f with the default matcher.
func Match(t Template, f *Frame, threshold float64) MatchResult {
	return defaultMatcher.Match(t, f, threshold)
}

// Match locates the best-scoring placement of t inside f. found is
// score > threshold; a miss is a normal outcome, not an error.
func (m *Matcher) Match(t Template, f *Frame, threshold float64) MatchResult {
	if f == nil || f.Pixels == nil || t.Pixels == nil {
		return MatchResult{}
	}
	fp := newPlane(f.Pixels)
	tp := newPlane(t.Pixels)
	if tp.w == 0 || tp.h == 0 || tp.w > fp.w || tp.h > fp.h {
		return MatchResult{}
	}

	// Build pyramids until an exhaustive pass fits the budget. A level is
	// only added while the halved template keeps its contrast: fine 1px
	// structure averages to flat and would be invisible there.
	frames := []*plane{fp}
	tmpls := []*plane{tp}
	fullVar := tp.variance()
	for {
		top, tt := frames[len(frames)-1], tmpls[len(tmpls)-1]
		if m.WorkBudget <= 0 || top.area()*tt.area() <= m.WorkBudget {
			break
		}
		if tt.w/2 < m.MinSide || tt.h/2 < m.MinSide {
			break
		}
		next := tt.half()
		if next.variance() < minCoarseContrast*fullVar {
			break
		}
		frames = append(frames, top.half())
		tmpls = append(tmpls, next)
	}

	level := len(frames) - 1
	best := exhaustive(frames[level], tmpls[level], m.keep(level))
	for level--; level >= 0; level-- {
		best = m.refine(frames[level], tmpls[level], best, m.keep(level))
	}

	// The coarse levels may have led the search away from the real match.
	if len(frames) > 1 && (len(best) == 0 || best[0].score <= threshold) {
		best = exhaustive(fp, tp, 1)
	}

	if len(best) == 0 {
		return MatchResult{}
	}
	top := best[0]
	return MatchResult{Position: top.pos, Score: top.score, Found: top.score > threshold}
}

// minCoarseContrast is the share of per-pixel template variance a pyramid
// level must retain to be searched.
const minCoarseContrast = 0.25

func (m *Matcher) keep(level int) int {
	if level == 0 || m.Candidates < 1 {
		return 1
	}
	return m.Candidates
}

// refine rescores the neighbourhood of each coarse candidate at the next finer level.
func (m *Matcher) refine(fp, tp *plane, coarse []candidate, keep int) []candidate {
	it := newIntegral(fp)
	pt := prepareTemplate(tp)
	top := newTopK(keep)
	r := m.RefineRange + 1
	for _, c := range coarse {
		cx, cy := c.pos.X*2, c.pos.Y*2
		for y := cy - r; y <= cy+r; y++ {
			if y < 0 || y > fp.h-tp.h {
				continue
			}
			for x := cx - r; x <= cx+r; x++ {
				if x < 0 || x > fp.w-tp.w {
					continue
				}
				top.offer(image.Point{X: x, Y: y}, score(fp, it, pt, x, y))
			}
		}
	}
	return top.sorted()
}

func exhaustive(fp, tp *plane, keep int) []candidate {
	it := newIntegral(fp)
	pt := prepareTemplate(tp)
	top := newTopK(keep)
	for y := 0; y <= fp.h-tp.h; y++ {
		for x := 0; x <= fp.w-tp.w; x++ {
			top.offer(image.Point{X: x, Y: y}, score(fp, it, pt, x, y))
		}
	}
	return top.sorted()
}

// plane stores the three colour channels as separate float rows.
type plane struct {
	w, h int
	c    [3][]float64
}

func newPlane(img *image.RGBA) *plane {
	b := img.Bounds()
	p := &plane{w: b.Dx(), h: b.Dy()}
	for ch := range p.c {
		p.c[ch] = make([]float64, p.w*p.h)
	}
	for y := 0; y < p.h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		row := img.Pix[off : off+p.w*4]
		for x := 0; x < p.w; x++ {
			i := y*p.w + x
			p.c[0][i] = float64(row[x*4])
			p.c[1][i] = float64(row[x*4+1])
			p.c[2][i] = float64(row[x*4+2])
		}
	}
	return p
}

func (p *plane) area() int { return p.w * p.h }

// variance is the per-pixel variance summed over the channels.
func (p *plane) variance() float64 {
	n := float64(p.area())
	if n == 0 {
		return 0
	}
	var v float64
	for ch := range p.c {
		var sum, sq float64
		for _, x := range p.c[ch] {
			sum += x
			sq += x * x
		}
		v += sq/n - (sum/n)*(sum/n)
	}
	return v
}

// half downsamples with a 2x2 box filter.
func (p *plane) half() *plane {
	h := &plane{w: p.w / 2, h: p.h / 2}
	for ch := range h.c {
		src := p.c[ch]
		dst := make([]float64, h.w*h.h)
		for y := 0; y < h.h; y++ {
			r0 := (2 * y) * p.w
			r1 := r0 + p.w
			for x := 0; x < h.w; x++ {
				dst[y*h.w+x] = (src[r0+2*x] + src[r0+2*x+1] + src[r1+2*x] + src[r1+2*x+1]) / 4
			}
		}
		h.c[ch] = dst
	}
	return h
}

// integral holds summed-area tables of values and squared values per channel.
type integral struct {
	stride int
	sum    [3][]float64
	sq     [3][]float64
}

func newIntegral(p *plane) *integral {
	it := &integral{stride: p.w + 1}
	for ch := range it.sum {
		sum := make([]float64, (p.w+1)*(p.h+1))
		sq := make([]float64, (p.w+1)*(p.h+1))
		src := p.c[ch]
		for y := 0; y < p.h; y++ {
			var rowSum, rowSq float64
			for x := 0; x < p.w; x++ {
				v := src[y*p.w+x]
				rowSum += v
				rowSq += v * v
				sum[(y+1)*it.stride+x+1] = sum[y*it.stride+x+1] + rowSum
				sq[(y+1)*it.stride+x+1] = sq[y*it.stride+x+1] + rowSq
			}
		}
		it.sum[ch] = sum
		it.sq[ch] = sq
	}
	return it
}

func (it *integral) rect(table []float64, x, y, w, h int) float64 {
	s := it.stride
	return table[(y+h)*s+x+w] - table[y*s+x+w] - table[(y+h)*s+x] + table[y*s+x]
}

// preparedTemplate is the template with each channel's mean removed.
type preparedTemplate struct {
	p    *plane
	zero [3][]float64
	mean [3]float64
	ss   float64 // Sum of squared deviations over all channels
}

func prepareTemplate(p *plane) *preparedTemplate {
	pt := &preparedTemplate{p: p}
	n := float64(p.area())
	for ch := range pt.zero {
		var sum float64
		for _, v := range p.c[ch] {
			sum += v
		}
		mean := sum / n
		zero := make([]float64, len(p.c[ch]))
		for i, v := range p.c[ch] {
			d := v - mean
			zero[i] = d
			pt.ss += d * d
		}
		pt.mean[ch] = mean
		pt.zero[ch] = zero
	}
	return pt
}

const flatEpsilon = 1e-6

// score computes the correlation of the template placed at (x,y).
func score(fp *plane, it *integral, pt *preparedTemplate, x, y int) float64 {
	tw, th := pt.p.w, pt.p.h
	n := float64(tw * th)

	var windowSS float64
	var windowMean [3]float64
	for ch := 0; ch < 3; ch++ {
		s := it.rect(it.sum[ch], x, y, tw, th)
		q := it.rect(it.sq[ch], x, y, tw, th)
		windowSS += q - s*s/n
		windowMean[ch] = s / n
	}

	if pt.ss < flatEpsilon || windowSS < flatEpsilon {
		// Correlation is undefined for flat content: accept only identical flat patches.
		if pt.ss < flatEpsilon && windowSS < flatEpsilon {
			for ch := 0; ch < 3; ch++ {
				if math.Abs(windowMean[ch]-pt.mean[ch]) > 0.5 {
					return 0
				}
			}
			return 1
		}
		return 0
	}

	var num float64
	for ch := 0; ch < 3; ch++ {
		src := fp.c[ch]
		tz := pt.zero[ch]
		for ty := 0; ty < th; ty++ {
			frow := src[(y+ty)*fp.w+x : (y+ty)*fp.w+x+tw]
			trow := tz[ty*tw : ty*tw+tw]
			for tx, tv := range trow {
				num += tv * frow[tx]
			}
		}
	}

	r := num / math.Sqrt(pt.ss*windowSS)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

type candidate struct {
	pos   image.Point
	score float64
}

// topK keeps the k best positions, merging neighbours closer than two pixels.
type topK struct {
	k     int
	items []candidate
}

func newTopK(k int) *topK {
	return &topK{k: k, items: make([]candidate, 0, k)}
}

func (t *topK) offer(p image.Point, s float64) {
	for i, c := range t.items {
		if abs(c.pos.X-p.X) <= 2 && abs(c.pos.Y-p.Y) <= 2 {
			if s > c.score {
				t.items[i] = candidate{pos: p, score: s}
			}
			return
		}
	}
	if len(t.items) < t.k {
		t.items = append(t.items, candidate{pos: p, score: s})
		return
	}
	worst := 0
	for i, c := range t.items {
		if c.score < t.items[worst].score {
			worst = i
		}
	}
	if s > t.items[worst].score {
		t.items[worst] = candidate{pos: p, score: s}
	}
}

func (t *topK) sorted() []candidate {
	out := append([]candidate(nil), t.items...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].pos.Y != out[j].pos.Y {
			return out[i].pos.Y < out[j].pos.Y
		}
		return out[i].pos.X < out[j].pos.X
	})
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
