package align

import (
	"context"
	"fmt"
	"math"
)

type move int8

// Move order doubles as the final tie-break: a diagonal match beats
// skipping a source sentence, which beats skipping a target sentence.
const (
	moveMatch move = iota
	moveSkipSource
	moveSkipTarget
	moveNone
)

type cell struct {
	cost  float64 // total path cost
	drift float64 // sum of |i/n − j/m| over matched pairs
	conf  float64 // sum of match scores
	move  move
}

// better reports whether a beats b. Ties are broken, in order, by lower
// cost, lower drift from the proportional diagonal, higher summed
// confidence and move order.
func better(a, b cell, eps float64) bool {
	switch {
	case a.cost < b.cost-eps:
		return true
	case a.cost > b.cost+eps:
		return false
	case a.drift < b.drift-eps:
		return true
	case a.drift > b.drift+eps:
		return false
	case a.conf > b.conf+eps:
		return true
	case a.conf < b.conf-eps:
		return false
	}
	return a.move < b.move
}

func (e *Engine) byDynamic(ctx context.Context, s *scorer) ([]Entry, error) {
	n, m := s.n, s.m
	gap := e.cfg.GapPenalty
	eps := e.cfg.TieEpsilon

	score := make([][]float64, n)
	for i := range score {
		score[i] = make([]float64, m)
	}

	grid := make([][]cell, n+1)
	for i := range grid {
		grid[i] = make([]cell, m+1)
	}
	grid[0][0].move = moveNone
	for i := 1; i <= n; i++ {
		grid[i][0] = cell{cost: float64(i) * gap, move: moveSkipSource}
	}
	for j := 1; j <= m; j++ {
		grid[0][j] = cell{cost: float64(j) * gap, move: moveSkipTarget}
	}

	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("alignment cancelled: %w", err)
		}
		for j := 1; j <= m; j++ {
			sc := s.score(i-1, j-1)
			score[i-1][j-1] = sc

			d := grid[i-1][j-1]
			best := cell{
				cost:  d.cost + (1 - sc),
				drift: d.drift + math.Abs(float64(i-1)/float64(n)-float64(j-1)/float64(m)),
				conf:  d.conf + sc,
				move:  moveMatch,
			}

			u := grid[i-1][j]
			up := cell{cost: u.cost + gap, drift: u.drift, conf: u.conf, move: moveSkipSource}
			if better(up, best, eps) {
				best = up
			}

			l := grid[i][j-1]
			left := cell{cost: l.cost + gap, drift: l.drift, conf: l.conf, move: moveSkipTarget}
			if better(left, best, eps) {
				best = left
			}

			grid[i][j] = best
		}
	}

	entries := make([]Entry, 0, n)
	i, j := n, m
	for i > 0 || j > 0 {
		switch grid[i][j].move {
		case moveMatch:
			entries = append(entries, Entry{Source: i - 1, Target: j - 1, Confidence: score[i-1][j-1], Method: MethodDynamic})
			i, j = i-1, j-1
		case moveSkipSource:
			entries = append(entries, Entry{Source: i - 1, Target: NoTarget, Method: MethodDynamic})
			i--
		case moveSkipTarget:
			j--
		default:
			return nil, fmt.Errorf("alignment backtrace reached an empty cell at (%d,%d)", i, j)
		}
	}

	for a, b := 0, len(entries)-1; a < b; a, b = a+1, b-1 {
		entries[a], entries[b] = entries[b], entries[a]
	}
	return entries, nil
}
