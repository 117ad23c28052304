// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package patterns

import (
	"sort"

	"github.com/montanaflynn/stats"
	"grimm.is/flowshape/internal/errors"
)

const defaultIterations = 50

// KMeans is Lloyd's algorithm with deterministic seeding: centers start at
// evenly spaced positions of the points sorted by (length, depth), so the same
// batch always yields the same clustering.
type KMeans struct {
	MaxIterations int
}

// NewKMeans returns a KMeans clusterer. iterations <= 0 uses the default.
func NewKMeans(iterations int) *KMeans {
	if iterations <= 0 {
		iterations = defaultIterations
	}
	return &KMeans{MaxIterations: iterations}
}

// Cluster implements Clusterer.
func (km *KMeans) Cluster(points []Point, k int) ([]int, []Point, error) {
	if k <= 0 {
		return nil, nil, errors.Errorf(errors.KindValidation, "k must be positive, got %d", k)
	}
	if len(points) < k {
		return nil, nil, errors.Errorf(errors.KindValidation, "need at least %d points, got %d", k, len(points))
	}

	centers := seedCenters(points, k)
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}

	for iter := 0; iter < km.MaxIterations; iter++ {
		changed := false
		for i, p := range points {
			best, err := nearest(p, centers)
			if err != nil {
				return nil, nil, err
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		if err := recenter(points, labels, centers); err != nil {
			return nil, nil, err
		}
	}
	return labels, centers, nil
}

func seedCenters(points []Point, k int) []Point {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Length != sorted[j].Length {
			return sorted[i].Length < sorted[j].Length
		}
		return sorted[i].Depth < sorted[j].Depth
	})

	centers := make([]Point, k)
	for c := 0; c < k; c++ {
		// Midpoint of the c-th of k equal slices.
		idx := (2*c + 1) * len(sorted) / (2 * k)
		centers[c] = sorted[idx]
	}
	return centers
}

func nearest(p Point, centers []Point) (int, error) {
	best := 0
	bestDist := -1.0
	for c, center := range centers {
		d, err := stats.EuclideanDistance(
			stats.Float64Data{p.Depth, p.Length},
			stats.Float64Data{center.Depth, center.Length},
		)
		if err != nil {
			return 0, errors.Wrap(err, errors.KindInternal, "distance")
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, nil
}

// recenter moves each center to the mean of its members. Empty clusters keep
// their previous center.
func recenter(points []Point, labels []int, centers []Point) error {
	depths := make([]stats.Float64Data, len(centers))
	lengths := make([]stats.Float64Data, len(centers))
	for i, label := range labels {
		depths[label] = append(depths[label], points[i].Depth)
		lengths[label] = append(lengths[label], points[i].Length)
	}
	for c := range centers {
		if len(depths[c]) == 0 {
			continue
		}
		d, err := stats.Mean(depths[c])
		if err != nil {
			return errors.Wrap(err, errors.KindInternal, "mean depth")
		}
		l, err := stats.Mean(lengths[c])
		if err != nil {
			return errors.Wrap(err, errors.KindInternal, "mean length")
		}
		centers[c] = Point{Depth: d, Length: l}
	}
	return nil
}
