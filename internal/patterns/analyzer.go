// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package patterns attaches descriptive traffic-pattern metadata to a batch by
// clustering packets on (protocol depth, length). The result never affects
// shaping decisions.
package patterns

import (
	"grimm.is/flowshape/internal/errors"
	"grimm.is/flowshape/internal/packet"
)

// Point is one feature vector.
type Point struct {
	Depth  float64 `json:"depth"`
	Length float64 `json:"length"`
}

// Cluster summarizes one cluster of a batch.
type Cluster struct {
	ID     int   `json:"id"`
	Center Point `json:"center"`
	Count  int   `json:"count"`
}

// Patterns is the metadata produced for a batch. Empty when clustering was
// skipped or failed.
type Patterns struct {
	K        int       `json:"k"`
	Clusters []Cluster `json:"clusters,omitempty"`
}

// Empty reports whether no pattern metadata is present.
func (p Patterns) Empty() bool {
	return len(p.Clusters) == 0
}

// Clusterer partitions points into k clusters. It returns one label per point
// and the k centers.
type Clusterer interface {
	Cluster(points []Point, k int) (labels []int, centers []Point, err error)
}

// MaxClusters bounds k regardless of batch size.
const MaxClusters = 3

// Analyzer assigns cluster ids to shaped packets.
type Analyzer struct {
	clusterer Clusterer
}

// NewAnalyzer creates an analyzer. A nil clusterer uses KMeans with defaults.
func NewAnalyzer(c Clusterer) *Analyzer {
	if c == nil {
		c = NewKMeans(0)
	}
	return &Analyzer{clusterer: c}
}

// ClusterCount is min(3, max(1, n/10)).
func ClusterCount(n int) int {
	return min(MaxClusters, max(1, n/10))
}

// Features builds the feature vector of every packet.
func Features(batch []packet.Shaped) []Point {
	points := make([]Point, len(batch))
	for i := range batch {
		points[i] = Point{Depth: float64(batch[i].Depth()), Length: float64(batch[i].Length)}
	}
	return points
}

// Analyze clusters batch in place. An empty batch yields empty metadata and no
// error. Clusterer failures return empty metadata with the error so the caller
// can log it; packets are left without cluster ids in that case.
func (a *Analyzer) Analyze(batch []packet.Shaped) (Patterns, error) {
	n := len(batch)
	if n == 0 {
		return Patterns{}, nil
	}
	k := ClusterCount(n)
	if n < k {
		return Patterns{}, nil
	}

	labels, centers, err := a.clusterer.Cluster(Features(batch), k)
	if err != nil {
		return Patterns{}, errors.Wrap(err, errors.KindInternal, "clustering failed")
	}
	if len(labels) != n || len(centers) != k {
		return Patterns{}, errors.Errorf(errors.KindInternal, "clusterer returned %d labels and %d centers for %d points, k=%d", len(labels), len(centers), n, k)
	}

	out := Patterns{K: k, Clusters: make([]Cluster, k)}
	for i, c := range centers {
		out.Clusters[i] = Cluster{ID: i, Center: c}
	}
	for _, label := range labels {
		if label < 0 || label >= k {
			return Patterns{}, errors.Errorf(errors.KindInternal, "cluster label %d out of range", label)
		}
		out.Clusters[label].Count++
	}
	for i, label := range labels {
		batch[i].SetCluster(label)
	}
	return out, nil
}
