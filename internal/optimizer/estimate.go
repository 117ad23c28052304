// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package optimizer

import (
	"math"
	"math/rand/v2"
	"strings"
	"sync"

	"grimm.is/flowshape/internal/packet"
)

// Settings toggles the optimizations the size estimate accounts for.
type Settings struct {
	HeaderCompression  bool `json:"header_compression"`
	ContentCompression bool `json:"content_compression"`
	Caching            bool `json:"caching"`
}

// minCompressible is the smallest packet that gets per-protocol reductions.
const minCompressible = 64

type span struct{ lo, hi float64 }

type protocolEffect struct {
	header  span // bytes per KB
	content span // bytes per KB
}

var protocolEffects = map[string]protocolEffect{
	"HTTP":     {header: span{10, 20}, content: span{500, 700}},
	"TCP":      {header: span{3, 7}, content: span{50, 150}},
	"UDP":      {header: span{1, 5}, content: span{20, 80}},
	"ETHERNET": {header: span{0, 2}},
	"IP":       {header: span{1, 3}},
	"IPV4":     {header: span{1, 3}},
	"IPV6":     {header: span{1, 3}},
	"TLS":      {header: span{0, 1}, content: span{1, 20}},
	"DNS":      {header: span{3, 7}, content: span{3, 7}},
}

// SizeEstimator attaches an estimated post-optimization length to packets.
// The estimate is a random reduction bounded to [65%, 90%] of the original.
type SizeEstimator struct {
	settings Settings

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSizeEstimator creates an estimator. A nil rng seeds one from the runtime.
func NewSizeEstimator(settings Settings, rng *rand.Rand) *SizeEstimator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &SizeEstimator{settings: settings, rng: rng}
}

// Settings returns the active settings.
func (e *SizeEstimator) Settings() Settings {
	return e.settings
}

// Estimate returns the optimized size of a packet of length bytes.
func (e *SizeEstimator) Estimate(length int, protocols []string) int {
	if length <= 0 {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	size := float64(length)
	reduction := e.uniform(baseReduction(length))

	if length >= minCompressible {
		scale := size / 1000.0
		for _, proto := range protocols {
			effect := protocolEffects[strings.ToUpper(proto)]
			if e.settings.HeaderCompression {
				reduction += e.uniform(effect.header) * scale
			}
			if e.settings.ContentCompression {
				reduction += e.uniform(effect.content) * scale
			}
		}
	}
	if e.settings.Caching {
		reduction += size * e.uniform(span{0.02, 0.10})
	}

	optimized := math.Max(0, size-reduction)
	lo := roundHalfUp(size * 0.65)
	hi := roundHalfUp(size * 0.90)
	return int(math.Max(lo, math.Min(hi, optimized)))
}

// Annotate sets OptimizedLength on every packet of the batch.
func (e *SizeEstimator) Annotate(batch []packet.Shaped) {
	for i := range batch {
		batch[i].SetOptimizedLength(e.Estimate(batch[i].Length, batch[i].Protocols))
	}
}

func (e *SizeEstimator) uniform(s span) float64 {
	return s.lo + e.rng.Float64()*(s.hi-s.lo)
}

func baseReduction(length int) span {
	switch {
	case length < 100:
		return span{1, 3}
	case length < 500:
		return span{10, 50}
	default:
		return span{50, 200}
	}
}

func roundHalfUp(f float64) float64 {
	return math.Floor(f + 0.5)
}
