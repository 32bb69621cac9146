// Package policy implements the three page-temperature classification
// strategies the scanner chooses between at init: LRU, Frequency, and
// Hybrid.
package policy

import "fmt"

// Status is a page's classified temperature.
type Status int

const (
	Hot Status = iota
	Warm
	Cold
)

func (s Status) String() string {
	switch s {
	case Hot:
		return "HOT"
	case Warm:
		return "WARM"
	case Cold:
		return "COLD"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Strategy classifies a page's temperature from its last-access timestamp
// (epoch ms) and access count, as of nowMs. Each of LRU, Frequency, and
// Hybrid below is a distinct concrete type implementing Strategy — a tagged
// union of strategies, not a class hierarchy.
type Strategy interface {
	Classify(nowMs, lastMs int64, count uint64) Status
}

// LRU classifies purely by recency.
type LRU struct {
	HotMs  int64
	ColdMs int64
}

func (p LRU) Classify(nowMs, lastMs int64, _ uint64) Status {
	age := nowMs - lastMs
	switch {
	case age <= p.HotMs:
		return Hot
	case age >= p.ColdMs:
		return Cold
	default:
		return Warm
	}
}

// Frequency classifies purely by access count.
type Frequency struct {
	HotCount  uint64
	ColdCount uint64
}

func (p Frequency) Classify(_, _ int64, count uint64) Status {
	switch {
	case count >= p.HotCount:
		return Hot
	case count <= p.ColdCount:
		return Cold
	default:
		return Warm
	}
}

// Hybrid combines recency and frequency indicators, each positively
// weighted. HOT requires the weighted sum of the hot indicators to reach at
// least half of the total weight; COLD applies the symmetric rule. A page
// that satisfies both the hot and cold thresholds (e.g. recency says hot,
// frequency says cold) is classified HOT: hot wins ties.
type Hybrid struct {
	HotMs           int64
	ColdMs          int64
	HotCount        uint64
	ColdCount       uint64
	RecencyWeight   float64
	FrequencyWeight float64
}

func (p Hybrid) Classify(nowMs, lastMs int64, count uint64) Status {
	totalWeight := p.RecencyWeight + p.FrequencyWeight
	age := nowMs - lastMs

	var hotWeight, coldWeight float64
	if age <= p.HotMs {
		hotWeight += p.RecencyWeight
	}
	if age >= p.ColdMs {
		coldWeight += p.RecencyWeight
	}
	if count >= p.HotCount {
		hotWeight += p.FrequencyWeight
	}
	if count <= p.ColdCount {
		coldWeight += p.FrequencyWeight
	}

	isHot := totalWeight > 0 && hotWeight >= totalWeight/2
	isCold := totalWeight > 0 && coldWeight >= totalWeight/2

	switch {
	case isHot:
		return Hot
	case isCold:
		return Cold
	default:
		return Warm
	}
}
