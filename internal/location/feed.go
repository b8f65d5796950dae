package location

import "sync"

// Fix is one position report pushed in by the platform's location source.
type Fix struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	SpeedMps  float64 `json:"speed_mps,omitempty"`
	AltitudeM float64 `json:"altitude_m,omitempty"`
}

// Feed holds the most recent fix. Capture ticks read the last known fix;
// before the first report Current returns false and the tick is skipped.
type Feed struct {
	mu  sync.RWMutex
	fix Fix
	has bool
}

func NewFeed() *Feed {
	return &Feed{}
}

func (f *Feed) Update(fix Fix) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fix = fix
	f.has = true
}

func (f *Feed) Current() (Fix, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.fix, f.has
}
