package session

import "errors"

type State string

const (
	StateNotStarted State = "not_started"
	StateStarting   State = "starting"
	StateActive     State = "active"
	StatePaused     State = "paused"
	StateStopping   State = "stopping"
	StateEnded      State = "ended"
	StateFailed     State = "failed"
)

var (
	ErrSessionActive = errors.New("a session is already active")
	ErrNoSession     = errors.New("no active session")
	ErrAlreadyPaused = errors.New("session already paused")
	ErrNotPaused     = errors.New("session not paused")
	ErrStopping      = errors.New("session is stopping")
)

// Stats is the 1 Hz live view of the running session.
type Stats struct {
	SessionID    string  `json:"session_id"`
	State        State   `json:"state"`
	ElapsedSec   int64   `json:"elapsed_sec"`
	DistanceM    float64 `json:"distance_m"`
	PaceSecPerKm float64 `json:"pace_sec_per_km"`
	SpeedMps     float64 `json:"speed_mps"`
	Calories     float64 `json:"calories"`
	Paused       bool    `json:"paused"`
}

// Summary carries the finalized numbers reported to the server at stop.
type Summary struct {
	SessionID   string  `json:"session_id"`
	DistanceM   float64 `json:"distance_m"`
	ElapsedSec  int64   `json:"elapsed_sec"`
	AvgSpeedKmh float64 `json:"average_speed_kmh"`
	Calories    float64 `json:"calories"`
}
