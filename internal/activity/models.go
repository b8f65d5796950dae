package activity

import "time"

// Session is the server-side activity record as the agent sees it.
type Session struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	ChallengeID  string        `json:"challenge_id,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	DistanceM    float64       `json:"distance_m"`
	AvgSpeedKmh  float64       `json:"average_speed_kmh"`
	Calories     float64       `json:"calories"`
	RouteSamples []RouteSample `json:"route_samples,omitempty"`
}

// RouteSample is one GPS fix. Seq is assigned locally at capture time,
// 1-based and strictly increasing within a session; the server orders the
// route by Seq, never by arrival time.
type RouteSample struct {
	Seq        int       `json:"seq"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	SpeedMps   float64   `json:"speed_mps,omitempty"`
	AltitudeM  float64   `json:"altitude_m,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

type CreateSessionInput struct {
	UserID      string    `json:"user_id"`
	ChallengeID string    `json:"challenge_id,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

type FinishSessionInput struct {
	DistanceM   float64   `json:"distance_m"`
	EndedAt     time.Time `json:"ended_at"`
	AvgSpeedKmh float64   `json:"average_speed_kmh"`
	Calories    float64   `json:"calories"`
}
