package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"runsync-agent/internal/activity"
	"runsync-agent/internal/location"
	"runsync-agent/internal/shared/geo"
)

type API interface {
	CreateSession(ctx context.Context, input activity.CreateSessionInput) (activity.Session, error)
	FinishSession(ctx context.Context, sessionID string, input activity.FinishSessionInput) error
}

type Queue interface {
	Enqueue(sessionID string, sample activity.RouteSample)
}

type LocationSource interface {
	Current() (location.Fix, bool)
}

type Broadcaster interface {
	Broadcast(payload []byte)
}

type Options struct {
	API             API
	Queue           Queue
	Location        LocationSource
	Hub             Broadcaster
	CaloriesPerKm   float64
	StatsInterval   time.Duration
	CaptureInterval time.Duration
	RequestTimeout  time.Duration
	Now             func() time.Time
}

// Tracker owns one running session at a time. All session mutation
// happens on a single goroutine that serves lifecycle commands and the
// two periodic ticks, so ticks never race a pause or stop.
type Tracker struct {
	opts Options

	mu    sync.Mutex
	state State
	stats Stats
	cmds  chan command
	done  chan struct{}
}

// live is the loop-owned session record; nothing outside the run
// goroutine touches it after launch.
type live struct {
	sessionID  string
	startedAt  time.Time
	distanceM  float64
	nextSeq    int
	lastPoint  *geo.Point
	samples    []activity.RouteSample
	pausedDur  time.Duration
	pauseStart time.Time
	final      *finalized
}

// finalized freezes the stop-time numbers so a retried finish request
// reports the same values.
type finalized struct {
	summary Summary
	endedAt time.Time
}

type cmdKind int

const (
	cmdPause cmdKind = iota
	cmdResume
	cmdStop
	cmdFatal
)

type command struct {
	kind  cmdKind
	cause error
	reply chan cmdResult
}

type cmdResult struct {
	stats   Stats
	summary Summary
	err     error
}

func New(opts Options) *Tracker {
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = time.Second
	}
	if opts.CaptureInterval <= 0 {
		opts.CaptureInterval = 2 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.CaloriesPerKm <= 0 {
		opts.CaloriesPerKm = 62
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		opts:  opts,
		state: StateNotStarted,
		stats: Stats{State: StateNotStarted},
	}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Start creates the session server-side and begins capture. The start
// timestamp is the client-captured time sent in the create request, not
// the server's receipt time. On failure the tracker returns to
// NotStarted.
func (t *Tracker) Start(ctx context.Context, userID, challengeID string) (Stats, error) {
	t.mu.Lock()
	switch t.state {
	case StateNotStarted, StateEnded, StateFailed:
	default:
		t.mu.Unlock()
		return Stats{}, ErrSessionActive
	}
	t.state = StateStarting
	t.stats = Stats{State: StateStarting}
	t.mu.Unlock()

	startedAt := t.opts.Now()
	cctx, cancel := context.WithTimeout(ctx, t.opts.RequestTimeout)
	sess, err := t.opts.API.CreateSession(cctx, activity.CreateSessionInput{
		UserID:      userID,
		ChallengeID: challengeID,
		StartedAt:   startedAt,
	})
	cancel()
	if err != nil {
		t.mu.Lock()
		t.state = StateNotStarted
		t.stats = Stats{State: StateNotStarted}
		t.mu.Unlock()
		return Stats{}, err
	}

	return t.launch(&live{
		sessionID: sess.ID,
		startedAt: startedAt,
		nextSeq:   1,
	}), nil
}

// Restored describes a session rebuilt from the server by the recovery
// reconciler.
type Restored struct {
	SessionID string
	StartedAt time.Time
	DistanceM float64
	NextSeq   int
	LastPoint *geo.Point
}

// Restore resumes capture on an already-open server-side session without
// creating a new one.
func (t *Tracker) Restore(rec Restored) (Stats, error) {
	t.mu.Lock()
	switch t.state {
	case StateNotStarted, StateEnded, StateFailed:
	default:
		t.mu.Unlock()
		return Stats{}, ErrSessionActive
	}
	t.state = StateStarting
	t.mu.Unlock()

	if rec.NextSeq < 1 {
		rec.NextSeq = 1
	}
	return t.launch(&live{
		sessionID: rec.SessionID,
		startedAt: rec.StartedAt,
		distanceM: rec.DistanceM,
		nextSeq:   rec.NextSeq,
		lastPoint: rec.LastPoint,
	}), nil
}

func (t *Tracker) launch(l *live) Stats {
	cmds := make(chan command)
	done := make(chan struct{})
	snap := t.statsFor(l, StateActive, false, t.opts.Now())

	t.mu.Lock()
	t.state = StateActive
	t.stats = snap
	t.cmds = cmds
	t.done = done
	t.mu.Unlock()

	go t.run(l, cmds, done)
	return snap
}

func (t *Tracker) Pause() (Stats, error) {
	res := t.send(command{kind: cmdPause})
	return res.stats, res.err
}

func (t *Tracker) Resume() (Stats, error) {
	res := t.send(command{kind: cmdResume})
	return res.stats, res.err
}

// Stop halts both periodic ticks, then reports the finalized session to
// the server. On failure the session stays in Stopping and Stop may be
// called again.
func (t *Tracker) Stop(ctx context.Context) (Summary, error) {
	t.mu.Lock()
	cmds, done := t.cmds, t.done
	t.mu.Unlock()
	if cmds == nil {
		return Summary{}, ErrNoSession
	}

	reply := make(chan cmdResult, 1)
	select {
	case cmds <- command{kind: cmdStop, reply: reply}:
	case <-done:
		return Summary{}, ErrNoSession
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.summary, res.err
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}
}

// Fatal abandons the session locally; the server-side record stays open
// for the reconciler to find on next launch.
func (t *Tracker) Fatal(cause error) {
	t.mu.Lock()
	cmds, done := t.cmds, t.done
	t.mu.Unlock()
	if cmds == nil {
		return
	}
	select {
	case cmds <- command{kind: cmdFatal, cause: cause}:
	case <-done:
	}
}

func (t *Tracker) send(cmd command) cmdResult {
	t.mu.Lock()
	cmds, done := t.cmds, t.done
	t.mu.Unlock()
	if cmds == nil {
		return cmdResult{err: ErrNoSession}
	}

	cmd.reply = make(chan cmdResult, 1)
	select {
	case cmds <- cmd:
		return <-cmd.reply
	case <-done:
		return cmdResult{err: ErrNoSession}
	}
}

func (t *Tracker) run(l *live, cmds chan command, done chan struct{}) {
	statsTicker := time.NewTicker(t.opts.StatsInterval)
	captureTicker := time.NewTicker(t.opts.CaptureInterval)
	defer statsTicker.Stop()
	defer captureTicker.Stop()

	paused := false
	stopping := false

	for {
		select {
		case <-statsTicker.C:
			if stopping {
				continue
			}
			state := StateActive
			if paused {
				state = StatePaused
			}
			t.publish(l, state, paused)

		case <-captureTicker.C:
			if paused || stopping {
				continue
			}
			t.capture(l)

		case cmd := <-cmds:
			switch cmd.kind {
			case cmdPause:
				switch {
				case stopping:
					cmd.reply <- cmdResult{err: ErrStopping}
				case paused:
					cmd.reply <- cmdResult{err: ErrAlreadyPaused}
				default:
					paused = true
					l.pauseStart = t.opts.Now()
					cmd.reply <- cmdResult{stats: t.publish(l, StatePaused, true)}
				}

			case cmdResume:
				switch {
				case stopping:
					cmd.reply <- cmdResult{err: ErrStopping}
				case !paused:
					cmd.reply <- cmdResult{err: ErrNotPaused}
				default:
					l.pausedDur += t.opts.Now().Sub(l.pauseStart)
					l.pauseStart = time.Time{}
					paused = false
					cmd.reply <- cmdResult{stats: t.publish(l, StateActive, false)}
				}

			case cmdStop:
				if !stopping {
					// No capture tick may fire once stopping begins.
					statsTicker.Stop()
					captureTicker.Stop()
					if paused {
						now := t.opts.Now()
						l.pausedDur += now.Sub(l.pauseStart)
						l.pauseStart = time.Time{}
						paused = false
					}
					stopping = true
					t.setState(l, StateStopping, false)
				}

				summary, err := t.finish(l)
				if err != nil {
					cmd.reply <- cmdResult{err: err}
					continue
				}
				t.setState(l, StateEnded, false)
				t.publish(l, StateEnded, false)
				cmd.reply <- cmdResult{summary: summary}
				t.shutdown(done)
				return

			case cmdFatal:
				log.Printf("session %s failed: %v", l.sessionID, cmd.cause)
				t.setState(l, StateFailed, false)
				t.publish(l, StateFailed, false)
				t.shutdown(done)
				return
			}
		}
	}
}

func (t *Tracker) capture(l *live) {
	fix, ok := t.opts.Location.Current()
	if !ok {
		return
	}

	point := geo.Point{Lat: fix.Lat, Lng: fix.Lng}
	l.distanceM += geo.IncrementM(l.lastPoint, point)
	l.lastPoint = &point

	sample := activity.RouteSample{
		Seq:        l.nextSeq,
		Lat:        fix.Lat,
		Lng:        fix.Lng,
		SpeedMps:   fix.SpeedMps,
		AltitudeM:  fix.AltitudeM,
		RecordedAt: t.opts.Now(),
	}
	l.nextSeq++
	l.samples = append(l.samples, sample)
	t.opts.Queue.Enqueue(l.sessionID, sample)
}

func (t *Tracker) finish(l *live) (Summary, error) {
	if l.final == nil {
		now := t.opts.Now()
		elapsed := l.elapsedActive(now).Seconds()
		l.final = &finalized{
			endedAt: now,
			summary: Summary{
				SessionID:   l.sessionID,
				DistanceM:   l.distanceM,
				ElapsedSec:  int64(elapsed),
				AvgSpeedKmh: geo.AvgSpeedKmh(l.distanceM, elapsed),
				Calories:    t.calories(l.distanceM),
			},
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.opts.RequestTimeout)
	defer cancel()
	err := t.opts.API.FinishSession(ctx, l.sessionID, activity.FinishSessionInput{
		DistanceM:   l.final.summary.DistanceM,
		EndedAt:     l.final.endedAt,
		AvgSpeedKmh: l.final.summary.AvgSpeedKmh,
		Calories:    l.final.summary.Calories,
	})
	if err != nil {
		return Summary{}, err
	}
	return l.final.summary, nil
}

func (t *Tracker) shutdown(done chan struct{}) {
	t.mu.Lock()
	t.cmds = nil
	t.done = nil
	t.mu.Unlock()
	close(done)
}

func (t *Tracker) publish(l *live, state State, paused bool) Stats {
	snap := t.statsFor(l, state, paused, t.opts.Now())

	t.mu.Lock()
	t.state = state
	t.stats = snap
	t.mu.Unlock()

	if t.opts.Hub != nil {
		payload, _ := json.Marshal(snap)
		t.opts.Hub.Broadcast(payload)
	}
	return snap
}

func (t *Tracker) setState(l *live, state State, paused bool) {
	snap := t.statsFor(l, state, paused, t.opts.Now())
	t.mu.Lock()
	t.state = state
	t.stats = snap
	t.mu.Unlock()
}

func (t *Tracker) statsFor(l *live, state State, paused bool, now time.Time) Stats {
	elapsed := l.elapsedActive(now).Seconds()
	return Stats{
		SessionID:    l.sessionID,
		State:        state,
		ElapsedSec:   int64(elapsed),
		DistanceM:    l.distanceM,
		PaceSecPerKm: geo.PaceSecPerKm(elapsed, l.distanceM),
		SpeedMps:     geo.SpeedMps(l.distanceM, elapsed),
		Calories:     t.calories(l.distanceM),
		Paused:       paused,
	}
}

func (t *Tracker) calories(distanceM float64) float64 {
	return distanceM / 1000 * t.opts.CaloriesPerKm
}

// elapsedActive is wall-clock time since start minus every paused
// interval, including a currently open one.
func (l *live) elapsedActive(now time.Time) time.Duration {
	d := now.Sub(l.startedAt) - l.pausedDur
	if !l.pauseStart.IsZero() {
		d -= now.Sub(l.pauseStart)
	}
	if d < 0 {
		d = 0
	}
	return d
}
