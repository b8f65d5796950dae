package recovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"runsync-agent/internal/activity"
	"runsync-agent/internal/session"
	"runsync-agent/internal/shared/geo"
)

type API interface {
	OpenSession(ctx context.Context, userID string) (activity.Session, error)
}

type Tracker interface {
	Restore(rec session.Restored) (session.Stats, error)
}

// Reconciler resolves "is there already an open session for this user"
// against the server before any new start is allowed. A failed query is
// not the same as no open session; the reconciler stays unresolved and
// must be retried.
type Reconciler struct {
	api    API
	userID string

	mu   sync.Mutex
	done bool
}

func New(api API, userID string) *Reconciler {
	return &Reconciler{api: api, userID: userID}
}

// Ready reports whether reconciliation has resolved.
func (r *Reconciler) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Run queries the server once and, when an open session exists, resumes
// it on the tracker. Distance is recomputed from the stored route
// samples; a server-reported distance field may be stale and is ignored.
func (r *Reconciler) Run(ctx context.Context, tracker Tracker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil
	}

	sess, err := r.api.OpenSession(ctx, r.userID)
	if errors.Is(err, activity.ErrNoOpenSession) {
		r.done = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	rec := rebuild(sess)
	if _, err := tracker.Restore(rec); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	log.Printf("recovered open session %s: %.0fm over %d samples",
		sess.ID, rec.DistanceM, len(sess.RouteSamples))
	r.done = true
	return nil
}

// rebuild reconstructs tracker state from a server record. Sequence gaps
// mean partial route loss, not an error; the distance uses whatever
// samples survived, in sequence order.
func rebuild(sess activity.Session) session.Restored {
	samples := append([]activity.RouteSample(nil), sess.RouteSamples...)
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Seq < samples[j].Seq
	})

	points := make([]geo.Point, len(samples))
	for i, s := range samples {
		points[i] = geo.Point{Lat: s.Lat, Lng: s.Lng}
	}

	rec := session.Restored{
		SessionID: sess.ID,
		StartedAt: sess.StartedAt,
		DistanceM: geo.TotalM(points),
		NextSeq:   1,
	}
	if len(samples) > 0 {
		last := samples[len(samples)-1]
		rec.NextSeq = last.Seq + 1
		rec.LastPoint = &geo.Point{Lat: last.Lat, Lng: last.Lng}
	}
	return rec
}
