package uploader

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"runsync-agent/internal/activity"
	"runsync-agent/internal/transport"
)

type Sender interface {
	AppendSample(ctx context.Context, sessionID string, sample activity.RouteSample) error
}

// Uploader ships route samples to the server from a single worker.
// Enqueue never blocks the caller: when the queue is full the sample is
// dropped, and a failed upload is logged and forgotten. The route is
// supplementary data; a gap is partial loss, not a session error.
type Uploader struct {
	sender  Sender
	timeout time.Duration
	onAuth  func(error)

	mu     sync.Mutex
	closed bool
	queue  chan job
	done   chan struct{}
}

type job struct {
	sessionID string
	sample    activity.RouteSample
}

// New starts the worker. onAuth, when non-nil, is invoked on an upload
// failure that demands re-authentication, so the session owner can fail
// the session instead of silently dropping every remaining sample.
func New(sender Sender, timeout time.Duration, buffer int, onAuth func(error)) *Uploader {
	if buffer <= 0 {
		buffer = 128
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	u := &Uploader{
		sender:  sender,
		timeout: timeout,
		onAuth:  onAuth,
		queue:   make(chan job, buffer),
		done:    make(chan struct{}),
	}
	go u.run()
	return u
}

func (u *Uploader) Enqueue(sessionID string, sample activity.RouteSample) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return
	}
	select {
	case u.queue <- job{sessionID: sessionID, sample: sample}:
	default:
		log.Printf("route queue full, dropping sample %d", sample.Seq)
	}
}

func (u *Uploader) run() {
	defer close(u.done)
	for j := range u.queue {
		ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
		err := u.sender.AppendSample(ctx, j.sessionID, j.sample)
		cancel()
		if err == nil {
			continue
		}
		log.Printf("route upload failed for sample %d: %v", j.sample.Seq, err)
		if u.onAuth != nil && errors.Is(err, transport.ErrReauthenticate) {
			u.onAuth(err)
		}
	}
}

// Close drains queued samples and stops the worker.
func (u *Uploader) Close() {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		<-u.done
		return
	}
	u.closed = true
	close(u.queue)
	u.mu.Unlock()
	<-u.done
}
