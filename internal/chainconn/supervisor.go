package chainconn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// ConnectionFailure means the event stream can no longer be trusted. It is
// the only error that ends the process.
type ConnectionFailure struct {
	Source string
	Err    error
}

func (e *ConnectionFailure) Error() string {
	return fmt.Sprintf("connection failure (%s): %v", e.Source, e.Err)
}

func (e *ConnectionFailure) Unwrap() error { return e.Err }

var (
	ErrSubscriptionClosed = errors.New("subscription closed")
	ErrHeadTimeout        = errors.New("no new head")
)

// Supervisor collects connection health signals. The first failure wins and
// closes Done.
type Supervisor struct {
	done chan struct{}
	once sync.Once

	mu  sync.Mutex
	err *ConnectionFailure
}

func NewSupervisor() *Supervisor {
	return &Supervisor{done: make(chan struct{})}
}

// Done is closed on the first failure.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Err returns the first failure, or nil.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		return nil
	}
	return s.err
}

// Fail records a failure. Calls after the first are ignored.
func (s *Supervisor) Fail(source string, err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = &ConnectionFailure{Source: source, Err: err}
		s.mu.Unlock()
		log.Printf("[fatal] %s: %v", source, err)
		close(s.done)
	})
}

// Watch fails the supervisor when sub reports an error or closes while ctx is
// still live.
func (s *Supervisor) Watch(ctx context.Context, name string, sub ethereum.Subscription) {
	go func() {
		select {
		case <-ctx.Done():
		case err, ok := <-sub.Err():
			if ctx.Err() != nil {
				return
			}
			if !ok || err == nil {
				err = ErrSubscriptionClosed
			}
			s.Fail(name, err)
		}
	}()
}

// WatchHeads fails the supervisor when no header arrives on heads within
// maxSilence. onHead, if set, sees every header. A zero maxSilence only
// forwards headers.
func (s *Supervisor) WatchHeads(ctx context.Context, heads <-chan *types.Header, maxSilence time.Duration, onHead func(*types.Header)) {
	go func() {
		var timeout <-chan time.Time
		var timer *time.Timer
		if maxSilence > 0 {
			timer = time.NewTimer(maxSilence)
			defer timer.Stop()
			timeout = timer.C
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case hdr := <-heads:
				if hdr == nil {
					continue
				}
				if onHead != nil {
					onHead(hdr)
				}
				if timer != nil {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(maxSilence)
				}
			case <-timeout:
				if ctx.Err() != nil {
					return
				}
				s.Fail("heads", fmt.Errorf("%w for %s", ErrHeadTimeout, maxSilence))
				return
			}
		}
	}()
}
