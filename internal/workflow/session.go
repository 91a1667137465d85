package workflow

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kiteline/scorescribe/internal/model"
	"github.com/kiteline/scorescribe/internal/parse"
)

// ErrNoSession is returned when a submitter has no pending session, or the
// pending session has timed out.
var ErrNoSession = eris.New("no pending submission")

// session is a parked submission awaiting confirm, correction, or conflict
// resolution. At most one exists per submitter; it serializes that
// submitter's writes.
type session struct {
	submitterID string
	communityID string
	window      *model.EventWindow
	cls         parse.Classification
	row         model.ParsedRow
	origin      string
	force       bool
	createdAt   time.Time
}

// sessionTable holds pending sessions keyed by submitter. Expiry is lazy:
// stale sessions are dropped when next touched, in line with how window
// expiry works.
type sessionTable struct {
	mu      sync.Mutex
	pending map[string]*session
	timeout time.Duration
}

func newSessionTable(timeout time.Duration) *sessionTable {
	return &sessionTable{
		pending: make(map[string]*session),
		timeout: timeout,
	}
}

// put parks a session, replacing any prior one for the submitter.
func (t *sessionTable) put(s *session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[s.submitterID] = s
}

// take removes and returns the submitter's session, or ErrNoSession when
// absent or expired.
func (t *sessionTable) take(submitterID string, now time.Time) (*session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.pending[submitterID]
	if !ok {
		return nil, ErrNoSession
	}
	delete(t.pending, submitterID)
	if now.Sub(s.createdAt) > t.timeout {
		return nil, ErrNoSession
	}
	return s, nil
}

// peek returns the session without removing it, dropping it if expired.
func (t *sessionTable) peek(submitterID string, now time.Time) (*session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.pending[submitterID]
	if !ok {
		return nil, false
	}
	if now.Sub(s.createdAt) > t.timeout {
		delete(t.pending, submitterID)
		return nil, false
	}
	return s, true
}
