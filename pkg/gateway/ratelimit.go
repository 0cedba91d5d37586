package gateway

import (
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ActorLimiter enforces a per-actor token bucket rate limit, keyed by
// actor id when an authenticated principal is present, falling back to
// remote IP otherwise (spec.md §4.1). Grounded on the teacher's
// pkg/api/middleware.go:GlobalRateLimiter, generalized from per-IP to
// per-actor and parameterized on policy instead of a single global rate.
type ActorLimiter struct {
	mu       sync.Mutex
	visitors map[string]*actorVisitor
	rps      rate.Limit
	burst    int
}

type actorVisitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewActorLimiter creates a limiter allowing rpm requests per minute per
// actor, with the given burst. A cleanup goroutine evicts actors idle for
// over 3 minutes so the visitor map does not grow unbounded.
func NewActorLimiter(rpm, burst int) *ActorLimiter {
	l := &ActorLimiter{
		visitors: make(map[string]*actorVisitor),
		rps:      rate.Limit(float64(rpm) / 60.0),
		burst:    burst,
	}
	go l.evictStale()
	return l
}

func (l *ActorLimiter) evictStale() {
	for {
		time.Sleep(time.Minute)
		l.mu.Lock()
		for id, v := range l.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(l.visitors, id)
			}
		}
		l.mu.Unlock()
	}
}

func (l *ActorLimiter) visitor(actorID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[actorID]
	if !ok {
		v = &actorVisitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[actorID] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// Allow reports whether actorID may proceed right now.
func (l *ActorLimiter) Allow(actorID string) bool {
	return l.visitor(actorID).Allow()
}

// ActorID derives the rate-limit key from an authenticated subject, or the
// request's remote IP when unauthenticated.
func ActorID(authenticatedSubject, remoteAddr string) string {
	if authenticatedSubject != "" {
		return "actor:" + authenticatedSubject
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = strings.TrimSuffix(strings.TrimPrefix(remoteAddr, "["), "]")
	}
	return "ip:" + host
}
