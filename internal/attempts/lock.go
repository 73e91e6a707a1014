package attempts

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	DefaultLockTTL       = 3 * time.Minute
	DefaultMinRetryAfter = 30 * time.Second
	// maxErrorLen bounds the error text stored on a failed attempt.
	maxErrorLen = 1000
)

// Outcome is the result of trying to take the generation lock.
type Outcome int

const (
	// OutcomeClaimed means the caller holds the lock and must generate.
	OutcomeClaimed Outcome = iota
	// OutcomeCached means a document already exists.
	OutcomeCached
	// OutcomeRetry means another holder is generating.
	OutcomeRetry
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClaimed:
		return "claimed"
	case OutcomeCached:
		return "cached"
	case OutcomeRetry:
		return "retry"
	}
	return "unknown"
}

// Claim is the answer from Lock.Acquire.
type Claim struct {
	Outcome    Outcome
	Token      string
	Attempt    Attempt
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (c Claim) RetryAfterSeconds() int {
	return int(math.Ceil(c.RetryAfter.Seconds()))
}

// Lock is the database-backed, TTL-bounded generation lock.
type Lock struct {
	Repo          Repo
	TTL           time.Duration
	MinRetryAfter time.Duration
	Now           func() time.Time
	NewToken      func() string
}

// NewLock constructs a Lock with defaults for unset fields.
func NewLock(repo Repo, ttl time.Duration) *Lock {
	return &Lock{Repo: repo, TTL: ttl}
}

func (l *Lock) ttl() time.Duration {
	if l.TTL <= 0 {
		return DefaultLockTTL
	}
	return l.TTL
}

func (l *Lock) minRetry() time.Duration {
	if l.MinRetryAfter <= 0 {
		return DefaultMinRetryAfter
	}
	return l.MinRetryAfter
}

func (l *Lock) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *Lock) token() string {
	if l.NewToken != nil {
		return l.NewToken()
	}
	return uuid.NewString()
}

// Acquire tries to claim attempt id for generation.
func (l *Lock) Acquire(ctx context.Context, id string) (Claim, error) {
	// A second pass covers a holder that failed between our claim and read.
	for pass := 0; pass < 2; pass++ {
		now := l.now()
		token := l.token()
		ok, err := l.Repo.Claim(ctx, id, token, now, now.Add(-l.ttl()))
		if err != nil {
			return Claim{}, fmt.Errorf("claim attempt: %w", err)
		}
		attempt, err := l.Repo.Get(ctx, id)
		if err != nil {
			return Claim{}, err
		}
		if ok {
			return Claim{Outcome: OutcomeClaimed, Token: token, Attempt: attempt}, nil
		}

		switch attempt.Status {
		case StatusDone:
			return Claim{Outcome: OutcomeCached, Attempt: attempt}, nil
		case StatusProcessing:
			return Claim{
				Outcome:    OutcomeRetry,
				Attempt:    attempt,
				RetryAfter: l.RetryAfter(attempt.ProcessingStartedAt, now),
			}, nil
		}
	}
	return Claim{Outcome: OutcomeRetry, RetryAfter: l.minRetry()}, nil
}

// RetryAfter is the remaining TTL of a holder that started at startedAt,
// never less than MinRetryAfter.
func (l *Lock) RetryAfter(startedAt *time.Time, now time.Time) time.Duration {
	wait := l.ttl()
	if startedAt != nil {
		wait = l.ttl() - now.Sub(*startedAt)
	}
	if wait < l.minRetry() {
		return l.minRetry()
	}
	return wait
}

// Complete marks the claimed attempt done.
func (l *Lock) Complete(ctx context.Context, claim Claim, doc DocumentRef) error {
	if claim.Outcome != OutcomeClaimed {
		return fmt.Errorf("%w: complete without claim", ErrInvalidState)
	}
	return l.Repo.MarkDone(ctx, claim.Attempt.ID, claim.Token, doc, l.now())
}

// Fail marks the claimed attempt failed with cause.
func (l *Lock) Fail(ctx context.Context, claim Claim, cause error) error {
	if claim.Outcome != OutcomeClaimed {
		return fmt.Errorf("%w: fail without claim", ErrInvalidState)
	}
	msg := "generation failed"
	if cause != nil {
		msg = cause.Error()
	}
	return l.Repo.MarkFailed(ctx, claim.Attempt.ID, claim.Token, clipError(msg), l.now())
}

// clipError cuts msg to maxErrorLen bytes without splitting a rune; text
// columns reject invalid UTF-8.
func clipError(msg string) string {
	msg = strings.ToValidUTF8(msg, "")
	if len(msg) <= maxErrorLen {
		return msg
	}
	n := maxErrorLen
	for n > 0 && !utf8.RuneStart(msg[n]) {
		n--
	}
	return msg[:n]
}
