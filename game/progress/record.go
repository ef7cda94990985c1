package progress

import (
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/game/quest"
	"golang.org/x/time/rate"
)

// Status is the lifecycle state of a record as seen by callers.
type Status string

const (
	StatusNotStarted Status = "Not Started"
	StatusActive     Status = "Active"
	StatusCompleted  Status = "Completed"
	StatusClaimed    Status = "Claimed"
	StatusExpired    Status = "Expired"
)

// Record is one player's progress on one quest.
// Invariants: 0 <= Progress <= Target, Claimed implies Completed.
type Record struct {
	PlayerID    uuid.UUID           `json:"player_id"`
	QuestID     string              `json:"quest_id"`
	Target      int                 `json:"target"`
	Progress    int                 `json:"progress"`
	Completed   bool                `json:"completed"`
	Claimed     bool                `json:"claimed"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	ExpiresAt   *time.Time          `json:"expires_at,omitempty"`
	Survive     *quest.SurviveState `json:"survive,omitempty"`

	// In-memory only; dropped by Clone.
	matcher  quest.Matcher
	source   *quest.Quest
	notifier *rate.Limiter
}

// New creates an Active record for q started at now.
func New(player uuid.UUID, q *quest.Quest, now time.Time) *Record {
	r := &Record{
		PlayerID:  player,
		QuestID:   q.ID,
		Target:    q.Target,
		StartedAt: now,
	}
	r.ArmExpiry(q, now)
	if q.Type == quest.TypeSurvive {
		r.Survive = &quest.SurviveState{}
	}
	return r
}

// ArmExpiry sets ExpiresAt from q's time limit, or clears it.
func (r *Record) ArmExpiry(q *quest.Quest, now time.Time) {
	if q.HasTimeLimit() {
		exp := now.Add(q.TimeLimit)
		r.ExpiresAt = &exp
	} else {
		r.ExpiresAt = nil
	}
}

// Add raises progress by delta, clamped to Target. It reports whether the
// record just reached its target.
func (r *Record) Add(delta int) bool {
	if delta <= 0 || r.Completed {
		return false
	}
	return r.Set(r.Progress + delta)
}

// Set stores a clamped progress value and reports whether the record just
// reached its target. Completion itself is left to the caller.
func (r *Record) Set(p int) bool {
	if p < 0 {
		p = 0
	}
	if p > r.Target {
		p = r.Target
	}
	r.Progress = p
	return !r.Completed && p >= r.Target
}

// MarkCompleted flags completion at now and fills progress.
func (r *Record) MarkCompleted(now time.Time) {
	r.Progress = r.Target
	r.Completed = true
	r.CompletedAt = &now
}

// Reset returns the record to a fresh Active state in place.
func (r *Record) Reset(q *quest.Quest, now time.Time) {
	r.Target = q.Target
	r.Progress = 0
	r.Completed = false
	r.Claimed = false
	r.CompletedAt = nil
	r.StartedAt = now
	r.ArmExpiry(q, now)
	if r.Survive != nil {
		r.Survive.Seconds = 0
	}
	r.notifier = nil
}

func (r *Record) Active() bool { return !r.Completed && !r.Claimed }

// Occupying reports whether the record blocks a new acceptance of the
// same quest: active, or completed and still waiting to be claimed.
func (r *Record) Occupying() bool { return !r.Claimed }

func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// Remaining returns the time left before expiry; false when the record
// never expires.
func (r *Record) Remaining(now time.Time) (time.Duration, bool) {
	if r.ExpiresAt == nil {
		return 0, false
	}
	d := r.ExpiresAt.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Percentage is progress as 0..100.
func (r *Record) Percentage() float64 {
	if r.Target <= 0 {
		return 100
	}
	return float64(r.Progress) * 100 / float64(r.Target)
}

func (r *Record) Status(now time.Time) Status {
	switch {
	case r.Claimed:
		return StatusClaimed
	case r.Completed:
		return StatusCompleted
	case r.Expired(now):
		return StatusExpired
	default:
		return StatusActive
	}
}

// CompletionTime is the time from start to completion.
func (r *Record) CompletionTime() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Clone returns a deep copy without the in-memory attachments.
func (r *Record) Clone() Record {
	c := Record{
		PlayerID:  r.PlayerID,
		QuestID:   r.QuestID,
		Target:    r.Target,
		Progress:  r.Progress,
		Completed: r.Completed,
		Claimed:   r.Claimed,
		StartedAt: r.StartedAt,
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	if r.Survive != nil {
		s := *r.Survive
		c.Survive = &s
	}
	return c
}

// Matcher returns the cached matcher when it was built for q.
func (r *Record) Matcher(q *quest.Quest) (quest.Matcher, bool) {
	if r.matcher == nil || r.source != q {
		return nil, false
	}
	return r.matcher, true
}

// BindMatcher caches m as the matcher built from q.
func (r *Record) BindMatcher(q *quest.Quest, m quest.Matcher) {
	r.source, r.matcher = q, m
}

// AllowNotify rate-limits progress notifications for this record. A
// non-positive interval always allows.
func (r *Record) AllowNotify(now time.Time, interval time.Duration) bool {
	if interval <= 0 {
		return true
	}
	if r.notifier == nil {
		r.notifier = rate.NewLimiter(rate.Every(interval), 1)
	}
	return r.notifier.AllowN(now, 1)
}
