package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrQuestNotFound    = errors.New("quest not found")
	ErrProgressNotFound = errors.New("quest progress not found")
	ErrNotActive        = errors.New("quest not active")
	ErrNotClaimable     = errors.New("quest reward not claimable")
	ErrRewardFailed     = errors.New("quest reward failed")
	ErrPlayerOffline    = errors.New("player offline")
)

// Reasons an acceptance is refused. Returned wrapped in *DeniedError.
var (
	ErrNoPermission  = errors.New("no permission")
	ErrAlreadyActive = errors.New("quest already active")
	ErrQuestLimit    = errors.New("quest limit reached")
	ErrOnCooldown    = errors.New("quest on cooldown")
	ErrHookRejected  = errors.New("quest rejected by hook")
)

// DeniedError reports a policy refusal. errors.Is matches Reason.
type DeniedError struct {
	Reason  error
	QuestID string
	// Remaining is set for ErrOnCooldown.
	Remaining time.Duration
	// Limit is set for ErrQuestLimit.
	Limit int
}

func (e *DeniedError) Error() string {
	if e.Reason == ErrOnCooldown && e.Remaining > 0 {
		return fmt.Sprintf("%s: %v (%s left)", e.QuestID, e.Reason, e.Remaining.Round(time.Second))
	}
	return fmt.Sprintf("%s: %v", e.QuestID, e.Reason)
}

func (e *DeniedError) Unwrap() error { return e.Reason }

func deny(questID string, reason error) *DeniedError {
	return &DeniedError{Reason: reason, QuestID: questID}
}
