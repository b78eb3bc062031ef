package auth

import (
	"time"

	"github.com/desertthunder/recents/internal/models"
)

// SafetyMargin is subtracted from the provider-reported lifetime when computing expiry.
const SafetyMargin = 300 * time.Second

// DefaultCheckInterval is how often the proactive loop compares now to expiry.
const DefaultCheckInterval = 30 * time.Second

// State is a lifecycle manager state.
type State int

const (
	Unauthenticated State = iota
	Exchanging
	Authenticated
	Refreshing
	Failed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Exchanging:
		return "exchanging"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Trigger identifies what started a refresh.
type Trigger int

const (
	TriggerProactive Trigger = iota
	TriggerReactive
)

func (t Trigger) String() string {
	if t == TriggerReactive {
		return "reactive"
	}
	return "proactive"
}

// Snapshot is a point-in-time copy of the manager for status output.
type Snapshot struct {
	State    State
	Tokens   models.TokenState
	Failures int       // consecutive proactive refresh failures
	Renewed  time.Time // last successful exchange or refresh
	Running  bool      // proactive loop active
}

// expiresAt computes the recorded expiry for a grant received at now.
func expiresAt(now time.Time, lifetime time.Duration) time.Time {
	return now.Add(lifetime - SafetyMargin)
}
