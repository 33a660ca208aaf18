// Package matching implements the swipe ledger, mutual-match detection,
// the connection registry and the daily like quota.
package matching

import (
	"time"

	"github.com/oggyb/shaadimantra/internal/config"
	svcErr "github.com/oggyb/shaadimantra/internal/errors"
	"github.com/oggyb/shaadimantra/internal/repository"
)

// Action is what an actor did to a target profile.
type Action string

const (
	ActionLike      Action = repository.ActionLike
	ActionSuperLike Action = repository.ActionSuperLike
	ActionPass      Action = repository.ActionPass
)

// ParseAction validates a wire value.
func ParseAction(v string) (Action, error) {
	switch a := Action(v); a {
	case ActionLike, ActionSuperLike, ActionPass:
		return a, nil
	}
	return "", svcErr.InvalidOperation("action must be one of like, super_like, pass")
}

// IsLike reports whether a counts as interest (and against the quota).
func (a Action) IsLike() bool {
	return a == ActionLike || a == ActionSuperLike
}

// Metadata describes where a swipe came from.
type Metadata struct {
	Source   string
	Platform string
}

// SwipeResult is returned to the swiping client.
type SwipeResult struct {
	SwipeID      uint64
	IsMatch      bool
	ConnectionID uint64
}

// QuotaStats is a member's like budget for one day.
type QuotaStats struct {
	Day       string
	Used      int
	Cap       int
	Remaining int
}

// UnmatchTarget identifies what to unmatch. Either field may be zero; the
// connection id wins when it resolves.
type UnmatchTarget struct {
	ConnectionID uint64
	TargetUserID uint64
}

// UnmatchResult reports what an unmatch changed.
type UnmatchResult struct {
	ConnectionID  uint64
	OtherUserID   uint64
	StatusChanged bool
	SwipesRemoved int64
	LikesRefunded int
}

// Config holds the tunables of the matching core.
type Config struct {
	DailyLikeCap     int
	MinCompleteness  int
	AllowRediscovery bool
	CountTTL         time.Duration
}

// ConfigFrom reads the matching section of the service configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		DailyLikeCap:     cfg.Match.DailyLikeCap,
		MinCompleteness:  cfg.Match.MinCompleteness,
		AllowRediscovery: cfg.Match.AllowRediscovery,
		CountTTL:         cfg.Match.StatsTTL,
	}
}

// Day is the quota key of t: its UTC calendar date.
func Day(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
