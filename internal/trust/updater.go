package trust

import (
	"fmt"

	"github.com/gokselkaptan/takas-app-sub004/pkg/config"
)

const (
	minScore = 0
	maxScore = 100
)

// Activity is a reputation-relevant swap outcome.
type Activity string

const (
	ActivitySwapCompleted    Activity = "swap_completed"
	ActivityUnilateralCancel Activity = "unilateral_cancel"
	ActivityMutualCancel     Activity = "mutual_cancel"
	ActivityDisputeAgainst   Activity = "dispute_against"
)

// Updater maps activities to bounded score deltas. The result is always a
// clamped absolute score, never a raw increment, so repeated events cannot
// push a score outside [0, 100].
type Updater struct {
	deltas map[Activity]int
}

// NewUpdater builds an updater from the configured deltas.
func NewUpdater(cfg config.TrustConfig) *Updater {
	return &Updater{
		deltas: map[Activity]int{
			ActivitySwapCompleted:    cfg.CompletedDelta,
			ActivityUnilateralCancel: cfg.UnilateralCancelDelta,
			ActivityMutualCancel:     cfg.MutualCancelDelta,
			ActivityDisputeAgainst:   cfg.DisputeAgainstDelta,
		},
	}
}

// Delta returns the configured delta for the activity.
func (u *Updater) Delta(activity Activity) (int, error) {
	delta, ok := u.deltas[activity]
	if !ok {
		return 0, fmt.Errorf("unknown trust activity %q", activity)
	}
	return delta, nil
}

// Apply returns the new clamped score for the activity.
func (u *Updater) Apply(current int, activity Activity) (int, error) {
	delta, err := u.Delta(activity)
	if err != nil {
		return current, err
	}
	return Clamp(current + delta), nil
}

// Clamp bounds a score to [0, 100].
func Clamp(score int) int {
	if score < minScore {
		return minScore
	}
	if score > maxScore {
		return maxScore
	}
	return score
}
