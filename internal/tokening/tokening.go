// Package tokening reproduces §4.6's token-accrual arithmetic exactly as
// the maintained variant of the source specifies it (§9 Open Question:
// the source has two divergent implementations, one on the DB-model
// Contest and one in a dedicated tokening module; this follows the
// dedicated module, per the spec's explicit resolution).
package tokening

import (
	"errors"
	"time"

	"github.com/itskum47/judgeforge/internal/model"
)

// Availability is the three-piece result of §4.6's _tokens_available /
// tokens_available: how many tokens are available now (-1 means
// infinite), when the wallet next grows by one (nil if it never will
// again), and when the cooldown from the most recent play expires (nil if
// already expired or moot).
type Availability struct {
	Available   int
	NextGenTime *time.Time
	UnlockTime  *time.Time
}

// singleLevel reproduces _tokens_available for one level (contest-only or
// task-only) of the two-level token configuration.
func singleLevel(policy model.TokenPolicy, start time.Time, history []time.Time, now time.Time) Availability {
	switch policy.Mode {
	case model.TokenModeDisabled:
		return Availability{Available: 0}
	case model.TokenModeInfinite:
		return Availability{Available: -1}
	}

	genPeriods := func(begin, end time.Time) int {
		before := int(begin.Sub(start) / policy.GenInterval)
		after := int(end.Sub(start) / policy.GenInterval)
		return policy.GenNumber * (after - before)
	}

	avail := policy.GenInitial
	prev := start
	for _, played := range history {
		avail += genPeriods(prev, played)
		if policy.GenMax != nil && avail > *policy.GenMax {
			avail = *policy.GenMax
		}
		avail--
		prev = played
	}
	avail += genPeriods(prev, now)
	if policy.GenMax != nil && avail > *policy.GenMax {
		avail = *policy.GenMax
	}

	var nextGen *time.Time
	if policy.GenNumber > 0 && (policy.GenMax == nil || avail < *policy.GenMax) {
		periodsSoFar := int(now.Sub(start) / policy.GenInterval)
		t := start.Add(policy.GenInterval * time.Duration(periodsSoFar+1))
		nextGen = &t
	}

	if policy.MaxNumber != nil && avail >= *policy.MaxNumber-len(history) {
		avail = *policy.MaxNumber - len(history)
		nextGen = nil
	}

	var unlock *time.Time
	if len(history) > 0 {
		t := history[len(history)-1].Add(policy.MinInterval)
		unlock = &t
	} else {
		t := start
		unlock = &t
	}
	if !unlock.After(now) || (avail == 0 && nextGen == nil) {
		unlock = nil
	}

	return Availability{Available: avail, NextGenTime: nextGen, UnlockTime: unlock}
}

// ErrZeroGenInterval guards singleLevel's division: a finite-mode policy
// with GenInterval == 0 is a configuration error, not a "tokens generate
// instantly" request.
var ErrZeroGenInterval = errors.New("tokening: finite mode requires a positive gen_interval")

// TokensAvailable computes §4.6's two-level combination of contest-level
// and task-level policies. start is the contest start, or the
// participation's USACO-style starting_time when the contest has
// per_user_time set (§4.6).
func TokensAvailable(contest model.TokenPolicy, task model.TokenPolicy, start time.Time, contestHistory, taskHistory []time.Time, now time.Time) (Availability, error) {
	if contest.Mode == model.TokenModeFinite && contest.GenInterval <= 0 {
		return Availability{}, ErrZeroGenInterval
	}
	if task.Mode == model.TokenModeFinite && task.GenInterval <= 0 {
		return Availability{}, ErrZeroGenInterval
	}

	resContest := singleLevel(contest, start, contestHistory, now)
	resTask := singleLevel(task, start, taskHistory, now)

	var expiration *time.Time
	switch {
	case resContest.UnlockTime == nil:
		expiration = resTask.UnlockTime
	case resTask.UnlockTime == nil:
		expiration = resContest.UnlockTime
	default:
		if resTask.UnlockTime.After(*resContest.UnlockTime) {
			expiration = resTask.UnlockTime
		} else {
			expiration = resContest.UnlockTime
		}
	}

	if resContest.Available == -1 && resTask.Available == -1 {
		return Availability{Available: -1, UnlockTime: expiration}, nil
	}

	// An infinite side becomes "one more than the finite side" so the
	// finite side dominates the min() below (§4.6).
	if resContest.Available == -1 {
		resContest.Available = resTask.Available + 1
	}
	if resTask.Available == -1 {
		resTask.Available = resContest.Available + 1
	}

	switch {
	case resContest.Available < resTask.Available:
		return Availability{Available: resContest.Available, NextGenTime: resContest.NextGenTime, UnlockTime: expiration}, nil
	case resTask.Available < resContest.Available:
		return Availability{Available: resTask.Available, NextGenTime: resTask.NextGenTime, UnlockTime: expiration}, nil
	default:
		if resContest.NextGenTime == nil || resTask.NextGenTime == nil {
			return Availability{Available: resTask.Available, UnlockTime: expiration}, nil
		}
		next := resContest.NextGenTime
		if resTask.NextGenTime.After(*next) {
			next = resTask.NextGenTime
		}
		return Availability{Available: resTask.Available, NextGenTime: next, UnlockTime: expiration}, nil
	}
}

// EffectiveStart picks the accrual start time per §4.6's USACO-style rule.
func EffectiveStart(contest model.Contest, participation model.Participation) time.Time {
	if contest.PerUserTime != nil && participation.StartingTime != nil {
		return *participation.StartingTime
	}
	return contest.Start
}
