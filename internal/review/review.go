// Package review schedules solved questions for spaced repetition and prices
// a solve by the assistance used. Everything here is a pure function of its
// inputs; callers supply the solve time and the user's location.
package review

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/algoprep-backend/internal/model"
)

const (
	InitialEase     = 2.5
	MinEase         = 1.3
	InitialInterval = 1
	MinInterval     = 1

	// firstReviewInterval is the interval after the first successful review.
	firstReviewInterval = 3
	// passingQuality is the lowest quality that grows the interval.
	passingQuality = 3
)

// Assistance is what the user looked at before solving.
type Assistance struct {
	HintsUsed        int
	ViewedApproach   bool
	ViewedBruteForce bool
	ViewedOptimal    bool
}

// AssistanceFrom reads the assistance fields of a solve request.
func AssistanceFrom(req model.SolveRequest) Assistance {
	return Assistance{
		HintsUsed:        req.HintsUsed,
		ViewedApproach:   req.ViewedApproach,
		ViewedBruteForce: req.ViewedBruteForce,
		ViewedOptimal:    req.ViewedOptimal,
	}
}

// Multiplier is the reward factor. The most generous assistance viewed wins.
func (a Assistance) Multiplier() float64 {
	switch {
	case a.ViewedOptimal:
		return 0.25
	case a.ViewedBruteForce:
		return 0.5
	case a.ViewedApproach:
		return 0.75
	case a.HintsUsed > 0:
		return 0.9
	default:
		return 1.0
	}
}

// Quality grades recall on the SM-2 0..5 scale, 5 being unaided.
func (a Assistance) Quality() int {
	switch {
	case a.ViewedOptimal:
		return 1
	case a.ViewedBruteForce:
		return 2
	case a.ViewedApproach:
		return 3
	case a.HintsUsed > 0:
		return 4
	default:
		return 5
	}
}

// Reward scales a question's base reward by the assistance multiplier.
func Reward(base int, a Assistance) int {
	return int(math.Round(float64(base) * a.Multiplier()))
}

// Initial is the schedule created on the first solve of a question.
func Initial(userID int, questionID uuid.UUID, solvedAt time.Time, loc *time.Location) model.ReviewSchedule {
	return model.ReviewSchedule{
		UserID:         userID,
		QuestionID:     questionID,
		EaseFactor:     InitialEase,
		IntervalDays:   InitialInterval,
		ReviewCount:    0,
		NextReviewAt:   AddDays(solvedAt, InitialInterval, loc),
		LastReviewedAt: solvedAt,
	}
}

// Next applies one review to prev.
func Next(prev model.ReviewSchedule, a Assistance, solvedAt time.Time, loc *time.Location) model.ReviewSchedule {
	q := a.Quality()
	miss := float64(5 - q)

	ease := prev.EaseFactor + 0.1 - miss*(0.08+miss*0.02)
	if ease < MinEase {
		ease = MinEase
	}

	var interval int
	switch {
	case q < passingQuality:
		interval = MinInterval
	case prev.ReviewCount == 0:
		interval = firstReviewInterval
	default:
		interval = int(math.Ceil(float64(prev.IntervalDays) * ease))
	}
	if interval < MinInterval {
		interval = MinInterval
	}

	next := prev
	next.EaseFactor = ease
	next.IntervalDays = interval
	next.ReviewCount = prev.ReviewCount + 1
	next.NextReviewAt = AddDays(solvedAt, interval, loc)
	next.LastReviewedAt = solvedAt
	return next
}

// AddDays moves t by n calendar days in loc, keeping the wall-clock time.
// Across a DST change the result is 23 or 25 hours per day away.
func AddDays(t time.Time, n int, loc *time.Location) time.Time {
	return t.In(loc).AddDate(0, 0, n)
}

// CalendarDaysBetween counts calendar-date boundaries from from to to in loc.
func CalendarDaysBetween(from, to time.Time, loc *time.Location) int {
	y1, m1, d1 := from.In(loc).Date()
	y2, m2, d2 := to.In(loc).Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// UpdateStreak applies a solve at solvedAt. Yesterday extends the streak,
// today keeps it, anything else restarts it at 1. A solve dated before the
// last one leaves the record untouched.
func UpdateStreak(p model.UserProgress, solvedAt time.Time, loc *time.Location) model.UserProgress {
	if p.LastSolvedAt != nil {
		switch days := CalendarDaysBetween(*p.LastSolvedAt, solvedAt, loc); {
		case days < 0:
			return p
		case days == 0:
			if p.Streak == 0 {
				p.Streak = 1
			}
		case days == 1:
			p.Streak++
		default:
			p.Streak = 1
		}
	} else {
		p.Streak = 1
	}

	if p.Streak > p.LongestStreak {
		p.LongestStreak = p.Streak
	}
	t := solvedAt
	p.LastSolvedAt = &t
	return p
}

// Outcome is everything a solve changes.
type Outcome struct {
	Schedule   model.ReviewSchedule
	Progress   model.UserProgress
	XP         int
	Multiplier float64
	FirstSolve bool
}

// Solve combines scheduling, streak and reward for one solve. prev is nil on
// the first solve of the question.
func Solve(
	userID int,
	questionID uuid.UUID,
	prev *model.ReviewSchedule,
	progress model.UserProgress,
	baseXP int,
	a Assistance,
	solvedAt time.Time,
	loc *time.Location,
) Outcome {
	out := Outcome{
		Progress:   UpdateStreak(progress, solvedAt, loc),
		XP:         Reward(baseXP, a),
		Multiplier: a.Multiplier(),
		FirstSolve: prev == nil,
	}
	if prev == nil {
		out.Schedule = Initial(userID, questionID, solvedAt, loc)
	} else {
		out.Schedule = Next(*prev, a, solvedAt, loc)
	}
	return out
}
