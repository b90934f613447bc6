package review_test

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stemsi/algoprep-backend/internal/model"
	"github.com/stemsi/algoprep-backend/internal/review"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestInitial_FirstSolve(t *testing.T) {
	solvedAt := time.Date(2026, 4, 10, 18, 45, 0, 0, time.UTC)
	qid := uuid.New()

	s := review.Initial(3, qid, solvedAt, time.UTC)

	assert.Equal(t, 2.5, s.EaseFactor)
	assert.Equal(t, 1, s.IntervalDays)
	assert.Equal(t, 0, s.ReviewCount)
	assert.True(t, s.NextReviewAt.Equal(solvedAt.Add(24*time.Hour)), "got %s", s.NextReviewAt)
	assert.Equal(t, qid, s.QuestionID)
}

func TestMultiplier_LowestTriggeredWins(t *testing.T) {
	tests := []struct {
		name string
		a    review.Assistance
		mult float64
		xp   int
	}{
		{"unaided", review.Assistance{}, 1.0, 50},
		{"hints only", review.Assistance{HintsUsed: 2}, 0.9, 45},
		{"approach", review.Assistance{HintsUsed: 1, ViewedApproach: true}, 0.75, 38},
		{"brute force", review.Assistance{ViewedApproach: true, ViewedBruteForce: true}, 0.5, 25},
		{"optimal", review.Assistance{HintsUsed: 3, ViewedBruteForce: true, ViewedOptimal: true}, 0.25, 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.mult, tt.a.Multiplier())
			assert.Equal(t, tt.xp, review.Reward(50, tt.a))
		})
	}
}

func TestNext_IntervalsGrowWhenUnaided(t *testing.T) {
	solvedAt := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	s := review.Initial(1, uuid.New(), solvedAt, time.UTC)

	s = review.Next(s, review.Assistance{}, solvedAt.AddDate(0, 0, 1), time.UTC)
	assert.Equal(t, 3, s.IntervalDays)
	assert.InDelta(t, 2.6, s.EaseFactor, 1e-9)
	assert.Equal(t, 1, s.ReviewCount)

	s = review.Next(s, review.Assistance{}, solvedAt.AddDate(0, 0, 4), time.UTC)
	assert.Equal(t, 9, s.IntervalDays) // ceil(3 * 2.7)
	assert.InDelta(t, 2.7, s.EaseFactor, 1e-9)
	assert.Equal(t, 2, s.ReviewCount)
	assert.True(t, s.NextReviewAt.Equal(solvedAt.AddDate(0, 0, 13)))
}

func TestNext_FloorsHoldUnderHeavyAssistance(t *testing.T) {
	solvedAt := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	s := review.Initial(1, uuid.New(), solvedAt, time.UTC)

	for i := 0; i < 20; i++ {
		s = review.Next(s, review.Assistance{ViewedOptimal: true}, solvedAt.AddDate(0, 0, i+1), time.UTC)
		require.GreaterOrEqual(t, s.EaseFactor, review.MinEase)
		require.GreaterOrEqual(t, s.IntervalDays, review.MinInterval)
	}
	assert.Equal(t, review.MinEase, s.EaseFactor)
	assert.Equal(t, 1, s.IntervalDays)
	assert.Equal(t, 20, s.ReviewCount)
}

func TestUpdateStreak(t *testing.T) {
	day := func(d, h int) time.Time { return time.Date(2026, 5, d, h, 0, 0, 0, time.UTC) }
	ptr := func(t time.Time) *time.Time { return &t }

	tests := []struct {
		name     string
		progress model.UserProgress
		solvedAt time.Time
		streak   int
		longest  int
	}{
		{"first ever", model.UserProgress{}, day(10, 8), 1, 1},
		{"yesterday", model.UserProgress{Streak: 4, LongestStreak: 4, LastSolvedAt: ptr(day(9, 23))}, day(10, 1), 5, 5},
		{"same day", model.UserProgress{Streak: 4, LongestStreak: 6, LastSolvedAt: ptr(day(10, 1))}, day(10, 22), 4, 6},
		{"gap", model.UserProgress{Streak: 7, LongestStreak: 7, LastSolvedAt: ptr(day(7, 12))}, day(10, 12), 1, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := review.UpdateStreak(tt.progress, tt.solvedAt, time.UTC)
			assert.Equal(t, tt.streak, p.Streak)
			assert.Equal(t, tt.longest, p.LongestStreak)
			require.NotNil(t, p.LastSolvedAt)
			assert.True(t, p.LastSolvedAt.Equal(tt.solvedAt))
		})
	}
}

func TestUpdateStreak_OlderSolveIsIgnored(t *testing.T) {
	last := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	p := model.UserProgress{Streak: 3, LongestStreak: 3, LastSolvedAt: &last}

	got := review.UpdateStreak(p, last.AddDate(0, 0, -2), time.UTC)
	assert.Equal(t, 3, got.Streak)
	assert.True(t, got.LastSolvedAt.Equal(last))
}

func TestCalendarDays_UseUserTimezone(t *testing.T) {
	ny := mustLoad(t, "America/New_York")

	// 23:30 and 00:10 New York time: consecutive days there, the same UTC day.
	last := time.Date(2026, 3, 1, 23, 30, 0, 0, ny)
	now := time.Date(2026, 3, 2, 0, 10, 0, 0, ny)

	assert.Equal(t, 1, review.CalendarDaysBetween(last, now, ny))
	assert.Equal(t, 0, review.CalendarDaysBetween(last, now, time.UTC))

	p := review.UpdateStreak(model.UserProgress{Streak: 2, LastSolvedAt: &last}, now, ny)
	assert.Equal(t, 3, p.Streak)
}

func TestCalendarDays_AcrossDST(t *testing.T) {
	ny := mustLoad(t, "America/New_York")

	// Spring forward on 2026-03-08: noon to noon is only 23 hours.
	before := time.Date(2026, 3, 7, 12, 0, 0, 0, ny)
	after := time.Date(2026, 3, 8, 12, 0, 0, 0, ny)
	require.Equal(t, 23*time.Hour, after.Sub(before))
	assert.Equal(t, 1, review.CalendarDaysBetween(before, after, ny))

	next := review.AddDays(before, 1, ny)
	assert.True(t, next.Equal(after), "next review keeps the wall-clock time, got %s", next)
}

func TestSolve_FirstThenRepeat(t *testing.T) {
	qid := uuid.New()
	solvedAt := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	first := review.Solve(9, qid, nil, model.UserProgress{UserID: 9}, 40, review.Assistance{HintsUsed: 1}, solvedAt, time.UTC)
	assert.True(t, first.FirstSolve)
	assert.Equal(t, 36, first.XP)
	assert.Equal(t, 0.9, first.Multiplier)
	assert.Equal(t, 1, first.Progress.Streak)
	assert.Equal(t, review.InitialEase, first.Schedule.EaseFactor)

	again := review.Solve(9, qid, &first.Schedule, first.Progress, 40, review.Assistance{}, solvedAt.AddDate(0, 0, 1), time.UTC)
	assert.False(t, again.FirstSolve)
	assert.Equal(t, 40, again.XP)
	assert.Equal(t, 2, again.Progress.Streak)
	assert.Equal(t, 1, again.Schedule.ReviewCount)
}
