package debounce_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stemsi/algoprep-backend/internal/debounce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("debounced task never ran")
		return ""
	}
}

func assertQuiet(t *testing.T, ch <-chan string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected run: %q", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSchedule_OnlyLastEditRuns(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g := debounce.New(clock, 2*time.Second)
	ran := make(chan string, 8)

	for _, v := range []string{"a", "ab", "abc"} {
		v := v
		g.Schedule("draft:1", func() { ran <- v })
		clock.Advance(time.Second)
	}
	assert.Equal(t, 1, g.Pending())

	clock.Advance(time.Second)
	assert.Equal(t, "abc", recv(t, ran))
	assertQuiet(t, ran)

	require.Eventually(t, func() bool { return g.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSchedule_KeysAreIndependent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g := debounce.New(clock, 2*time.Second)
	ran := make(chan string, 8)

	g.Schedule("q1", func() { ran <- "q1" })
	g.Schedule("q2", func() { ran <- "q2" })
	assert.Equal(t, 2, g.Pending())

	clock.Advance(2 * time.Second)
	got := []string{recv(t, ran), recv(t, ran)}
	assert.ElementsMatch(t, []string{"q1", "q2"}, got)
}

func TestFlush_RunsNowAndOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g := debounce.New(clock, 2*time.Second)
	ran := make(chan string, 8)

	g.Schedule("q1", func() { ran <- "q1" })
	assert.True(t, g.Flush("q1"))
	assert.Equal(t, "q1", recv(t, ran))

	clock.Advance(5 * time.Second)
	assertQuiet(t, ran)
	assert.False(t, g.Flush("q1"))
}

func TestCancel_DropsTask(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g := debounce.New(clock, 2*time.Second)
	ran := make(chan string, 8)

	g.Schedule("q1", func() { ran <- "q1" })
	assert.True(t, g.Cancel("q1"))

	clock.Advance(5 * time.Second)
	assertQuiet(t, ran)
}

func TestClose_FlushesEverything(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g := debounce.New(clock, 2*time.Second)
	ran := make(chan string, 8)

	g.Schedule("q1", func() { ran <- "q1" })
	g.Schedule("q2", func() { ran <- "q2" })
	g.Close()

	assert.Len(t, ran, 2)
	assert.Zero(t, g.Pending())

	g.Schedule("q3", func() { ran <- "q3" })
	assert.Len(t, ran, 3, "scheduling after close runs immediately")
}
