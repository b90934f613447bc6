package session

import (
	"github.com/jonboulle/clockwork"
	"github.com/stemsi/algoprep-backend/internal/metrics"
	"github.com/stemsi/algoprep-backend/internal/model"
)

// runRecorder posts a capture on every firing. It never waits on the loop:
// a firing that finds the command queue full is dropped.
func (c *Controller) runRecorder(t clockwork.Ticker) {
	defer t.Stop()
	for {
		select {
		case <-t.Chan():
			select {
			case c.cmds <- c.capture:
			default:
				metrics.SnapshotsDropped.Inc()
				c.log.Warn().Msg("Snapshot firing dropped, session queue full")
			}
		case <-c.stop:
			return
		}
	}
}

// capture appends the active question's code to its history. Nothing but
// the snapshot list is touched.
func (c *Controller) capture() {
	if !c.active() {
		return
	}

	q := c.questions[c.current]
	if !q.capture(c.clock.Now(), c.opts.SnapshotCap) {
		return
	}
	metrics.SnapshotsCaptured.Inc()

	snap := q.snapshots[len(q.snapshots)-1]
	c.hub.publish(Notification{
		Kind:             NotifySnapshot,
		QuestionID:       q.question.ID.String(),
		RemainingSeconds: c.remaining,
		Snapshot:         &model.Snapshot{CapturedAt: snap.CapturedAt, Code: snap.Code},
	})
}
