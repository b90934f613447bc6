package session

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/algoprep-backend/internal/model"
)

// questionState is the mutable progress record of one question. It is only
// touched from the controller loop.
type questionState struct {
	question model.Question

	phase     model.QuestionPhase
	flagged   bool
	hintsUsed int

	elapsed        time.Duration
	enteredAt      time.Time
	firstEnteredAt *time.Time

	code             string
	template         string
	language         string
	firstKeystrokeAt *time.Time

	snapshots []model.Snapshot

	// submittedCode and evaluation always belong to the same submission.
	submittedCode     *string
	submittedLanguage string
	evaluation        *model.EvaluationResult

	pendingCode     *string
	pendingLanguage string

	pasteDetected bool
	runCount      int
}

func newQuestionState(q model.Question, language string) *questionState {
	tmpl := q.Template(language)
	return &questionState{
		question: q,
		phase:    model.PhaseNotStarted,
		code:     tmpl,
		template: tmpl,
		language: language,
	}
}

// enter makes the question the active one. NotStarted and Skipped questions
// open as InProgress; every other phase is kept.
func (q *questionState) enter(now time.Time) {
	q.enteredAt = now
	if q.firstEnteredAt == nil {
		t := now
		q.firstEnteredAt = &t
	}
	q.reopen()
}

func (q *questionState) reopen() {
	if q.phase == model.PhaseNotStarted || q.phase == model.PhaseSkipped {
		q.phase = model.PhaseInProgress
	}
}

// flush credits the time since enteredAt. It returns the negative delta, if
// any, so the caller can report it; the clamped value is never credited.
func (q *questionState) flush(now time.Time) time.Duration {
	delta := now.Sub(q.enteredAt)
	q.enteredAt = now
	if delta < 0 {
		return delta
	}
	q.elapsed += delta
	return 0
}

func (q *questionState) skip() bool {
	if q.phase != model.PhaseNotStarted && q.phase != model.PhaseInProgress {
		return false
	}
	q.phase = model.PhaseSkipped
	return true
}

func (q *questionState) hint() bool {
	if q.hintsUsed >= q.question.HintCount {
		return false
	}
	q.hintsUsed++
	return true
}

func (q *questionState) edit(code string, now time.Time) {
	if q.firstKeystrokeAt == nil {
		t := now
		q.firstKeystrokeAt = &t
	}
	q.reopen()
	q.code = code
}

// switchLanguage swaps in the new template while the buffer is still the
// untouched template of the old language.
func (q *questionState) switchLanguage(language string) {
	if language == "" || language == q.language {
		return
	}
	next := q.question.Template(language)
	if q.code == q.template {
		q.code = next
	}
	q.template = next
	q.language = language
}

// capture appends a snapshot when the code differs from its template and
// evicts the oldest entries beyond limit.
func (q *questionState) capture(now time.Time, limit int) bool {
	if q.code == q.template {
		return false
	}
	q.snapshots = append(q.snapshots, model.Snapshot{CapturedAt: now, Code: q.code})
	if over := len(q.snapshots) - limit; over > 0 {
		q.snapshots = append(q.snapshots[:0:0], q.snapshots[over:]...)
	}
	return true
}

// thinkingTime is the gap between first entering the question and the
// first keystroke, or zero when nothing was typed.
func (q *questionState) thinkingTime() time.Duration {
	if q.firstKeystrokeAt == nil || q.firstEnteredAt == nil {
		return 0
	}
	d := q.firstKeystrokeAt.Sub(*q.firstEnteredAt)
	if d < 0 {
		return 0
	}
	return d
}

// complete stores a verdict together with the code it was given for.
func (q *questionState) complete(res *model.EvaluationResult, code, language string) {
	res.Behavior.PasteDetected = q.pasteDetected
	res.Behavior.RunCount = q.runCount
	res.Behavior.RunBeforeSubmit = q.runCount > 0
	q.evaluation = res
	q.submittedCode = &code
	q.submittedLanguage = language
	q.pendingCode = nil
	q.pendingLanguage = ""
	if res.IsCorrect {
		q.phase = model.PhaseSolvedCorrect
	} else {
		q.phase = model.PhaseSolvedIncorrect
	}
}

// result renders the record persisted at finalize. live adds the unflushed
// segment of the active question for views taken mid-session.
func (q *questionState) result(sessionID uuid.UUID, position int, live time.Duration) model.QuestionResult {
	elapsed := q.elapsed
	if live > 0 {
		elapsed += live
	}

	snaps := make([]model.Snapshot, len(q.snapshots))
	copy(snaps, q.snapshots)

	res := model.QuestionResult{
		SessionID:        sessionID,
		QuestionID:       q.question.ID,
		Position:         position,
		Title:            q.question.Title,
		Phase:            q.phase,
		ElapsedSeconds:   seconds(elapsed),
		IsSolved:         q.phase.IsSolved(),
		Skipped:          q.phase.IsSkipped(),
		Flagged:          q.flagged,
		HintsUsed:        q.hintsUsed,
		Code:             q.code,
		Language:         q.language,
		FirstKeystrokeAt: q.firstKeystrokeAt,
		Snapshots:        snaps,
		PasteDetected:    q.pasteDetected,
		RunCount:         q.runCount,
	}
	if q.submittedCode != nil {
		code := *q.submittedCode
		res.SubmittedCode = &code
		res.Language = q.submittedLanguage
	}
	if q.evaluation != nil {
		ev := *q.evaluation
		res.Evaluation = &ev
	}
	if q.pendingCode != nil {
		code := *q.pendingCode
		res.PendingCode = &code
		res.PendingLanguage = q.pendingLanguage
	}
	return res
}

func seconds(d time.Duration) int {
	return int(math.Round(d.Seconds()))
}
