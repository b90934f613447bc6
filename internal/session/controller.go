// Package session runs timed interview sessions. Each Controller owns one
// session and serializes every mutation through a single command loop: the
// countdown, the snapshot recorder, user actions and evaluator completions
// all arrive as commands, so a navigation flush and a tick never interleave.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/algoprep-backend/internal/evaluator"
	"github.com/stemsi/algoprep-backend/internal/model"
)

// DefaultLanguage is used when a session is started without one.
const DefaultLanguage = "python"

const commandBuffer = 64

// Config describes a session to start.
type Config struct {
	SessionID        uuid.UUID
	UserID           int
	TimeLimitSeconds int
	Questions        []model.Question
	Language         string
}

// Validate checks the config. maxTimeLimit <= 0 means no upper bound.
func (c Config) Validate(maxTimeLimit int) error {
	if len(c.Questions) == 0 {
		return &ConfigError{Field: "questions", Reason: "at least one question is required"}
	}
	if c.TimeLimitSeconds <= 0 {
		return &ConfigError{Field: "time_limit_seconds", Reason: "must be greater than zero"}
	}
	if maxTimeLimit > 0 && c.TimeLimitSeconds > maxTimeLimit {
		return &ConfigError{Field: "time_limit_seconds", Reason: fmt.Sprintf("must not exceed %d", maxTimeLimit)}
	}

	seen := make(map[uuid.UUID]struct{}, len(c.Questions))
	for _, q := range c.Questions {
		if q.ID == uuid.Nil {
			return &ConfigError{Field: "questions", Reason: "question id is empty"}
		}
		if _, dup := seen[q.ID]; dup {
			return &ConfigError{Field: "questions", Reason: fmt.Sprintf("duplicate question %s", q.ID)}
		}
		seen[q.ID] = struct{}{}
	}
	return nil
}

// Options are the collaborators and tunables of a controller.
type Options struct {
	Clock clockwork.Clock

	// TickInterval drives the countdown. Zero disables the timer; the owner
	// then calls Tick itself.
	TickInterval time.Duration
	// SnapshotInterval is the recorder period. Zero disables the recorder.
	SnapshotInterval time.Duration

	SnapshotCap         int
	MinSubmissionLength int
	MaxTimeLimitSeconds int
	EvaluatorTimeout    time.Duration
	FinalizeAwait       time.Duration
	PersistAttempts     int
	PersistDelay        time.Duration

	Evaluator evaluator.Evaluator
	Store     ResultStore
	Score     ScoreFunc
	Logger    *zerolog.Logger

	// OnEnded runs on its own goroutine once the session is durably ended.
	OnEnded func(View)
}

func (o *Options) setDefaults() {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.SnapshotCap <= 0 {
		o.SnapshotCap = 10
	}
	if o.MinSubmissionLength <= 0 {
		o.MinSubmissionLength = 10
	}
	if o.EvaluatorTimeout <= 0 {
		o.EvaluatorTimeout = 90 * time.Second
	}
	if o.FinalizeAwait <= 0 {
		o.FinalizeAwait = 15 * time.Second
	}
	if o.PersistAttempts <= 0 {
		o.PersistAttempts = 1
	}
	if o.Score == nil {
		o.Score = DefaultScore
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
}

// EventKind names a user action applied to the active question.
type EventKind string

const (
	EventFlag     EventKind = "flag"
	EventHint     EventKind = "hint"
	EventSkip     EventKind = "skip"
	EventCode     EventKind = "code"
	EventLanguage EventKind = "language"
	EventPaste    EventKind = "paste"
	EventRun      EventKind = "run"
)

// Event is a user action. Code is used by EventCode, Language by
// EventLanguage and Length by EventPaste.
type Event struct {
	Kind     EventKind
	Code     string
	Language string
	Length   int
}

// View is a read-only copy of the session and every question state.
type View struct {
	Session          model.InterviewSession `json:"session"`
	CurrentIndex     int                    `json:"current_index"`
	RemainingSeconds int                    `json:"remaining_seconds"`
	Questions        []model.QuestionResult `json:"questions"`
}

// Controller owns one interview session.
type Controller struct {
	id     uuid.UUID
	userID int
	opts   Options
	clock  clockwork.Clock
	log    zerolog.Logger
	hub    *hub

	ctx    context.Context
	cancel context.CancelFunc

	cmds      chan func()
	quit      chan struct{}
	done      chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once

	// Everything below is owned by the loop goroutine.
	session    model.InterviewSession
	questions  []*questionState
	index      map[uuid.UUID]int
	current    int
	remaining  int
	pending    map[int]*pendingEvaluation
	evalSeq    uint64
	fin        *finalizer
	finalizeAt time.Time
	awaitTimer clockwork.Timer
	persisting bool
	waiters    []chan finalizeOutcome
}

// Start creates the session and its question states, activates the first
// question and starts the countdown and the snapshot recorder.
func Start(cfg Config, opts Options) (*Controller, error) {
	if err := cfg.Validate(opts.MaxTimeLimitSeconds); err != nil {
		return nil, err
	}
	if opts.Evaluator == nil || opts.Store == nil {
		return nil, errors.New("session: evaluator and result store are required")
	}
	opts.setDefaults()

	if cfg.SessionID == uuid.Nil {
		cfg.SessionID = uuid.New()
	}
	language := cfg.Language
	if language == "" {
		language = DefaultLanguage
	}

	now := opts.Clock.Now()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		id:     cfg.SessionID,
		userID: cfg.UserID,
		opts:   opts,
		clock:  opts.Clock,
		log: opts.Logger.With().
			Str("component", "session").
			Str("session_id", cfg.SessionID.String()).
			Int("user_id", cfg.UserID).
			Logger(),
		hub:       newHub(),
		ctx:       ctx,
		cancel:    cancel,
		cmds:      make(chan func(), commandBuffer),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		stop:      make(chan struct{}),
		questions: make([]*questionState, len(cfg.Questions)),
		index:     make(map[uuid.UUID]int, len(cfg.Questions)),
		remaining: cfg.TimeLimitSeconds,
		pending:   make(map[int]*pendingEvaluation),
	}

	ids := make([]uuid.UUID, len(cfg.Questions))
	for i, q := range cfg.Questions {
		ids[i] = q.ID
		c.index[q.ID] = i
		c.questions[i] = newQuestionState(q, language)
	}
	c.questions[0].enter(now)

	c.session = model.InterviewSession{
		ID:               cfg.SessionID,
		UserID:           cfg.UserID,
		TimeLimitSeconds: cfg.TimeLimitSeconds,
		QuestionIDs:      ids,
		Status:           model.SessionStatusActive,
		CreatedAt:        now,
	}
	c.fin = &finalizer{
		sessionID: cfg.SessionID,
		store:     opts.Store,
		clock:     opts.Clock,
		attempts:  opts.PersistAttempts,
		delay:     opts.PersistDelay,
		log:       c.log,
		persisted: make(map[uuid.UUID]bool, len(cfg.Questions)),
	}

	go c.loop()

	if opts.TickInterval > 0 {
		go c.runTicker(c.clock.NewTicker(opts.TickInterval))
	}
	if opts.SnapshotInterval > 0 {
		go c.runRecorder(c.clock.NewTicker(opts.SnapshotInterval))
	}

	c.log.Info().
		Int("questions", len(ids)).
		Int("time_limit_seconds", cfg.TimeLimitSeconds).
		Msg("Interview session started")
	return c, nil
}

// ID returns the session id.
func (c *Controller) ID() uuid.UUID { return c.id }

// UserID returns the owner of the session.
func (c *Controller) UserID() int { return c.userID }

// Subscribe returns a notification stream and a function that ends it.
// Slow readers miss notifications rather than block the session.
func (c *Controller) Subscribe() (<-chan Notification, func()) {
	return c.hub.subscribe()
}

// View returns a copy of the current state.
func (c *Controller) View(ctx context.Context) (View, error) {
	var v View
	err := c.do(ctx, func() { v = c.view() })
	return v, err
}

// Navigate credits elapsed time to the current question and activates the
// question at index. An out-of-range index is ignored.
func (c *Controller) Navigate(ctx context.Context, index int) error {
	return c.call(ctx, func() error { return c.navigate(index) })
}

// Dispatch applies a user action to the active question and returns the id
// of the question it was applied to.
func (c *Controller) Dispatch(ctx context.Context, ev Event) (uuid.UUID, error) {
	var qid uuid.UUID
	err := c.call(ctx, func() error {
		qid = c.questions[c.current].question.ID
		return c.dispatch(ev)
	})
	return qid, err
}

// Tick advances the countdown by one second.
func (c *Controller) Tick(ctx context.Context) error {
	return c.do(ctx, c.tick)
}

// Snapshot captures the active question immediately, as a recorder firing would.
func (c *Controller) Snapshot(ctx context.Context) error {
	return c.do(ctx, c.capture)
}

// Close stops the loop and every timer. Outstanding evaluations and
// persistence are cancelled.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.stopTimers()
		c.cancel()
		close(c.quit)
		<-c.done
		c.hub.close()
	})
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.cmds:
			fn()
		case <-c.quit:
			return
		}
	}
}

// do runs fn on the loop and waits for it to finish.
func (c *Controller) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case c.cmds <- func() { fn(); close(finished) }:
	case <-c.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-c.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrSessionClosed
		}
	}
}

func (c *Controller) call(ctx context.Context, fn func() error) error {
	var err error
	if e := c.do(ctx, func() { err = fn() }); e != nil {
		return e
	}
	return err
}

// post queues fn without waiting for it. It reports false once the loop is gone.
func (c *Controller) post(fn func()) bool {
	select {
	case c.cmds <- fn:
		return true
	case <-c.done:
		return false
	case <-c.quit:
		return false
	}
}

func (c *Controller) stopTimers() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Controller) runTicker(t clockwork.Ticker) {
	defer t.Stop()
	for {
		select {
		case <-t.Chan():
			if !c.post(c.tick) {
				return
			}
		case <-c.stop:
			return
		}
	}
}

func (c *Controller) active() bool {
	return c.session.Status == model.SessionStatusActive
}

func (c *Controller) navigate(index int) error {
	if !c.active() {
		return ErrSessionNotActive
	}
	if index < 0 || index >= len(c.questions) || index == c.current {
		return nil
	}

	now := c.clock.Now()
	c.flushCurrent(now)
	c.current = index
	c.questions[index].enter(now)
	return nil
}

func (c *Controller) flushCurrent(now time.Time) {
	q := c.questions[c.current]
	if neg := q.flush(now); neg < 0 {
		c.log.Error().
			Str("question_id", q.question.ID.String()).
			Dur("delta", neg).
			Msg("Negative elapsed delta, clamped to zero")
	}
}

func (c *Controller) dispatch(ev Event) error {
	if !c.active() {
		return ErrSessionNotActive
	}

	q := c.questions[c.current]
	switch ev.Kind {
	case EventFlag:
		q.flagged = !q.flagged
	case EventHint:
		q.hint()
	case EventSkip:
		if q.skip() && c.current+1 < len(c.questions) {
			return c.navigate(c.current + 1)
		}
	case EventCode:
		q.edit(ev.Code, c.clock.Now())
	case EventLanguage:
		q.switchLanguage(ev.Language)
	case EventPaste:
		q.pasteDetected = true
		c.log.Info().
			Str("question_id", q.question.ID.String()).
			Int("length", ev.Length).
			Msg("Paste detected")
	case EventRun:
		q.runCount++
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Kind)
	}
	return nil
}

func (c *Controller) tick() {
	if !c.active() {
		return
	}
	if c.remaining > 0 {
		c.remaining--
	}
	c.hub.publish(Notification{Kind: NotifyTick, RemainingSeconds: c.remaining})
	if c.remaining == 0 {
		c.beginFinalize("time_expired")
	}
}

func (c *Controller) view() View {
	now := c.clock.Now()

	sess := c.session
	sess.QuestionIDs = append([]uuid.UUID(nil), c.session.QuestionIDs...)

	v := View{
		Session:          sess,
		CurrentIndex:     c.current,
		RemainingSeconds: c.remaining,
		Questions:        make([]model.QuestionResult, len(c.questions)),
	}
	for i, q := range c.questions {
		var live time.Duration
		if i == c.current && c.active() {
			live = now.Sub(q.enteredAt)
		}
		v.Questions[i] = q.result(c.id, i, live)
	}
	return v
}
