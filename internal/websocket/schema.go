package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	// Interview stream
	ActionNavigate Action = "navigate"
	ActionFlag     Action = "flag"
	ActionHint     Action = "hint"
	ActionSkip     Action = "skip"
	ActionCode     Action = "code"
	ActionLanguage Action = "language"
	ActionPaste    Action = "paste"
	ActionRun      Action = "run"
	ActionSubmit   Action = "submit"
	ActionView     Action = "view"

	// Practice editor
	ActionEdit Action = "edit"

	ActionPing Action = "ping"
)

// RequestPayload carries every client action; fields unused by an action
// are left empty.
type RequestPayload struct {
	Action     Action `json:"action"`
	RequestID  string `json:"request_id,omitempty"`
	Index      *int   `json:"index,omitempty"`
	QuestionID string `json:"question_id,omitempty"`
	Code       string `json:"code,omitempty"`
	Language   string `json:"language,omitempty"`
	Length     int    `json:"length,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState Event = "state"
	EventAck   Event = "ack"
	EventError Event = "error"
	EventPong  Event = "pong"

	// Session notifications are forwarded under their own kind:
	// tick, snapshot, graded, evaluation_failed, finalizing, ended,
	// finalize_failed.
)

// ResponsePayload is the envelope of every server message.
type ResponsePayload struct {
	Event     Event       `json:"event"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Event     Event             `json:"event"`
	RequestID string            `json:"request_id,omitempty"`
	Code      string            `json:"code"`
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
}
