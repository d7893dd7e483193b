package chat

import "time"

// State reports whether a backend call is outstanding for the session.
type State string

const (
	StateIdle    State = "idle"
	StateSending State = "sending"
)

// Attachment holds the decoded text of the most recent upload. Text stays
// server-side; clients only see the name and size.
type Attachment struct {
	Name string `json:"name"`
	Size int    `json:"size"`
	Text string `json:"-"`
}

// PendingInput is what the next Send will submit.
type PendingInput struct {
	Text string      `json:"text"`
	File *Attachment `json:"file,omitempty"`
}

// FileText returns the attached text, or "" when nothing is attached.
func (p PendingInput) FileText() string {
	if p.File == nil {
		return ""
	}
	return p.File.Text
}

// Empty reports whether a Send would be a no-op.
func (p PendingInput) Empty() bool {
	return p.Text == "" && p.FileText() == ""
}

// Session is a point-in-time copy of one browser session's state.
type Session struct {
	ID         string       `json:"id"`
	State      State        `json:"state"`
	Transcript []Turn       `json:"transcript"`
	Pending    PendingInput `json:"pending"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// SendResult describes the effects of one Send.
type SendResult struct {
	Sent    bool    `json:"sent"`
	Prompt  string  `json:"-"`
	User    *Turn   `json:"user,omitempty"`
	Bot     *Turn   `json:"bot,omitempty"`
	Session Session `json:"session"`
}
