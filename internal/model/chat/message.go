package chat

import "time"

// Sender identifies who authored a turn.
type Sender string

const (
	SenderUser Sender = "User"
	SenderBot  Sender = "Bot"
)

// Turn is one message in the transcript. Turns are never modified once appended.
type Turn struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewTurn stamps a turn with the supplied time.
func NewTurn(sender Sender, text string, at time.Time) Turn {
	return Turn{Sender: sender, Text: text, CreatedAt: at.UTC()}
}
