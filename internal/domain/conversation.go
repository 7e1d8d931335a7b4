package domain

import "time"

// Step values for a Conversation. Steps 1..MaxFollowUps mean the bot is
// waiting for the answer to that follow-up question.
const (
	StepAwaitingSymptom = 0
	StepRemedy          = 4
	MaxFollowUps        = 3
)

// Conversation is the per-user intake state.
type Conversation struct {
	UserID    string
	Symptom   string
	FollowUps []string
	Answers   []string
	Step      int
	Emergency bool
	// Version is the stored revision this value was read at. Zero means the
	// conversation has never been saved.
	Version   int64
	UpdatedAt time.Time
}

// NewConversation returns an unsaved conversation for userID.
func NewConversation(userID string) Conversation {
	return Conversation{UserID: userID, Step: StepAwaitingSymptom}
}

// CurrentQuestion returns the follow-up question the conversation is waiting
// on, if any.
func (c Conversation) CurrentQuestion() (string, bool) {
	if c.Step < 1 || c.Step > len(c.FollowUps) {
		return "", false
	}
	return c.FollowUps[c.Step-1], true
}

// Complete reports whether every generated follow-up has been answered.
func (c Conversation) Complete() bool {
	return len(c.Answers) >= len(c.FollowUps)
}

// Consultation is a finished intake, kept for auditing.
type Consultation struct {
	ID        string
	UserID    string
	Symptom   string
	FollowUps []string
	Answers   []string
	Remedy    string
	Emergency bool
}
