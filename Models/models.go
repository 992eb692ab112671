package Models

import (
	"fmt"
	"regexp"
	"time"
)

// TranscriptMessage is a single normalized channel message.
// It is never mutated after the transcript is built.
type TranscriptMessage struct {
	ID         string
	AuthorID   string
	AuthorName string
	CreatedAt  time.Time
	Content    string
}

// ChannelTranscript is the chronological reconstruction of a channel's
// history. Messages are sorted oldest first; both the prompt rendering and
// the check-in scan rely on that ordering.
type ChannelTranscript struct {
	ChannelID   string
	ChannelName string
	Messages    []TranscriptMessage

	// Derived while building: the highest-numbered check-in marker found in
	// a bot-authored message. Zero means no check-in was found.
	LatestCheckinNumber int
	LatestCheckinAt     time.Time
}

type DecisionKind string

const (
	DecisionReply    DecisionKind = "REPLY"
	DecisionEscalate DecisionKind = "ESCALATE"
)

// Decision is the typed outcome of parsing the decision service's raw text.
// Kind selects which of the remaining fields carry meaning.
type Decision struct {
	Kind    DecisionKind
	Message string // REPLY: the text to post back, never empty
	Reason  string // ESCALATE: single-line reason for the organizer
	Draft   string // ESCALATE: suggested answer, may be empty
}

// BatchSendResult partitions the targets of a fan-out send by channel name.
// Every target lands in exactly one of the two lists.
type BatchSendResult struct {
	Delivered []string
	Failed    []string
}

// NoTextSentinel replaces message content that is empty after cleaning.
const NoTextSentinel = "[no text]"

// Check-in marker protocol. The strict marker is embedded in every check-in
// message the bot posts and is what transcript building and counter recovery
// parse back out. The legacy pattern matches check-ins posted before the
// strict marker existed.
var (
	CheckinMarkerPattern       = regexp.MustCompile(`\[POLY_CHECKIN #(\d+)\]`)
	LegacyCheckinMarkerPattern = regexp.MustCompile(`(?i)check-in #(\d+)`)
)

func FormatCheckinMarker(number int) string {
	return fmt.Sprintf("[POLY_CHECKIN #%d]", number)
}
