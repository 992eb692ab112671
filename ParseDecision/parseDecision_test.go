package ParseDecision

import (
	"strings"
	"testing"

	"poly-checkin-bot/Models"

	"github.com/stretchr/testify/assert"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "plain reply",
			raw:  "ACTION: REPLY\nMESSAGE: We are on track.",
			want: "We are on track.",
		},
		{
			name: "lowercase keys",
			raw:  "action: reply\nmessage: lowercase works",
			want: "lowercase works",
		},
		{
			name: "message consumes to end of text",
			raw:  "ACTION: REPLY\nMESSAGE: first line\nsecond line\nthird",
			want: "first line\nsecond line\nthird",
		},
		{
			name: "leading chatter before the grammar",
			raw:  "Sure, here is my decision.\nACTION: REPLY\nMESSAGE: The deadline is Sunday noon.",
			want: "The deadline is Sunday noon.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := Parse(tt.raw)
			assert.Equal(t, Models.DecisionReply, decision.Kind)
			assert.Equal(t, tt.want, decision.Message)
		})
	}
}

func TestParseEscalate(t *testing.T) {
	decision := Parse("ACTION: ESCALATE\nREASON: rules question\nDRAFT: Ask the organizer about team size.")
	assert.Equal(t, Models.DecisionEscalate, decision.Kind)
	assert.Equal(t, "rules question", decision.Reason)
	assert.Equal(t, "Ask the organizer about team size.", decision.Draft)
}

func TestParseEscalateReasonIsFirstLineOnly(t *testing.T) {
	decision := Parse("ACTION: ESCALATE\nREASON: first line\nmore reason text\nDRAFT: d")
	assert.Equal(t, "first line", decision.Reason)
}

func TestParseEscalateDraftConsumesToEnd(t *testing.T) {
	decision := Parse("ACTION: ESCALATE\nREASON: r\nDRAFT: line one\nline two")
	assert.Equal(t, "line one\nline two", decision.Draft)
}

func TestParseEscalateDefaults(t *testing.T) {
	decision := Parse("ACTION: ESCALATE")
	assert.Equal(t, Models.DecisionEscalate, decision.Kind)
	assert.Equal(t, DefaultEscalationReason, decision.Reason)
	assert.Empty(t, decision.Draft)
}

func TestParseFallbackIsTotal(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "no action token", raw: "I think escalate? not sure"},
		{name: "empty string", raw: ""},
		{name: "whitespace only", raw: "  \n\t "},
		{name: "partial keyword", raw: "ACTIO: REPLY\nMESSAGE: nope"},
		{name: "unknown action", raw: "ACTION: PONDER\nMESSAGE: hmm"},
		{name: "reply without message", raw: "ACTION: REPLY"},
		{name: "reply with empty message", raw: "ACTION: REPLY\nMESSAGE:   "},
		{name: "binary garbage", raw: string([]byte{0x00, 0xff, 0xfe, 0x01})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := Parse(tt.raw)
			assert.Equal(t, Models.DecisionEscalate, decision.Kind)
			assert.Equal(t, ParseFailureReason, decision.Reason)
		})
	}
}

func TestParseFallbackCarriesRawText(t *testing.T) {
	decision := Parse("I think escalate? not sure")
	assert.Equal(t, ParseFailureReason, decision.Reason)
	assert.Equal(t, "I think escalate? not sure", decision.Draft)
}

func TestParseFallbackTruncatesDraft(t *testing.T) {
	raw := strings.Repeat("x", 2*MaxDraftLength)
	decision := Parse(raw)
	assert.Equal(t, Models.DecisionEscalate, decision.Kind)
	assert.Len(t, []rune(decision.Draft), MaxDraftLength)
	assert.True(t, strings.HasPrefix(raw, decision.Draft))
}

func TestParseRoundTrip(t *testing.T) {
	// the two grammar forms from the decision service contract
	reply := Parse("ACTION: REPLY\nMESSAGE: all good")
	assert.Equal(t, Models.Decision{Kind: Models.DecisionReply, Message: "all good"}, reply)

	escalate := Parse("ACTION: ESCALATE\nREASON: unsure\nDRAFT: maybe this")
	assert.Equal(t, Models.Decision{Kind: Models.DecisionEscalate, Reason: "unsure", Draft: "maybe this"}, escalate)
}
