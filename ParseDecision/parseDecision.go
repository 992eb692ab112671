package ParseDecision

import (
	"regexp"
	"strings"

	"poly-checkin-bot/Models"
)

type Decision = Models.Decision

const (
	// MaxDraftLength caps the raw-text draft carried by the fallback escalation.
	MaxDraftLength = 500

	// DefaultEscalationReason is used when the text escalates without giving a reason.
	DefaultEscalationReason = "uncertain response"

	// ParseFailureReason marks decisions whose text did not match the grammar.
	ParseFailureReason = "could not parse decision service output"
)

// Decision grammar: lines beginning ACTION:, MESSAGE:, REASON:, DRAFT:.
// Keys are case-insensitive. MESSAGE and DRAFT consume to end of text,
// REASON is first line only.
var (
	actionPattern  = regexp.MustCompile(`(?i)ACTION:\s*(REPLY|ESCALATE)`)
	messagePattern = regexp.MustCompile(`(?is)MESSAGE:\s*(.+)`)
	reasonPattern  = regexp.MustCompile(`(?i)REASON:[ \t]*([^\n]*)`)
	draftPattern   = regexp.MustCompile(`(?is)DRAFT:\s*(.*)`)
)

// Parse maps arbitrary decision service output onto exactly one Decision.
// It is total: text that does not match the grammar becomes an escalation
// carrying a truncated copy of the raw text, never an error. The pipeline
// must not silently drop a response just because the model rambled.
func Parse(raw string) Decision {
	trimmed := strings.TrimSpace(raw)

	actionMatch := actionPattern.FindStringSubmatch(trimmed)
	if actionMatch == nil {
		return fallback(trimmed)
	}

	if strings.EqualFold(actionMatch[1], "REPLY") {
		messageMatch := messagePattern.FindStringSubmatch(trimmed)
		if messageMatch == nil {
			return fallback(trimmed)
		}
		message := strings.TrimSpace(messageMatch[1])
		if message == "" {
			// REPLY claimed but nothing usable to post
			return fallback(trimmed)
		}
		return Decision{Kind: Models.DecisionReply, Message: message}
	}

	reason := DefaultEscalationReason
	if reasonMatch := reasonPattern.FindStringSubmatch(trimmed); reasonMatch != nil {
		if found := strings.TrimSpace(reasonMatch[1]); found != "" {
			reason = found
		}
	}

	draft := ""
	if draftMatch := draftPattern.FindStringSubmatch(trimmed); draftMatch != nil {
		draft = strings.TrimSpace(draftMatch[1])
	}

	return Decision{Kind: Models.DecisionEscalate, Reason: reason, Draft: draft}
}

func fallback(raw string) Decision {
	draft := raw
	if runes := []rune(draft); len(runes) > MaxDraftLength {
		draft = string(runes[:MaxDraftLength])
	}
	return Decision{Kind: Models.DecisionEscalate, Reason: ParseFailureReason, Draft: draft}
}
