package PublishToSlack

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"poly-checkin-bot/Models"

	"github.com/slack-go/slack"
)

type BatchSendResult = Models.BatchSendResult
type Decision = Models.Decision

// MaxMessageLength is the outbound chunking limit. Anything longer is split
// on line boundaries, hard character splits are a last resort for single
// oversized lines.
const MaxMessageLength = 1900

const (
	maxEscalationReasonLength = 140
	noQuestionPlaceholder     = "(the mention carried no question text)"
)

// MessagePoster is the posting slice of the slack client.
// *slack.Client satisfies it.
type MessagePoster interface {
	PostMessageContext(ctx context.Context, channelId string, options ...slack.MsgOption) (string, string, error)
}

// Gateway is everything the escalation path needs from slack: posting,
// resolving the control channel and producing jump links.
type Gateway interface {
	MessagePoster
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
	GetPermalinkContext(ctx context.Context, params *slack.PermalinkParameters) (string, error)
}

// TargetChannel identifies one fan-out target. Name is what shows up in the
// delivered/failed breakdown reported to the caller.
type TargetChannel struct {
	ID   string
	Name string
}

// MentionContext carries where the triggering mention happened.
type MentionContext struct {
	ChannelID   string
	ChannelName string
	MessageTS   string
	Question    string
}

// ChunkMessage splits text into chunks of at most MaxMessageLength bytes,
// preferring line boundaries and hard-splitting only single lines that are
// themselves over the limit. Concatenating the chunks in order reproduces
// the input byte for byte.
func ChunkMessage(text string) []string {
	if len(text) <= MaxMessageLength {
		return []string{text}
	}

	// SplitAfter keeps the newline on each line so plain concatenation of
	// the chunks round-trips exactly
	lines := strings.SplitAfter(text, "\n")

	var chunks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, line := range lines {
		for len(line) > MaxMessageLength {
			flush()
			// hard splits must still land on a character boundary; a torn
			// rune would reach slack as invalid UTF-8
			split := MaxMessageLength
			for split > 0 && !utf8.RuneStart(line[split]) {
				split--
			}
			if split == 0 {
				split = MaxMessageLength
			}
			chunks = append(chunks, line[:split])
			line = line[split:]
		}
		if current.Len()+len(line) > MaxMessageLength {
			flush()
		}
		current.WriteString(line)
	}
	flush()

	return chunks
}

// SendLong posts text to a channel, chunked, in order, with link previews
// disabled.
func SendLong(ctx context.Context, poster MessagePoster, channelId string, text string) error {

	for _, chunk := range ChunkMessage(text) {
		_, _, postMessageError := poster.PostMessageContext(
			ctx,
			channelId,
			slack.MsgOptionText(chunk, false),
			// disable previews so transcripts and links stay compact
			slack.MsgOptionPostMessageParameters(slack.PostMessageParameters{
				UnfurlLinks: false,
				UnfurlMedia: false,
			}),
		)
		if postMessageError != nil {
			return postMessageError
		}
	}

	return nil
}

// Broadcast delivers text to every target channel sequentially. A failure on
// one channel never aborts the others; the result partitions the targets
// into delivered and failed, exactly once each.
func Broadcast(ctx context.Context, poster MessagePoster, targets []TargetChannel, text string) BatchSendResult {

	result := BatchSendResult{}

	for _, target := range targets {
		sendError := SendLong(ctx, poster, target.ID, text)
		if sendError != nil {
			log.Printf("PublishToSlack:Broadcast#Error sending to channel %s: %s", target.Name, sendError.Error())
			result.Failed = append(result.Failed, target.Name)
			continue
		}
		result.Delivered = append(result.Delivered, target.Name)
	}

	return result
}

// TruncateWithEllipsis caps text at max runes, appending an ellipsis when it
// actually truncated.
func TruncateWithEllipsis(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}

// Act performs the side effect a parsed decision calls for.
//
// REPLY posts the message verbatim into the originating channel. ESCALATE
// posts a deflection into the originating channel first, so the team always
// gets a response, and then a structured notice into the control channel. If
// the control channel cannot be resolved or is not a regular channel the
// notice is skipped and only logged; the deflection already made the
// escalation visible, so this is degraded but safe.
//
// All side effects are additive posts. Nothing is edited, deleted or retried.
func Act(ctx context.Context, gateway Gateway, decision Decision, controlChannelId string, organizerUserId string, mention MentionContext) error {

	if decision.Kind == Models.DecisionReply {
		return SendLong(ctx, gateway, mention.ChannelID, decision.Message)
	}

	deflection := fmt.Sprintf("That one is above my pay grade, so I've flagged it for <@%s>. They'll follow up here.", organizerUserId)
	if deflectionError := SendLong(ctx, gateway, mention.ChannelID, deflection); deflectionError != nil {
		return deflectionError
	}

	control, resolveControlError := gateway.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: controlChannelId})
	if resolveControlError != nil || control == nil || !control.IsChannel {
		log.Printf("PublishToSlack:Act#Control channel %s not resolvable, skipping organizer notice", controlChannelId)
		return nil
	}

	return SendLong(ctx, gateway, control.ID, buildEscalationNotice(ctx, gateway, decision, organizerUserId, mention))
}

func buildEscalationNotice(ctx context.Context, gateway Gateway, decision Decision, organizerUserId string, mention MentionContext) string {

	question := strings.TrimSpace(mention.Question)
	if question == "" {
		question = noQuestionPlaceholder
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("🚨 <@%s> escalation from <#%s>\n", organizerUserId, mention.ChannelID))
	b.WriteString(fmt.Sprintf("*Reason:* %s\n", TruncateWithEllipsis(decision.Reason, maxEscalationReasonLength)))
	b.WriteString(fmt.Sprintf("*Question:* %s\n", question))
	if decision.Draft != "" {
		b.WriteString(fmt.Sprintf("*Suggested reply:* %s\n", decision.Draft))
	}

	permalink, getPermalinkError := gateway.GetPermalinkContext(ctx, &slack.PermalinkParameters{
		Channel: mention.ChannelID,
		Ts:      mention.MessageTS,
	})
	if getPermalinkError != nil {
		log.Printf("PublishToSlack:buildEscalationNotice#Error fetching permalink: %s", getPermalinkError.Error())
	} else {
		b.WriteString(permalink + "\n")
	}

	return b.String()
}
