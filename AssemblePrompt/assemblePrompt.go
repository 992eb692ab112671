package AssemblePrompt

import (
	"fmt"
	"regexp"
	"strings"

	"poly-checkin-bot/Models"
)

type ChannelTranscript = Models.ChannelTranscript

// TranscriptSeparator sits between the per-team transcript blocks of a
// status request so the decision service can tell the teams apart.
const TranscriptSeparator = "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"

// NoTranscriptSentinel stands in for a control channel transcript that could
// not be built. The request must never contain an empty gap.
const NoTranscriptSentinel = "no transcript found"

var placeholderPattern = regexp.MustCompile(`\{[A-Za-z0-9_]+\}`)

// Render substitutes every {name} placeholder in the template and then fails
// closed if any placeholder syntax survives. A half-filled template reaching
// the decision service as literal text would corrupt the request.
func Render(templateName string, template string, vars map[string]string) (string, error) {

	rendered := template
	for name, value := range vars {
		rendered = strings.ReplaceAll(rendered, "{"+name+"}", value)
	}

	if leftover := placeholderPattern.FindString(rendered); leftover != "" {
		return "", fmt.Errorf("template %s has unresolved placeholder %s", templateName, leftover)
	}

	return rendered, nil
}

// RenderTranscriptBlock turns one channel transcript into a header plus one
// line per message.
func RenderTranscriptBlock(transcript ChannelTranscript) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("#%s\n", transcript.ChannelName))
	if transcript.LatestCheckinNumber > 0 {
		b.WriteString(fmt.Sprintf("(last check-in: #%d at %s UTC)\n",
			transcript.LatestCheckinNumber, transcript.LatestCheckinAt.UTC().Format("15:04")))
	}

	for _, message := range transcript.Messages {
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n",
			message.CreatedAt.UTC().Format("15:04"), message.AuthorName, message.Content))
	}

	return b.String()
}

// RenderStatusRequest assembles the all-teams status request: every team
// transcript rendered and joined with the separator, plus the control
// channel transcript or the sentinel when it is absent.
func RenderStatusRequest(template string, teams []ChannelTranscript, control *ChannelTranscript, knowledge string) (string, error) {

	var teamBlocks []string
	for _, team := range teams {
		teamBlocks = append(teamBlocks, RenderTranscriptBlock(team))
	}

	controlBlock := NoTranscriptSentinel
	if control != nil {
		controlBlock = RenderTranscriptBlock(*control)
	}

	return Render("status", template, map[string]string{
		"team_transcripts":   strings.Join(teamBlocks, TranscriptSeparator),
		"control_transcript": controlBlock,
		"knowledge":          knowledge,
	})
}

// RenderStandbyRequest assembles the decision request for a single mention
// inside a team channel.
func RenderStandbyRequest(template string, team ChannelTranscript, question string, knowledge string) (string, error) {
	return Render("standby", template, map[string]string{
		"channel_name": team.ChannelName,
		"transcript":   RenderTranscriptBlock(team),
		"question":     question,
		"knowledge":    knowledge,
	})
}
