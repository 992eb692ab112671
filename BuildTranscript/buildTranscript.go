package BuildTranscript

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"poly-checkin-bot/Models"

	"github.com/slack-go/slack"
)

type ChannelTranscript = Models.ChannelTranscript
type TranscriptMessage = Models.TranscriptMessage

// HistoryFetcher is the slice of the slack client needed to read a channel's
// history. *slack.Client satisfies it.
type HistoryFetcher interface {
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
}

const historyPageSize = 200

var whitespaceRuns = regexp.MustCompile(`\s+`)

// CleanContent collapses every whitespace run to a single space and trims.
// Content that ends up empty is substituted with the sentinel so a rendered
// transcript never contains an ambiguous gap.
func CleanContent(text string) string {
	cleaned := strings.TrimSpace(whitespaceRuns.ReplaceAllString(text, " "))
	if cleaned == "" {
		return Models.NoTextSentinel
	}
	return cleaned
}

// ParseSlackTimestamp converts a slack "seconds.microseconds" ts string into
// a time.Time. Malformed input yields the zero time.
func ParseSlackTimestamp(ts string) time.Time {
	secondsPart, fractionPart, _ := strings.Cut(ts, ".")
	seconds, secondsParseError := strconv.ParseInt(secondsPart, 10, 64)
	if secondsParseError != nil {
		return time.Time{}
	}
	var micros int64
	if fractionPart != "" {
		// right-pad so "1712000000.12" still means 120000 microseconds
		fractionPart = (fractionPart + "000000")[:6]
		micros, _ = strconv.ParseInt(fractionPart, 10, 64)
	}
	return time.Unix(seconds, micros*1000)
}

// FetchAllMessages pages through the complete channel history using the
// cursor slack hands back. Slack returns pages newest first; callers that
// need chronological order must sort.
func FetchAllMessages(ctx context.Context, fetcher HistoryFetcher, channelId string) ([]slack.Message, error) {

	var allMessages []slack.Message
	cursor := ""

	for {
		params := &slack.GetConversationHistoryParameters{
			ChannelID: channelId,
			Cursor:    cursor,
			Limit:     historyPageSize,
		}

		page, getConversationHistoryError := fetcher.GetConversationHistoryContext(ctx, params)
		if getConversationHistoryError != nil {
			return nil, fmt.Errorf("fetching history for channel %s: %w", channelId, getConversationHistoryError)
		}

		allMessages = append(allMessages, page.Messages...)

		if !page.HasMore || page.ResponseMetaData.NextCursor == "" {
			break
		}
		cursor = page.ResponseMetaData.NextCursor
	}

	return allMessages, nil
}

// Build retrieves the complete history of a channel and turns it into a
// normalized, chronologically sorted transcript, then derives the latest
// check-in marker authored by the bot. It has no side effects: building the
// same channel state twice yields identical output.
func Build(ctx context.Context, fetcher HistoryFetcher, channelId string, channelName string, botUserId string) (ChannelTranscript, error) {

	transcript := ChannelTranscript{ChannelID: channelId, ChannelName: channelName}

	rawMessages, fetchAllMessagesError := FetchAllMessages(ctx, fetcher, channelId)
	if fetchAllMessagesError != nil {
		return transcript, fetchAllMessagesError
	}

	for _, rawMessage := range rawMessages {
		authorName := rawMessage.Username
		if authorName == "" {
			authorName = rawMessage.User
		}
		transcript.Messages = append(transcript.Messages, TranscriptMessage{
			ID:         rawMessage.Timestamp,
			AuthorID:   rawMessage.User,
			AuthorName: authorName,
			CreatedAt:  ParseSlackTimestamp(rawMessage.Timestamp),
			Content:    CleanContent(rawMessage.Text),
		})
	}

	// the fetch is strictly newest first and pages can interleave, so a
	// stable sort by creation time is mandatory for a faithful transcript
	sort.SliceStable(transcript.Messages, func(i, j int) bool {
		return transcript.Messages[i].CreatedAt.Before(transcript.Messages[j].CreatedAt)
	})

	// scan forward for the bot's own check-in markers, keeping the highest
	// number; on a tie the later message wins
	for _, message := range transcript.Messages {
		if message.AuthorID != botUserId {
			continue
		}
		match := Models.CheckinMarkerPattern.FindStringSubmatch(message.Content)
		if match == nil {
			continue
		}
		number, atoiError := strconv.Atoi(match[1])
		if atoiError != nil {
			continue
		}
		if number >= transcript.LatestCheckinNumber {
			transcript.LatestCheckinNumber = number
			transcript.LatestCheckinAt = message.CreatedAt
		}
	}

	return transcript, nil
}
