package PublishToSlack

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"poly-checkin-bot/Models"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePost struct {
	channelId string
	text      string
}

// fakePoster records every post and can be told to fail whole channels.
type fakePoster struct {
	failChannels map[string]bool
	posts        []fakePost
}

func (f *fakePoster) PostMessageContext(_ context.Context, channelId string, options ...slack.MsgOption) (string, string, error) {
	if f.failChannels[channelId] {
		return "", "", errors.New("channel_not_found")
	}
	_, values, applyError := slack.UnsafeApplyMsgOptions("token", channelId, "https://slack.com/api/", options...)
	if applyError != nil {
		return "", "", applyError
	}
	f.posts = append(f.posts, fakePost{channelId: channelId, text: values.Get("text")})
	return channelId, "1700000000.000100", nil
}

type fakeGateway struct {
	fakePoster
	controlChannel *slack.Channel
	infoError      error
	permalink      string
	permalinkError error
}

func (f *fakeGateway) GetConversationInfoContext(_ context.Context, _ *slack.GetConversationInfoInput) (*slack.Channel, error) {
	return f.controlChannel, f.infoError
}

func (f *fakeGateway) GetPermalinkContext(_ context.Context, _ *slack.PermalinkParameters) (string, error) {
	return f.permalink, f.permalinkError
}

func controlChannel(id string, name string) *slack.Channel {
	channel := &slack.Channel{IsChannel: true}
	channel.ID = id
	channel.Name = name
	return channel
}

func TestChunkMessageShortTextIsOneChunk(t *testing.T) {
	chunks := ChunkMessage("short")
	assert.Equal(t, []string{"short"}, chunks)
}

func TestChunkMessageRoundTrip(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 120; i++ {
		b.WriteString(strings.Repeat("a", 80))
		b.WriteString("\n")
	}
	text := b.String()

	chunks := ChunkMessage(text)
	require.Greater(t, len(chunks), 1)

	// concatenation reconstructs the original exactly
	assert.Equal(t, text, strings.Join(chunks, ""))
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), MaxMessageLength)
	}
}

func TestChunkMessagePrefersLineBoundaries(t *testing.T) {
	text := strings.TrimSuffix(strings.Repeat(strings.Repeat("b", 100)+"\n", 50), "\n")

	chunks := ChunkMessage(text)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(chunk, "\n"), "non-final chunk should end at a line boundary")
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestChunkMessageHardSplitsOversizedLine(t *testing.T) {
	text := strings.Repeat("c", MaxMessageLength*2+17)

	chunks := ChunkMessage(text)
	require.Len(t, chunks, 3)
	assert.Equal(t, MaxMessageLength, len(chunks[0]))
	assert.Equal(t, MaxMessageLength, len(chunks[1]))
	assert.Equal(t, 17, len(chunks[2]))
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestChunkMessageNeverTearsMultiByteRunes(t *testing.T) {
	// one oversized line of 3-byte runes; 1900 is not a multiple of 3, so a
	// byte-index split would cut a rune in half
	text := strings.Repeat("あ", 1000)

	chunks := ChunkMessage(text)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk), "chunk %d is not valid UTF-8", i)
		assert.LessOrEqual(t, len(chunk), MaxMessageLength)
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestChunkMessageMultiByteRoundTripWithLines(t *testing.T) {
	text := strings.Repeat(strings.Repeat("é", 950)+"\n", 4) + strings.Repeat("🦊", 600)

	chunks := ChunkMessage(text)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk), "chunk %d is not valid UTF-8", i)
		assert.LessOrEqual(t, len(chunk), MaxMessageLength)
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSendLongPostsChunksInOrder(t *testing.T) {
	poster := &fakePoster{}
	text := strings.Repeat("line one\n", 300) + "final"

	sendError := SendLong(context.Background(), poster, "C1", text)
	require.NoError(t, sendError)
	require.Greater(t, len(poster.posts), 1)

	var rebuilt strings.Builder
	for _, post := range poster.posts {
		assert.Equal(t, "C1", post.channelId)
		rebuilt.WriteString(post.text)
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestBroadcastPartitionsTargets(t *testing.T) {
	poster := &fakePoster{failChannels: map[string]bool{"C2": true}}
	targets := []TargetChannel{
		{ID: "C1", Name: "team-one"},
		{ID: "C2", Name: "team-two"},
		{ID: "C3", Name: "team-three"},
	}

	result := Broadcast(context.Background(), poster, targets, "hello teams")

	assert.Equal(t, []string{"team-one", "team-three"}, result.Delivered)
	assert.Equal(t, []string{"team-two"}, result.Failed)
	// partition property: every target in exactly one list
	assert.Len(t, result.Delivered, 2)
	assert.Len(t, result.Failed, 1)
}

func TestBroadcastFailureDoesNotAbortSiblings(t *testing.T) {
	poster := &fakePoster{failChannels: map[string]bool{"C1": true}}
	targets := []TargetChannel{{ID: "C1", Name: "first"}, {ID: "C2", Name: "second"}}

	result := Broadcast(context.Background(), poster, targets, "text")

	assert.Equal(t, []string{"second"}, result.Delivered)
	assert.Equal(t, []string{"first"}, result.Failed)
}

func TestTruncateWithEllipsis(t *testing.T) {
	assert.Equal(t, "short", TruncateWithEllipsis("short", 10))
	assert.Equal(t, "abc…", TruncateWithEllipsis("abcdef", 3))
	assert.Equal(t, "abc", TruncateWithEllipsis("abc", 3))
}

func TestActReplyPostsVerbatim(t *testing.T) {
	gateway := &fakeGateway{}
	decision := Models.Decision{Kind: Models.DecisionReply, Message: "We open at 10."}
	mention := MentionContext{ChannelID: "C-TEAM", ChannelName: "team-one", MessageTS: "1712000100.000000", Question: "when do we open?"}

	actError := Act(context.Background(), gateway, decision, "C-CTRL", "UORG", mention)
	require.NoError(t, actError)

	require.Len(t, gateway.posts, 1)
	assert.Equal(t, "C-TEAM", gateway.posts[0].channelId)
	assert.Equal(t, "We open at 10.", gateway.posts[0].text)
}

func TestActEscalatePostsDeflectionAndNotice(t *testing.T) {
	gateway := &fakeGateway{
		controlChannel: controlChannel("C-CTRL", "control"),
		permalink:      "https://slack.example/archives/C-TEAM/p1712000100000000",
	}
	decision := Models.Decision{Kind: Models.DecisionEscalate, Reason: "rules dispute", Draft: "maybe say yes"}
	mention := MentionContext{ChannelID: "C-TEAM", ChannelName: "team-one", MessageTS: "1712000100.000000", Question: "can we add a fifth member?"}

	actError := Act(context.Background(), gateway, decision, "C-CTRL", "UORG", mention)
	require.NoError(t, actError)

	require.Len(t, gateway.posts, 2)
	assert.Equal(t, "C-TEAM", gateway.posts[0].channelId)
	assert.Contains(t, gateway.posts[0].text, "<@UORG>")

	notice := gateway.posts[1]
	assert.Equal(t, "C-CTRL", notice.channelId)
	assert.Contains(t, notice.text, "<@UORG>")
	assert.Contains(t, notice.text, "<#C-TEAM>")
	assert.Contains(t, notice.text, "rules dispute")
	assert.Contains(t, notice.text, "can we add a fifth member?")
	assert.Contains(t, notice.text, "maybe say yes")
	assert.Contains(t, notice.text, gateway.permalink)
}

func TestActEscalateTruncatesReason(t *testing.T) {
	gateway := &fakeGateway{controlChannel: controlChannel("C-CTRL", "control"), permalink: "https://example"}
	longReason := strings.Repeat("r", 300)
	decision := Models.Decision{Kind: Models.DecisionEscalate, Reason: longReason}

	actError := Act(context.Background(), gateway, decision, "C-CTRL", "UORG", MentionContext{ChannelID: "C-TEAM", MessageTS: "1.2"})
	require.NoError(t, actError)

	notice := gateway.posts[1].text
	assert.Contains(t, notice, strings.Repeat("r", maxEscalationReasonLength)+"…")
	assert.NotContains(t, notice, longReason)
}

func TestActEscalateMissingQuestionUsesPlaceholder(t *testing.T) {
	gateway := &fakeGateway{controlChannel: controlChannel("C-CTRL", "control")}
	decision := Models.Decision{Kind: Models.DecisionEscalate, Reason: "unsure"}

	actError := Act(context.Background(), gateway, decision, "C-CTRL", "UORG", MentionContext{ChannelID: "C-TEAM", MessageTS: "1.2"})
	require.NoError(t, actError)

	assert.Contains(t, gateway.posts[1].text, noQuestionPlaceholder)
}

func TestActEscalateUnresolvableControlIsDegradedButSafe(t *testing.T) {
	gateway := &fakeGateway{infoError: errors.New("channel_not_found")}
	decision := Models.Decision{Kind: Models.DecisionEscalate, Reason: "unsure"}

	actError := Act(context.Background(), gateway, decision, "C-CTRL", "UORG", MentionContext{ChannelID: "C-TEAM", MessageTS: "1.2"})
	require.NoError(t, actError)

	// the deflection still reached the team, only the notice was skipped
	require.Len(t, gateway.posts, 1)
	assert.Equal(t, "C-TEAM", gateway.posts[0].channelId)
}

func TestActEscalateNonChannelControlSkipsNotice(t *testing.T) {
	im := &slack.Channel{IsChannel: false}
	im.ID = "D-IM"
	gateway := &fakeGateway{controlChannel: im}
	decision := Models.Decision{Kind: Models.DecisionEscalate, Reason: "unsure"}

	actError := Act(context.Background(), gateway, decision, "D-IM", "UORG", MentionContext{ChannelID: "C-TEAM", MessageTS: "1.2"})
	require.NoError(t, actError)
	require.Len(t, gateway.posts, 1)
}
