package Checkin

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"poly-checkin-bot/AssemblePrompt"
	"poly-checkin-bot/BuildTranscript"
	"poly-checkin-bot/Models"
	"poly-checkin-bot/PublishToSlack"

	"github.com/slack-go/slack"
)

// Counter is the process-wide check-in sequence. There is no persisted
// state: after a restart the last used number is recovered by scanning the
// control channel's history once, then the counter only ever moves forward
// through Next. All access goes through one mutex; handlers run on separate
// goroutines and a duplicated check-in number is the worst bug this bot can
// have.
type Counter struct {
	mu        sync.Mutex
	recovered bool
	last      int
}

// RecoverIfUnset scans the control channel's full history for the highest
// check-in number in bot-authored messages. It runs the scan at most once
// per process; later calls return immediately. With no prior check-in the
// counter stays at 0 so the first real check-in becomes #1.
//
// The mutex is held across the scan on purpose: a second trigger arriving
// mid-recovery must wait rather than start a second scan.
func (c *Counter) RecoverIfUnset(ctx context.Context, fetcher BuildTranscript.HistoryFetcher, controlChannelId string, botUserId string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recovered {
		return nil
	}

	rawMessages, fetchAllMessagesError := BuildTranscript.FetchAllMessages(ctx, fetcher, controlChannelId)
	if fetchAllMessagesError != nil {
		return fmt.Errorf("recovering check-in counter: %w", fetchAllMessagesError)
	}

	c.last = scanForMaxCheckin(rawMessages, botUserId)
	c.recovered = true
	return nil
}

// Next reserves and returns the next check-in number. The counter advances
// by exactly one per call, regardless of how many channels the check-in is
// later delivered to.
func (c *Counter) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last++
	return c.last
}

// Last returns the most recently used number without advancing.
func (c *Counter) Last() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// scanForMaxCheckin accepts both the strict marker and the legacy
// human-readable "Check-in #N" phrase, in bot-authored messages only, so
// histories written before the strict marker still recover correctly.
func scanForMaxCheckin(messages []slack.Message, botUserId string) int {

	maxNumber := 0
	for _, message := range messages {
		if message.User != botUserId {
			continue
		}
		for _, pattern := range []*regexp.Regexp{Models.CheckinMarkerPattern, Models.LegacyCheckinMarkerPattern} {
			for _, match := range pattern.FindAllStringSubmatch(message.Text, -1) {
				number, atoiError := strconv.Atoi(match[1])
				if atoiError == nil && number > maxNumber {
					maxNumber = number
				}
			}
		}
	}
	return maxNumber
}

// Trigger runs one check-in: recover the counter if this is the first
// trigger since startup, reserve the next number, render the check-in
// message and broadcast it to every team channel. The reserved number and
// the delivered/failed breakdown are both returned; partial delivery still
// consumes the number.
func Trigger(
	ctx context.Context,
	fetcher BuildTranscript.HistoryFetcher,
	poster PublishToSlack.MessagePoster,
	counter *Counter,
	controlChannelId string,
	botUserId string,
	targets []PublishToSlack.TargetChannel,
	template string,
) (int, Models.BatchSendResult, error) {

	if recoverError := counter.RecoverIfUnset(ctx, fetcher, controlChannelId, botUserId); recoverError != nil {
		return 0, Models.BatchSendResult{}, recoverError
	}

	// validate the template before reserving a number; a broken template
	// must not burn a slot in the sequence
	if _, probeError := renderCheckinMessage(template, 1); probeError != nil {
		return 0, Models.BatchSendResult{}, probeError
	}
	// the placeholder itself must be present in the raw template; a
	// hardcoded marker would stamp the same stale number on every check-in
	// and break counter recovery after a restart
	if !strings.Contains(template, "{marker}") {
		return 0, Models.BatchSendResult{}, fmt.Errorf("check-in template does not embed the {marker} placeholder")
	}

	number := counter.Next()
	text, renderError := renderCheckinMessage(template, number)
	if renderError != nil {
		return number, Models.BatchSendResult{}, renderError
	}

	result := PublishToSlack.Broadcast(ctx, poster, targets, text)
	return number, result, nil
}

func renderCheckinMessage(template string, number int) (string, error) {
	return AssemblePrompt.Render("checkin", template, map[string]string{
		"number": strconv.Itoa(number),
		"marker": Models.FormatCheckinMarker(number),
	})
}
