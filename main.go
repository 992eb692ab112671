package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"poly-checkin-bot/AssemblePrompt"
	"poly-checkin-bot/BuildTranscript"
	"poly-checkin-bot/Checkin"
	"poly-checkin-bot/DecideWithGenAi"
	"poly-checkin-bot/Knowledge"
	"poly-checkin-bot/Models"
	"poly-checkin-bot/ParseDecision"
	"poly-checkin-bot/PublishToSlack"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"google.golang.org/genai"
)

type ChannelTranscript = Models.ChannelTranscript
type TargetChannel = PublishToSlack.TargetChannel

const genericErrorMessage = "Something went wrong on my end. Try again, or ping the organizer directly."

var userMentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)

type bot struct {
	slackApi         *slack.Client
	decisionClient   *DecideWithGenAi.Client
	counter          *Checkin.Counter
	knowledge        *Knowledge.Knowledge
	templates        map[string]string
	botUserId        string
	controlChannelId string
	organizerUserId  string
	teamChannels     []TargetChannel
}

// channelName resolves a channel's display name, falling back to the bare id
// so a name lookup failure never blocks the pipeline.
func (b *bot) channelName(ctx context.Context, channelId string) string {
	info, getConversationInfoError := b.slackApi.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelId})
	if getConversationInfoError != nil || info == nil {
		return channelId
	}
	return info.Name
}

// isTeamChannel reports whether a channel is one of the configured team
// channels.
func (b *bot) isTeamChannel(channelId string) bool {
	for _, team := range b.teamChannels {
		if team.ID == channelId {
			return true
		}
	}
	return false
}

// handleMention runs the standby pipeline for one mention in a team channel:
// transcript, prompt, decision service, parse, act.
func (b *bot) handleMention(ctx context.Context, event *slackevents.AppMentionEvent) {

	// mentions outside the team channels (the control channel included)
	// must not trigger the pipeline; an escalation there would loop back
	// into the control channel
	if !b.isTeamChannel(event.Channel) {
		log.Printf("main:handleMention#Ignoring mention outside team channels in %s", event.Channel)
		return
	}

	channelName := b.channelName(ctx, event.Channel)

	transcript, buildError := BuildTranscript.Build(ctx, b.slackApi, event.Channel, channelName, b.botUserId)
	if buildError != nil {
		log.Printf("main:handleMention#Error building transcript: %s", buildError.Error())
		b.postGenericError(ctx, event.Channel)
		return
	}

	question := strings.TrimSpace(userMentionPattern.ReplaceAllString(event.Text, ""))
	promptQuestion := question
	if promptQuestion == "" {
		promptQuestion = Models.NoTextSentinel
	}

	prompt, renderError := AssemblePrompt.RenderStandbyRequest(b.templates["standby"], transcript, promptQuestion, b.knowledge.RenderBlock())
	if renderError != nil {
		log.Printf("main:handleMention#Error rendering standby prompt: %s", renderError.Error())
		b.postGenericError(ctx, event.Channel)
		return
	}

	rawDecision, completeError := b.decisionClient.Complete(ctx, prompt, b.templates["standby_system"])
	if completeError != nil {
		log.Printf("main:handleMention#Error from decision service: %s", completeError.Error())
		b.postGenericError(ctx, event.Channel)
		return
	}

	// parsing is total: garbage from the model becomes an escalation, never
	// a dropped response
	decision := ParseDecision.Parse(rawDecision)

	mention := PublishToSlack.MentionContext{
		ChannelID:   event.Channel,
		ChannelName: channelName,
		MessageTS:   event.TimeStamp,
		Question:    question,
	}
	if actError := PublishToSlack.Act(ctx, b.slackApi, decision, b.controlChannelId, b.organizerUserId, mention); actError != nil {
		log.Printf("main:handleMention#Error acting on decision: %s", actError.Error())
	}
}

// handleCheckin triggers one numbered check-in broadcast and reports the
// delivered/failed breakdown into the reply channel.
func (b *bot) handleCheckin(ctx context.Context, replyChannelId string) {

	number, result, triggerError := Checkin.Trigger(
		ctx, b.slackApi, b.slackApi, b.counter,
		b.controlChannelId, b.botUserId, b.teamChannels, b.templates["checkin"],
	)
	if triggerError != nil {
		log.Printf("main:handleCheckin#Error triggering check-in: %s", triggerError.Error())
		b.postGenericError(ctx, replyChannelId)
		return
	}

	report := fmt.Sprintf("Check-in #%d: delivered to %d channel(s), failed for %d.", number, len(result.Delivered), len(result.Failed))
	if len(result.Failed) > 0 {
		report += " Failed: " + strings.Join(result.Failed, ", ")
	}
	b.post(ctx, replyChannelId, report)
}

// handleSend broadcasts organizer-supplied text to every team channel.
func (b *bot) handleSend(ctx context.Context, replyChannelId string, text string) {

	if strings.TrimSpace(text) == "" {
		b.post(ctx, replyChannelId, "Nothing to send. Usage: /send <message>")
		return
	}

	result := PublishToSlack.Broadcast(ctx, b.slackApi, b.teamChannels, text)

	report := fmt.Sprintf("Delivered to %d channel(s), failed for %d.", len(result.Delivered), len(result.Failed))
	if len(result.Failed) > 0 {
		report += " Failed: " + strings.Join(result.Failed, ", ")
	}
	b.post(ctx, replyChannelId, report)
}

// handleStatus builds every team transcript plus the control channel
// transcript, asks the decision service for a digest and posts it to the
// control channel.
func (b *bot) handleStatus(ctx context.Context) {

	var teams []ChannelTranscript
	for _, team := range b.teamChannels {
		transcript, buildError := BuildTranscript.Build(ctx, b.slackApi, team.ID, team.Name, b.botUserId)
		if buildError != nil {
			log.Printf("main:handleStatus#Error building transcript for %s: %s", team.Name, buildError.Error())
			continue
		}
		teams = append(teams, transcript)
	}

	var control *ChannelTranscript
	if info, infoError := b.slackApi.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: b.controlChannelId}); infoError == nil && info != nil && info.IsChannel {
		if transcript, buildError := BuildTranscript.Build(ctx, b.slackApi, b.controlChannelId, info.Name, b.botUserId); buildError == nil {
			control = &transcript
		}
	}

	prompt, renderError := AssemblePrompt.RenderStatusRequest(b.templates["status"], teams, control, b.knowledge.RenderBlock())
	if renderError != nil {
		log.Printf("main:handleStatus#Error rendering status prompt: %s", renderError.Error())
		b.postGenericError(ctx, b.controlChannelId)
		return
	}

	digest, completeError := b.decisionClient.Complete(ctx, prompt, "")
	if completeError != nil {
		log.Printf("main:handleStatus#Error from decision service: %s", completeError.Error())
		b.postGenericError(ctx, b.controlChannelId)
		return
	}

	b.post(ctx, b.controlChannelId, digest)
}

func (b *bot) handleSlashCommand(ctx context.Context, command slack.SlashCommand) {
	switch command.Command {
	case "/checkin":
		b.handleCheckin(ctx, command.ChannelID)
	case "/send":
		b.handleSend(ctx, command.ChannelID, command.Text)
	case "/status":
		b.handleStatus(ctx)
	default:
		log.Printf("main:handleSlashCommand#Unknown command %s", command.Command)
	}
}

func (b *bot) post(ctx context.Context, channelId string, text string) {
	if sendError := PublishToSlack.SendLong(ctx, b.slackApi, channelId, text); sendError != nil {
		log.Printf("main:post#Error posting to %s: %s", channelId, sendError.Error())
	}
}

// postGenericError tells the channel something failed without leaking the
// underlying error; details stay in the logs.
func (b *bot) postGenericError(ctx context.Context, channelId string) {
	b.post(ctx, channelId, genericErrorMessage)
}

// run pumps socket mode events. Each handler runs on its own goroutine so a
// slow decision service call never blocks the event loop.
func (b *bot) run(socketClient *socketmode.Client) error {

	go func() {
		for socketEvent := range socketClient.Events {
			switch socketEvent.Type {

			case socketmode.EventTypeEventsAPI:
				eventsApiEvent, ok := socketEvent.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				socketClient.Ack(*socketEvent.Request)
				if eventsApiEvent.Type != slackevents.CallbackEvent {
					continue
				}
				if mentionEvent, ok := eventsApiEvent.InnerEvent.Data.(*slackevents.AppMentionEvent); ok {
					go b.handleMention(context.Background(), mentionEvent)
				}

			case socketmode.EventTypeSlashCommand:
				command, ok := socketEvent.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				socketClient.Ack(*socketEvent.Request)
				go b.handleSlashCommand(context.Background(), command)
			}
		}
	}()

	return socketClient.Run()
}

func mustEnv(name string) string {
	value := os.Getenv(name)
	if value == "" {
		log.Fatalf("main:mustEnv#Missing required env var %s", name)
	}
	return value
}

func envOr(name string, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func main() {

	if dotenvError := godotenv.Load(); dotenvError != nil {
		log.Println("main:main#No .env file found, relying on the environment")
	}

	slackBotToken := mustEnv("SLACK_BOT_TOKEN")
	slackAppToken := mustEnv("SLACK_APP_TOKEN")
	geminiApiKey := mustEnv("GEMINI_API_KEY")
	controlChannelId := mustEnv("CONTROL_CHANNEL_ID")
	organizerUserId := mustEnv("ORGANIZER_USER_ID")
	teamChannelIds := mustEnv("TEAM_CHANNEL_IDS")

	slackApi := slack.New(slackBotToken, slack.OptionAppLevelToken(slackAppToken))
	socketClient := socketmode.New(slackApi)

	ctx := context.Background()

	authTest, authTestError := slackApi.AuthTestContext(ctx)
	if authTestError != nil {
		log.Fatal("main:main#Slack auth test failed: ", authTestError)
	}

	genAiClient, genAiError := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  geminiApiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if genAiError != nil {
		log.Fatal("main:main#GenAI client init failed: ", genAiError)
	}

	knowledge, knowledgeError := Knowledge.Load(envOr("KNOWLEDGE_FILE", "knowledge.yaml"))
	if knowledgeError != nil {
		log.Fatal("main:main#", knowledgeError)
	}

	templatesDir := envOr("TEMPLATES_DIR", "templates")
	templates := map[string]string{}
	for _, name := range []string{"checkin", "standby", "standby_system", "status"} {
		template, loadTemplateError := Knowledge.LoadTemplate(templatesDir, name)
		if loadTemplateError != nil {
			log.Fatal("main:main#", loadTemplateError)
		}
		templates[name] = template
	}

	b := &bot{
		slackApi:         slackApi,
		decisionClient:   DecideWithGenAi.NewClient(genAiClient),
		counter:          &Checkin.Counter{},
		knowledge:        knowledge,
		templates:        templates,
		botUserId:        authTest.UserID,
		controlChannelId: controlChannelId,
		organizerUserId:  organizerUserId,
	}

	// resolve team channel names once at startup, the breakdown reports use
	// names rather than raw ids
	for _, channelId := range strings.Split(teamChannelIds, ",") {
		channelId = strings.TrimSpace(channelId)
		if channelId == "" {
			continue
		}
		b.teamChannels = append(b.teamChannels, TargetChannel{ID: channelId, Name: b.channelName(ctx, channelId)})
	}
	if len(b.teamChannels) == 0 {
		log.Fatal("main:main#TEAM_CHANNEL_IDS resolved to no channels")
	}

	// scheduled check-ins are optional; manual /checkin always works
	if checkinCron := os.Getenv("CHECKIN_CRON"); checkinCron != "" {
		scheduler := cron.New()
		_, cronAddError := scheduler.AddFunc(checkinCron, func() {
			b.handleCheckin(context.Background(), b.controlChannelId)
		})
		if cronAddError != nil {
			log.Fatal("main:main#Bad CHECKIN_CRON expression: ", cronAddError)
		}
		scheduler.Start()
	}

	log.Printf("main:main#Poly is up as %s, watching %d team channel(s)", authTest.UserID, len(b.teamChannels))
	log.Fatal(b.run(socketClient))
}
