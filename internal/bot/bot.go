// Package bot feeds Discord guild messages through the moderation engine and
// applies the resulting decisions.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"chat-moderation-engine/internal/engine"
	"chat-moderation-engine/internal/metrics"
	"chat-moderation-engine/internal/models"
)

// Discord caps member timeouts at 28 days
const maxTimeout = 28 * 24 * time.Hour

const (
	defaultMuteFor  = 10 * time.Minute
	maxReasonLength = 512
)

// Evaluator is the engine surface the adapter uses
type Evaluator interface {
	Evaluate(ctx context.Context, evt models.MessageEvent) (engine.Outcome, error)
}

// Moderator is the subset of the Discord REST API used to enforce decisions
type Moderator interface {
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	GuildMemberTimeout(guildID string, userID string, until *time.Time, options ...discordgo.RequestOption) error
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessageSendReply(channelID string, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Bot struct {
	Session *discordgo.Session
	api     Moderator
	engine  Evaluator
	logger  *zap.Logger
	muteFor time.Duration
	now     func() time.Time
}

func New(token string, eng Evaluator, logger *zap.Logger) (*Bot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("session error: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	tr := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   50,
		IdleConnTimeout:       120 * time.Second,
		ForceAttemptHTTP2:     true,
		ResponseHeaderTimeout: 5 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
	}
	s.Client = &http.Client{
		Transport: &restTransport{base: tr},
		Timeout:   15 * time.Second,
	}

	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildBans
	s.StateEnabled = false
	s.ShouldReconnectOnError = true
	s.ShouldRetryOnRateLimit = true
	s.MaxRestRetries = 3

	b := newBot(s, eng, logger)
	b.Session = s
	s.AddHandler(b.onEvent)
	return b, nil
}

func newBot(api Moderator, eng Evaluator, logger *zap.Logger) *Bot {
	return &Bot{
		api:     api,
		engine:  eng,
		logger:  logger,
		muteFor: defaultMuteFor,
		now:     time.Now,
	}
}

// Start opens the gateway connection
func (b *Bot) Start() error {
	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("gateway connection failed: %w", err)
	}
	if b.Session.State.User == nil {
		u, err := b.Session.User("@me")
		if err != nil {
			return fmt.Errorf("failed to get bot user: %w", err)
		}
		b.Session.State.User = u
	}
	b.logger.Info("Connected to Discord gateway",
		zap.String("user", b.Session.State.User.Username),
		zap.String("id", b.Session.State.User.ID))
	return nil
}

func (b *Bot) Close() error {
	return b.Session.Close()
}

// onEvent receives every dispatch; only MESSAGE_CREATE is moderated
func (b *Bot) onEvent(_ *discordgo.Session, e *discordgo.Event) {
	if e.Type != "MESSAGE_CREATE" || len(e.RawData) == 0 {
		return
	}
	if err := b.HandleFrame(context.Background(), e.RawData); err != nil {
		b.logger.Warn("Moderating message failed", zap.Error(err))
	}
}

// HandleFrame evaluates one raw MESSAGE_CREATE payload and enforces the decision
func (b *Bot) HandleFrame(ctx context.Context, raw []byte) error {
	msg, ok := ParseMessageCreate(raw)
	if !ok {
		return nil
	}
	out, err := b.engine.Evaluate(ctx, msg.Event())
	if err != nil {
		return fmt.Errorf("evaluating message %s: %w", msg.ID, err)
	}
	return b.apply(msg, out.Decision)
}

func (b *Bot) apply(msg Message, d models.BanDecision) error {
	action := d.SuggestedAction
	if action == models.ActionIgnore {
		return nil
	}

	var err error
	switch action {
	case models.ActionPermBan:
		err = b.api.GuildBanCreateWithReason(msg.GuildID, msg.AuthorID, truncate(d.Reason), 1)
	case models.ActionTempBan:
		err = b.timeout(msg, d.BanDuration(), d.Reason)
	case models.ActionMute:
		err = b.timeout(msg, b.muteFor, d.Reason)
	case models.ActionWarn:
		_, err = b.api.ChannelMessageSendReply(msg.ChannelID,
			fmt.Sprintf("<@%s> warning: %s", msg.AuthorID, d.Reason),
			&discordgo.MessageReference{MessageID: msg.ID, ChannelID: msg.ChannelID, GuildID: msg.GuildID})
	}
	if err != nil {
		metrics.DiscordActions.WithLabelValues(string(action), "error").Inc()
		return fmt.Errorf("applying %s to %s: %w", action, msg.AuthorID, err)
	}
	metrics.DiscordActions.WithLabelValues(string(action), "ok").Inc()

	if action != models.ActionWarn {
		if err := b.api.ChannelMessageDelete(msg.ChannelID, msg.ID); err != nil {
			b.logger.Debug("Deleting moderated message failed", zap.String("message", msg.ID), zap.Error(err))
		}
	}

	b.logger.Info("Moderation action applied",
		zap.String("action", string(action)),
		zap.String("guild", msg.GuildID),
		zap.String("user", msg.AuthorID),
		zap.Float64("score", d.ThreatScore))
	return nil
}

// timeout is the closest Discord has to a temporary ban
func (b *Bot) timeout(msg Message, d time.Duration, reason string) error {
	if d <= 0 || d > maxTimeout {
		d = maxTimeout
	}
	until := b.now().Add(d)
	return b.api.GuildMemberTimeout(msg.GuildID, msg.AuthorID, &until, discordgo.WithAuditLogReason(truncate(reason)))
}

func truncate(reason string) string {
	if len(reason) <= maxReasonLength {
		return reason
	}
	return reason[:maxReasonLength]
}

// restTransport records REST latency
type restTransport struct {
	base http.RoundTripper
}

func (t *restTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	metrics.DiscordRESTDuration.Observe(time.Since(start).Seconds())
	return resp, err
}
