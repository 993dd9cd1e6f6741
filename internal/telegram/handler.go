package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/chatlog/internal/ai"
	"github.com/edgard/chatlog/internal/database"
	"github.com/edgard/chatlog/internal/tutor"
)

const (
	messageTypeText = "text"
	messageTypeBot  = "bot"

	commandSubscribe   = "/subscribe"
	commandUnsubscribe = "/unsubscribe"
	commandMode        = "/mode"

	// modeButtonPrefix marks quick-reply texts such as "mode_active".
	modeButtonPrefix = "mode_"

	cooldownReply = "Please wait a few seconds before sending another message."

	aiProcessingTimeout = 2 * time.Minute
	sendMessageTimeout  = 10 * time.Second
)

// Ingestor saves messages.
type Ingestor interface {
	Save(ctx context.Context, p database.Payload) (*database.Message, error)
}

// HistoryReader loads recent history.
type HistoryReader interface {
	Recent(ctx context.Context, userID string, limit int) ([]database.Message, error)
}

// Subscriptions manages daily challenge subscribers.
type Subscriptions interface {
	Subscribe(ctx context.Context, userID string) error
	Unsubscribe(ctx context.Context, userID string) error
}

// sender is the part of *bot.Bot the handler needs.
type sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// HandlerDeps contains the services an inbound message flows through.
// Subscriptions may be nil, in which case the subscription commands are
// treated as ordinary text. A nil Tutor keeps learning modes in memory.
type HandlerDeps struct {
	Ingestion     Ingestor
	History       HistoryReader
	Generator     ai.Generator
	Tutor         *tutor.Tutor
	Subscriptions Subscriptions
	HistoryLimit  int
	Cooldown      time.Duration
	Logger        *slog.Logger
}

// Handler processes inbound text messages.
type Handler struct {
	deps   HandlerDeps
	format *plainText
	cool   *cooldown
	log    *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(deps HandlerDeps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tutor == nil {
		deps.Tutor = tutor.New(deps.Generator, tutor.NewMemorySessions(), tutor.Config{}, deps.Logger)
	}
	return &Handler{
		deps:   deps,
		format: newPlainText(),
		cool:   newCooldown(deps.Cooldown),
		log:    deps.Logger.With("handler", "message"),
	}
}

// Handle is the bot's default handler.
func (h *Handler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.process(ctx, b, update)
}

// turn is one inbound message and the reply it produced.
type turn struct {
	reply   string
	rounds  int
	session *tutor.Session
}

func (h *Handler) process(ctx context.Context, s sender, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || strings.TrimSpace(msg.Text) == "" {
		h.log.DebugContext(ctx, "Ignoring update without text or sender", "update_id", update.ID)
		return
	}

	userID := strconv.FormatInt(msg.From.ID, 10)
	text := strings.TrimSpace(msg.Text)
	log := h.log.With("user_id", userID, "message_id", msg.ID)
	incoming := inboundPayload(msg)

	var t turn
	if name, arg, ok := parseCommand(text); ok && h.handles(name) {
		h.save(ctx, log, incoming)
		t.reply = h.command(ctx, userID, name, arg)
	} else if !h.cool.allow(userID) {
		log.InfoContext(ctx, "Message within cooldown, not generating a reply")
		h.save(ctx, log, incoming)
		t.reply = cooldownReply
	} else {
		t = h.tutorTurn(ctx, log, userID, text, incoming)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancel()
	if _, err := s.SendMessage(sendCtx, replyParams(msg, t.reply)); err != nil {
		log.ErrorContext(ctx, "Failed to send reply", "error", err)
		return
	}

	h.save(ctx, log, database.Payload{
		UserID:            userID,
		BotResponse:       t.reply,
		MessageType:       messageTypeBot,
		InteractionRounds: t.rounds,
	})
	if t.session != nil {
		if err := h.deps.Tutor.Save(ctx, userID, *t.session); err != nil {
			log.ErrorContext(ctx, "Failed to save tutor session", "error", err)
		}
	}
}

// tutorTurn answers text in the user's learning mode. The incoming message
// is saved with the round it opens.
func (h *Handler) tutorTurn(ctx context.Context, log *slog.Logger, userID, text string, incoming database.Payload) turn {
	step := h.deps.Tutor.Plan(h.deps.Tutor.Session(ctx, userID), text)
	log = log.With("mode", step.Session.Mode, "action", step.Action.String())

	incoming.InteractionRounds = step.Session.Rounds
	incoming.ConstructiveContribution = step.Contribution
	saved := h.save(ctx, log, incoming)

	var history []database.Message
	if step.Action == tutor.ActionChat {
		var err error
		history, err = h.deps.History.Recent(ctx, userID, h.deps.HistoryLimit)
		if err != nil {
			log.WarnContext(ctx, "Failed to load history, replying without context", "error", err)
			history = nil
		}
		history = withoutMessage(history, saved)
	}

	aiCtx, cancel := context.WithTimeout(ctx, aiProcessingTimeout)
	defer cancel()
	reply, next, err := h.deps.Tutor.Run(aiCtx, step, history, text)
	if err != nil || strings.TrimSpace(reply) == "" {
		log.ErrorContext(ctx, "Reply generation failed, using fallback", "error", err)
		reply = ai.FallbackReply
	} else {
		reply = h.format.Render(reply)
	}
	return turn{reply: reply, rounds: next.Rounds, session: &next}
}

func (h *Handler) save(ctx context.Context, log *slog.Logger, p database.Payload) *database.Message {
	saved, err := h.deps.Ingestion.Save(ctx, p)
	if err != nil {
		log.ErrorContext(ctx, "Failed to save message", "message_type", p.MessageType, "error", err)
		return nil
	}
	return saved
}

// handles reports whether name is a command this handler answers.
func (h *Handler) handles(name string) bool {
	switch name {
	case commandMode:
		return true
	case commandSubscribe, commandUnsubscribe:
		return h.deps.Subscriptions != nil
	default:
		return false
	}
}

func (h *Handler) command(ctx context.Context, userID, name, arg string) string {
	switch name {
	case commandSubscribe:
		if err := h.deps.Subscriptions.Subscribe(ctx, userID); err != nil {
			h.log.ErrorContext(ctx, "Failed to subscribe", "user_id", userID, "error", err)
			return "Sorry, I could not subscribe you right now. Please try again later."
		}
		return "You are subscribed to the daily challenge."
	case commandUnsubscribe:
		if err := h.deps.Subscriptions.Unsubscribe(ctx, userID); err != nil {
			h.log.ErrorContext(ctx, "Failed to unsubscribe", "user_id", userID, "error", err)
			return "Sorry, I could not unsubscribe you right now. Please try again later."
		}
		return "You will no longer receive the daily challenge."
	default:
		return h.switchMode(ctx, userID, arg)
	}
}

func (h *Handler) switchMode(ctx context.Context, userID, arg string) string {
	mode, ok := tutor.ParseMode(arg)
	if !ok {
		return tutor.Menu(h.deps.Tutor.Session(ctx, userID).Mode)
	}

	aiCtx, cancel := context.WithTimeout(ctx, aiProcessingTimeout)
	defer cancel()
	reply, err := h.deps.Tutor.Switch(aiCtx, userID, mode)
	if err != nil {
		h.log.ErrorContext(ctx, "Failed to switch learning mode", "user_id", userID, "mode", mode, "error", err)
		return "Sorry, I could not change your learning mode right now. Please try again later."
	}
	return h.format.Render(reply)
}

// parseCommand splits a command into its lowercase name and argument. The
// "@BotName" suffix Telegram adds in group chats is dropped. Mode buttons
// such as "mode_active" read as "/mode active".
func parseCommand(text string) (name, arg string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", "", false
	}
	first := strings.ToLower(fields[0])
	if strings.HasPrefix(first, modeButtonPrefix) && len(fields) == 1 {
		return commandMode, first, true
	}
	if !strings.HasPrefix(first, "/") {
		return "", "", false
	}
	if at := strings.IndexByte(first, '@'); at > 0 {
		first = first[:at]
	}
	return first, strings.Join(fields[1:], " "), true
}

// inboundPayload maps a Telegram message to a save payload. The timestamp is
// left to the store so stored order follows arrival order.
func inboundPayload(msg *models.Message) database.Payload {
	return database.Payload{
		UserID:      strconv.FormatInt(msg.From.ID, 10),
		MessageText: strings.TrimSpace(msg.Text),
		MessageType: messageTypeText,
	}
}

// replyParams answers msg in its chat, quoting it.
func replyParams(msg *models.Message, text string) *bot.SendMessageParams {
	return &bot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   text,
		ReplyParameters: &models.ReplyParameters{
			MessageID:                msg.ID,
			AllowSendingWithoutReply: true,
		},
	}
}

// withoutMessage drops the message just saved so it is not sent twice.
func withoutMessage(history []database.Message, saved *database.Message) []database.Message {
	if saved == nil {
		return history
	}
	out := history[:0:0]
	for _, m := range history {
		if m.ID != saved.ID {
			out = append(out, m)
		}
	}
	return out
}
