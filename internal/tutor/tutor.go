package tutor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/edgard/chatlog/internal/ai"
	"github.com/edgard/chatlog/internal/database"
)

// interactiveHistory is how many prior messages the interactive coach sees.
const interactiveHistory = 3

// idleRoundsBeforeNext is how many off-topic messages after an attempted
// answer move an active session on to a new question.
const idleRoundsBeforeNext = 2

// NudgeText reminds an active-mode user of the open question.
const NudgeText = "We are still on this question. Ask me \"what is the answer?\" to see it, or say \"next\" for a new one."

// Action is what the tutor does with one message.
type Action int

const (
	// ActionChat replies in the session's mode.
	ActionChat Action = iota
	// ActionAsk poses a new question.
	ActionAsk
	// ActionExplain reveals and explains the answer to the open question.
	ActionExplain
	// ActionFeedback comments on an answer attempt without revealing the answer.
	ActionFeedback
	// ActionFollowUp explains a related concept without revealing the answer.
	ActionFollowUp
	// ActionNudge reminds the user of the open question.
	ActionNudge
)

func (a Action) String() string {
	switch a {
	case ActionChat:
		return "chat"
	case ActionAsk:
		return "ask"
	case ActionExplain:
		return "explain"
	case ActionFeedback:
		return "feedback"
	case ActionFollowUp:
		return "follow_up"
	case ActionNudge:
		return "nudge"
	default:
		return "unknown"
	}
}

// Step is the plan for one message. Session already carries the round and
// attention counters; Run applies the question changes once the reply exists.
type Step struct {
	Action Action
	// Contribution reports whether the message is the user's own work
	// toward the lesson rather than a request.
	Contribution bool
	Session      Session
}

// Config holds the tutor defaults for new sessions.
type Config struct {
	DefaultMode Mode
	Level       string
}

// Tutor answers messages according to each user's learning mode.
type Tutor struct {
	gen      ai.Generator
	sessions SessionStore
	cfg      Config
	log      *slog.Logger
}

// New creates a Tutor. Zero config fields fall back to passive mode at the
// beginner level.
func New(gen ai.Generator, sessions SessionStore, cfg Config, logger *slog.Logger) *Tutor {
	if logger == nil {
		logger = slog.Default()
	}
	if _, ok := ParseMode(string(cfg.DefaultMode)); !ok {
		cfg.DefaultMode = ModePassive
	}
	if cfg.Level == "" {
		cfg.Level = "beginner"
	}
	return &Tutor{
		gen:      gen,
		sessions: sessions,
		cfg:      cfg,
		log:      logger.With("component", "tutor"),
	}
}

func (t *Tutor) fresh(m Mode) Session {
	return Session{Mode: m, Level: t.cfg.Level}
}

// Session loads the user's session. A missing or unreadable session starts
// over in the default mode.
func (t *Tutor) Session(ctx context.Context, userID string) Session {
	s, found, err := t.sessions.Get(ctx, userID)
	if err != nil {
		t.log.WarnContext(ctx, "Failed to load session, starting over", "user_id", userID, "error", err)
	}
	if err != nil || !found {
		return t.fresh(t.cfg.DefaultMode)
	}
	if _, ok := ParseMode(string(s.Mode)); !ok {
		s.Mode = t.cfg.DefaultMode
	}
	if s.Level == "" {
		s.Level = t.cfg.Level
	}
	return s
}

// Save stores the user's session.
func (t *Tutor) Save(ctx context.Context, userID string, s Session) error {
	return t.sessions.Put(ctx, userID, s)
}

// Plan decides how to answer text in session s. It does no I/O.
func (t *Tutor) Plan(s Session, text string) Step {
	s.Rounds++
	step := Step{Action: ActionChat, Session: s}

	switch s.Mode {
	case ModeConstructive:
		// From the second round on the user is answering a follow-up.
		step.Contribution = s.Rounds > 1
	case ModeInteractive:
		step.Contribution = ai.LooksLikeCode(text)
	case ModeActive:
		t.planActive(&step, text)
	}
	return step
}

func (t *Tutor) planActive(step *Step, text string) {
	s := &step.Session
	if !s.AwaitingAnswer || s.LastQuestion == "" {
		step.Action = ActionAsk
		return
	}

	switch {
	case asksForAnswer(text):
		step.Action = ActionExplain
		s.IrrelevantCount = 0
	case wantsNextQuestion(text):
		step.Action = ActionAsk
	case isAnswerAttempt(text):
		step.Action = ActionFeedback
		step.Contribution = true
		s.Responded = true
		s.IrrelevantCount = 0
	case isFollowUp(text):
		step.Action = ActionFollowUp
		s.IrrelevantCount = 0
	default:
		s.IrrelevantCount++
		if s.Responded && s.IrrelevantCount >= idleRoundsBeforeNext {
			step.Action = ActionAsk
		} else {
			step.Action = ActionNudge
		}
	}
}

// Run produces the reply for step and returns the session to store. On a
// generation error the session is returned without question changes.
func (t *Tutor) Run(ctx context.Context, step Step, history []database.Message, text string) (string, Session, error) {
	s := step.Session
	log := t.log.With("mode", s.Mode, "action", step.Action.String())
	log.DebugContext(ctx, "Running tutor step", "rounds", s.Rounds)

	switch step.Action {
	case ActionAsk:
		return t.ask(ctx, s, "Here is a new challenge")
	case ActionNudge:
		return NudgeText, s, nil
	case ActionExplain:
		reply, err := t.gen.GenerateReply(ctx, ai.Prompt{
			Instruction: explainInstruction,
			Text:        fmt.Sprintf("Explain the answer to this C question simply:\n\n%s", s.LastQuestion),
		})
		if err != nil {
			return "", s, err
		}
		s.LastQuestion = ""
		s.AwaitingAnswer = false
		s.Responded = false
		return reply, s, nil
	case ActionFeedback:
		reply, err := t.gen.GenerateReply(ctx, ai.Prompt{
			Instruction: feedbackInstruction,
			Text:        fmt.Sprintf("The question was:\n%s\n\nThe student answered:\n%s", s.LastQuestion, text),
		})
		return reply, s, err
	case ActionFollowUp:
		reply, err := t.gen.GenerateReply(ctx, ai.Prompt{
			Instruction: followUpInstruction,
			Text:        fmt.Sprintf("The current question is:\n%s\n\nThe student asks:\n%s", s.LastQuestion, text),
		})
		return reply, s, err
	}

	if s.Mode == ModeInteractive && len(history) > interactiveHistory {
		history = history[len(history)-interactiveHistory:]
	}
	reply, err := t.gen.GenerateReply(ctx, ai.Prompt{
		Instruction: s.Mode.instruction(),
		History:     history,
		Text:        text,
	})
	return reply, s, err
}

// Switch moves the user to mode m and returns the confirmation. Switching to
// active mode asks the first question right away.
func (t *Tutor) Switch(ctx context.Context, userID string, m Mode) (string, error) {
	prev := t.Session(ctx, userID)
	s := t.fresh(m)
	s.Level = prev.Level

	reply := fmt.Sprintf("Switched to %s mode.\n\n%s", m, m.Description())
	if m == ModeActive {
		var question string
		question, s, _ = t.ask(ctx, s, "First question")
		reply += "\n\n" + question
	}

	if err := t.Save(ctx, userID, s); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	t.log.InfoContext(ctx, "Learning mode switched", "user_id", userID, "from", prev.Mode, "to", m)
	return reply, nil
}

// ask poses a new question at the session level. A failed generation uses
// the canned challenge so ask never fails.
func (t *Tutor) ask(ctx context.Context, s Session, intro string) (string, Session, error) {
	question, err := t.gen.GenerateChallenge(ctx, s.Level)
	if err != nil || strings.TrimSpace(question) == "" {
		t.log.WarnContext(ctx, "Question generation failed, using fallback", "level", s.Level, "error", err)
		question = ai.FallbackChallenge(s.Level)
	}
	s.LastQuestion = question
	s.AwaitingAnswer = true
	s.Responded = false
	s.IrrelevantCount = 0
	return fmt.Sprintf("%s (%s):\n\n%s\n\nWhat do you think the answer is?", intro, s.Level, question), s, nil
}

var (
	answerRequestWords = []string{"答案", "正確", "解答", "告訴我", "the answer", "solution", "tell me"}
	nextQuestionWords  = []string{"下一題", "下一個", "再一題", "再來", "下一", "next", "another"}
	answerTopicWords   = []string{"printf", "int", "指標", "陣列", "return", "變數", "pointer", "array", "variable"}
	followUpWords      = []string{"為什麼", "是什麼", "代表", "差別", "怎麼", "如何", "什麼意思", "跟", "有什麼關係", "why", "what is", "what does", "difference", "how "}

	choicePattern = regexp.MustCompile(`^\(?[a-d]\)?\.?$`)
	pickPattern   = regexp.MustCompile(`(選|答案是|應該是|answer is|pick|choose)\s*\(?[a-d]\)?(\W|$)`)
)

func containsAny(text string, words []string) bool {
	text = strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func asksForAnswer(text string) bool { return containsAny(text, answerRequestWords) }

func wantsNextQuestion(text string) bool { return containsAny(text, nextQuestionWords) }

func isFollowUp(text string) bool { return containsAny(text, followUpWords) }

func isAnswerAttempt(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return choicePattern.MatchString(t) || pickPattern.MatchString(t) || containsAny(t, answerTopicWords)
}
