package tutor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/edgard/chatlog/internal/ai"
	"github.com/edgard/chatlog/internal/database"
	"github.com/edgard/chatlog/internal/logger"
)

// fakeGenerator hands out questions in order and records reply prompts.
type fakeGenerator struct {
	mu        sync.Mutex
	reply     string
	err       error
	questions []string
	asked     int
	prompts   []ai.Prompt
}

func (g *fakeGenerator) GenerateReply(_ context.Context, p ai.Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, p)
	return g.reply, g.err
}

func (g *fakeGenerator) GenerateChallenge(context.Context, string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.asked >= len(g.questions) {
		return "", errors.New("out of questions")
	}
	q := g.questions[g.asked]
	g.asked++
	return q, nil
}

func (g *fakeGenerator) lastPrompt(t *testing.T) ai.Prompt {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		t.Fatal("no reply was generated")
	}
	return g.prompts[len(g.prompts)-1]
}

func newTestTutor(gen ai.Generator) *Tutor {
	return New(gen, NewMemorySessions(), Config{DefaultMode: ModePassive, Level: "beginner"}, logger.Discard())
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"active", ModeActive, true},
		{"mode_constructive", ModeConstructive, true},
		{" Interactive ", ModeInteractive, true},
		{"MODE_PASSIVE", ModePassive, true},
		{"socratic", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseMode(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseMode(%q) = %q, %v, want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSessionDefaultsToConfiguredMode(t *testing.T) {
	t.Parallel()

	tu := New(&fakeGenerator{}, NewMemorySessions(), Config{DefaultMode: ModeConstructive, Level: "advanced"}, logger.Discard())
	s := tu.Session(context.Background(), "u1")
	if s.Mode != ModeConstructive || s.Level != "advanced" || s.Rounds != 0 {
		t.Errorf("Session() = %+v, want fresh constructive session", s)
	}

	if tu := New(&fakeGenerator{}, NewMemorySessions(), Config{}, nil); tu.Session(context.Background(), "u1").Mode != ModePassive {
		t.Error("zero config did not default to passive mode")
	}
}

func TestSwitchMode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gen := &fakeGenerator{questions: []string{"What does %d print?"}}
	tu := newTestTutor(gen)

	reply, err := tu.Switch(ctx, "u1", ModeConstructive)
	if err != nil {
		t.Fatalf("Switch(constructive) error = %v", err)
	}
	if !strings.Contains(reply, ModeConstructive.Description()) {
		t.Errorf("Switch(constructive) reply = %q, want mode description", reply)
	}
	if s := tu.Session(ctx, "u1"); s.Mode != ModeConstructive || s.AwaitingAnswer {
		t.Errorf("session after constructive switch = %+v", s)
	}

	reply, err = tu.Switch(ctx, "u1", ModeActive)
	if err != nil {
		t.Fatalf("Switch(active) error = %v", err)
	}
	if !strings.Contains(reply, "What does %d print?") {
		t.Errorf("Switch(active) reply = %q, want the first question", reply)
	}
	s := tu.Session(ctx, "u1")
	if s.Mode != ModeActive || !s.AwaitingAnswer || s.LastQuestion != "What does %d print?" || s.Rounds != 0 {
		t.Errorf("session after active switch = %+v", s)
	}

	// Switching again resets the question and the round counter.
	s.Rounds = 4
	if err := tu.Save(ctx, "u1", s); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := tu.Switch(ctx, "u1", ModePassive); err != nil {
		t.Fatalf("Switch(passive) error = %v", err)
	}
	if s := tu.Session(ctx, "u1"); s.Mode != ModePassive || s.LastQuestion != "" || s.Rounds != 0 {
		t.Errorf("session after passive switch = %+v", s)
	}
}

func TestActiveModeAnswerFlow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	gen := &fakeGenerator{reply: "generated", questions: []string{"Q1: pick A-D", "Q2: pick A-D"}}
	tu := newTestTutor(gen)

	if _, err := tu.Switch(ctx, "u1", ModeActive); err != nil {
		t.Fatalf("Switch() error = %v", err)
	}

	steps := []struct {
		text             string
		wantAction       Action
		wantContribution bool
		wantQuestion     string
		wantAwaiting     bool
		wantIrrelevant   int
	}{
		{"B", ActionFeedback, true, "Q1: pick A-D", true, 0},
		{"why does that matter?", ActionFollowUp, false, "Q1: pick A-D", true, 0},
		{"nice weather today", ActionNudge, false, "Q1: pick A-D", true, 1},
		{"ok", ActionAsk, false, "Q2: pick A-D", true, 0},
		{"what is the answer?", ActionExplain, false, "", false, 0},
		{"hello", ActionAsk, false, "", true, 0},
	}

	for i, st := range steps {
		sess := tu.Session(ctx, "u1")
		step := tu.Plan(sess, st.text)
		if step.Action != st.wantAction || step.Contribution != st.wantContribution {
			t.Fatalf("step %d %q: action %v contribution %v, want %v %v",
				i, st.text, step.Action, step.Contribution, st.wantAction, st.wantContribution)
		}
		if step.Session.Rounds != i+1 {
			t.Errorf("step %d: rounds = %d, want %d", i, step.Session.Rounds, i+1)
		}

		reply, next, err := tu.Run(ctx, step, nil, st.text)
		if err != nil {
			t.Fatalf("step %d: Run() error = %v", i, err)
		}
		if reply == "" {
			t.Errorf("step %d: empty reply", i)
		}
		if err := tu.Save(ctx, "u1", next); err != nil {
			t.Fatalf("step %d: Save() error = %v", i, err)
		}

		if st.wantQuestion != "" && next.LastQuestion != st.wantQuestion {
			t.Errorf("step %d: question = %q, want %q", i, next.LastQuestion, st.wantQuestion)
		}
		if st.wantQuestion == "" && st.wantAction == ActionExplain && next.LastQuestion != "" {
			t.Errorf("step %d: question = %q, want cleared", i, next.LastQuestion)
		}
		if next.AwaitingAnswer != st.wantAwaiting || next.IrrelevantCount != st.wantIrrelevant {
			t.Errorf("step %d: awaiting %v irrelevant %d, want %v %d",
				i, next.AwaitingAnswer, next.IrrelevantCount, st.wantAwaiting, st.wantIrrelevant)
		}

		switch st.wantAction {
		case ActionFeedback:
			p := gen.lastPrompt(t)
			if p.Instruction != feedbackInstruction || !strings.Contains(p.Text, "Q1: pick A-D") || !strings.Contains(p.Text, "B") {
				t.Errorf("feedback prompt = %+v", p)
			}
		case ActionExplain:
			if p := gen.lastPrompt(t); p.Instruction != explainInstruction || !strings.Contains(p.Text, "Q2: pick A-D") {
				t.Errorf("explain prompt = %+v", p)
			}
		case ActionNudge:
			if reply != NudgeText {
				t.Errorf("nudge reply = %q", reply)
			}
		}
	}

	// The last ask ran out of generated questions and used the canned one.
	if got := tu.Session(ctx, "u1").LastQuestion; got != ai.FallbackChallenge("beginner") {
		t.Errorf("fallback question = %q", got)
	}
}

func TestActiveModeNudgesBeforeAnyAttempt(t *testing.T) {
	t.Parallel()

	tu := newTestTutor(&fakeGenerator{})
	s := Session{Mode: ModeActive, Level: "beginner", LastQuestion: "Q", AwaitingAnswer: true}

	for i := 1; i <= 3; i++ {
		step := tu.Plan(s, "hmm")
		if step.Action != ActionNudge {
			t.Fatalf("message %d: action = %v, want nudge while no answer was attempted", i, step.Action)
		}
		s = step.Session
	}
	if s.IrrelevantCount != 3 {
		t.Errorf("IrrelevantCount = %d, want 3", s.IrrelevantCount)
	}
}

func TestExplainFailureKeepsQuestion(t *testing.T) {
	t.Parallel()

	tu := newTestTutor(&fakeGenerator{err: errors.New("provider down")})
	s := Session{Mode: ModeActive, Level: "beginner", LastQuestion: "Q", AwaitingAnswer: true}

	step := tu.Plan(s, "告訴我答案")
	if step.Action != ActionExplain {
		t.Fatalf("action = %v, want explain", step.Action)
	}
	_, next, err := tu.Run(context.Background(), step, nil, "告訴我答案")
	if err == nil {
		t.Fatal("Run() error = nil, want provider error")
	}
	if next.LastQuestion != "Q" || !next.AwaitingAnswer || next.Rounds != 1 {
		t.Errorf("session after failed explain = %+v", next)
	}
}

func TestPlanAndRunPerMode(t *testing.T) {
	t.Parallel()

	history := make([]database.Message, 5)
	for i := range history {
		history[i] = database.Message{ID: int64(i + 1), MessageText: "m"}
	}

	tests := []struct {
		name             string
		session          Session
		text             string
		wantContribution bool
		wantInstruction  string
		wantHistory      int
	}{
		{
			name:        "passive keeps configured instruction and full history",
			session:     Session{Mode: ModePassive},
			text:        "what is a pointer?",
			wantHistory: 5,
		},
		{
			name:            "constructive first message",
			session:         Session{Mode: ModeConstructive},
			text:            "what is a pointer?",
			wantInstruction: ModeConstructive.instruction(),
			wantHistory:     5,
		},
		{
			name:             "constructive reply to a follow-up",
			session:          Session{Mode: ModeConstructive, Rounds: 1},
			text:             "it stores an address",
			wantContribution: true,
			wantInstruction:  ModeConstructive.instruction(),
			wantHistory:      5,
		},
		{
			name:            "interactive question sees the last three messages",
			session:         Session{Mode: ModeInteractive},
			text:            "how do loops work?",
			wantInstruction: ModeInteractive.instruction(),
			wantHistory:     3,
		},
		{
			name:             "interactive code snippet",
			session:          Session{Mode: ModeInteractive},
			text:             "int main() { return 0; }",
			wantContribution: true,
			wantInstruction:  ModeInteractive.instruction(),
			wantHistory:      3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gen := &fakeGenerator{reply: "ok"}
			tu := newTestTutor(gen)

			step := tu.Plan(tt.session, tt.text)
			if step.Action != ActionChat || step.Contribution != tt.wantContribution {
				t.Fatalf("Plan() = %v contribution %v, want chat %v", step.Action, step.Contribution, tt.wantContribution)
			}
			if step.Session.Rounds != tt.session.Rounds+1 {
				t.Errorf("rounds = %d, want %d", step.Session.Rounds, tt.session.Rounds+1)
			}
			if _, _, err := tu.Run(context.Background(), step, history, tt.text); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			p := gen.lastPrompt(t)
			if p.Instruction != tt.wantInstruction || len(p.History) != tt.wantHistory || p.Text != tt.text {
				t.Errorf("prompt instruction %q history %d text %q", p.Instruction, len(p.History), p.Text)
			}
			if tt.wantHistory == 3 && p.History[0].ID != 3 {
				t.Errorf("history starts at %d, want the most recent messages", p.History[0].ID)
			}
		})
	}
}

func TestMenu(t *testing.T) {
	t.Parallel()

	menu := Menu(ModeActive)
	for _, m := range Modes() {
		if !strings.Contains(menu, string(m)) {
			t.Errorf("Menu() missing %q", m)
		}
	}
	if !strings.Contains(menu, "* active") {
		t.Errorf("Menu() does not mark the current mode:\n%s", menu)
	}
}

func TestRedisSessions(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisSessions(" ", "", "p:", 0); err == nil {
		t.Fatal("NewRedisSessions(empty addr) error = nil, want error")
	}

	mr := miniredis.RunT(t)
	store, err := NewRedisSessions(mr.Addr(), "", "test:session:", time.Hour)
	if err != nil {
		t.Fatalf("NewRedisSessions() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if _, found, err := store.Get(ctx, "u1"); err != nil || found {
		t.Fatalf("Get(missing) = found %v, err %v", found, err)
	}

	want := Session{Mode: ModeActive, Level: "intermediate", LastQuestion: "Q", AwaitingAnswer: true, Rounds: 2}
	if err := store.Put(ctx, "u1", want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, found, err := store.Get(ctx, "u1")
	if err != nil || !found || got != want {
		t.Errorf("Get() = %+v, %v, %v, want %+v", got, found, err, want)
	}
	if ttl := mr.TTL("test:session:u1"); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}

	// A corrupt entry starts the user over instead of failing the message.
	mr.Set("test:session:u2", "{not json")
	if _, _, err := store.Get(ctx, "u2"); err == nil {
		t.Error("Get(corrupt) error = nil, want decode error")
	}
	tu := New(&fakeGenerator{}, store, Config{DefaultMode: ModeInteractive}, logger.Discard())
	if s := tu.Session(ctx, "u2"); s.Mode != ModeInteractive || s.Level != "beginner" {
		t.Errorf("Session(corrupt) = %+v, want fresh interactive session", s)
	}
}
