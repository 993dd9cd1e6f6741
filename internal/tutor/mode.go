// Package tutor keeps a learning mode per user and decides how each
// message is answered in that mode.
package tutor

import "strings"

// Mode is a learning mode.
type Mode string

const (
	// ModePassive answers questions and volunteers related material.
	ModePassive Mode = "passive"
	// ModeActive poses questions and guides the user toward the answer.
	ModeActive Mode = "active"
	// ModeConstructive answers briefly and follows up with a deeper question.
	ModeConstructive Mode = "constructive"
	// ModeInteractive coaches the user like a study partner.
	ModeInteractive Mode = "interactive"
)

// Modes lists the supported modes in menu order.
func Modes() []Mode {
	return []Mode{ModePassive, ModeActive, ModeConstructive, ModeInteractive}
}

// ParseMode accepts a mode name with or without the "mode_" prefix used by
// quick-reply buttons.
func ParseMode(s string) (Mode, bool) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "mode_")
	for _, m := range Modes() {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Description is the text shown when a user switches to m.
func (m Mode) Description() string {
	switch m {
	case ModePassive:
		return "You read, I answer. Replies stay short and I will not quiz you."
	case ModeActive:
		return "I will give you challenging questions so you can think and answer on your own."
	case ModeConstructive:
		return "I will follow up on your answers with deeper questions to sharpen your thinking."
	case ModeInteractive:
		return "We talk like study partners and work through topics together."
	default:
		return ""
	}
}

// instruction is the system instruction for free-form replies in m. An empty
// instruction keeps the configured default.
func (m Mode) instruction() string {
	switch m {
	case ModeConstructive:
		return "You are a C programming teaching assistant who builds on the student's answers. " +
			"First respond briefly to what the student said, then ask one thoughtful follow-up question."
	case ModeInteractive:
		return "You are a patient C programming study coach. " +
			"If the student asks something, explain it casually with an everyday analogy and a short C snippet, then ask whether they follow or want to try changing it. " +
			"If the student has no concrete question, set a small exercise with a hint and invite them to reply. " +
			"Keep replies short and go one step at a time."
	default:
		return ""
	}
}

const (
	explainInstruction  = "You are a C programming teaching assistant. Give a simple, clear explanation and the correct answer."
	feedbackInstruction = "You are a C programming teaching assistant. Give constructive feedback on the student's answer without revealing the correct answer."
	followUpInstruction = "You are a C programming teaching assistant. Explain the concept the student asks about in an encouraging, clear way. " +
		"Do not reveal the answer to the current question and do not set a new one."
)

// Menu lists the modes for the /mode command.
func Menu(current Mode) string {
	var b strings.Builder
	b.WriteString("Choose a learning mode with /mode <name>:\n")
	for _, m := range Modes() {
		b.WriteString("\n")
		if m == current {
			b.WriteString("* ")
		} else {
			b.WriteString("- ")
		}
		b.WriteString(string(m))
		b.WriteString(": ")
		b.WriteString(m.Description())
	}
	return b.String()
}
