package ai

import "fmt"

const challengeInstruction = "You are a C programming teaching assistant who writes practice questions. " +
	"Cover basic syntax, variables and control flow up to pointers and loops. " +
	"Never include the answer."

// FallbackReply is sent when no reply could be generated.
const FallbackReply = "Sorry, I got stuck for a moment. Could you ask me again?"

var levelStyles = map[string]string{
	"beginner":     "a multiple-choice question with options A to D",
	"intermediate": "a fill-in-the-blank question",
	"advanced":     "a short-answer question",
}

func challengePrompt(level string) string {
	style, ok := levelStyles[level]
	if !ok {
		style = levelStyles["beginner"]
	}
	return fmt.Sprintf("Write one %s level C language question as %s. Do not give the answer.", level, style)
}

// FallbackChallenge returns a canned challenge for level, used when the
// provider is unavailable.
func FallbackChallenge(level string) string {
	switch level {
	case "intermediate":
		return "Daily challenge: fill in the blank so the loop prints 0 to 4.\n\nfor (int i = 0; ____; i++) printf(\"%d\\n\", i);"
	case "advanced":
		return "Daily challenge: explain what happens when you return a pointer to a local variable from a function, and how to fix it."
	default:
		return "Daily challenge: which format specifier prints an int with printf?\n\nA) %c\nB) %d\nC) %f\nD) %s"
	}
}
