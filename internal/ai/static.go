package ai

import "context"

// Static is a Generator that needs no provider. It acknowledges replies and
// serves the canned challenges.
type Static struct{}

// GenerateReply implements Generator.
func (Static) GenerateReply(_ context.Context, p Prompt) (string, error) {
	if p.Instruction != "" {
		return "Thanks, I noted that. Detailed feedback needs an AI provider to be configured.", nil
	}
	if len(p.History) == 0 {
		return "Hi! Send me your C questions and I will keep track of our conversation.", nil
	}
	return "Got it, I saved your message. A tutor reply needs an AI provider to be configured.", nil
}

// GenerateChallenge implements Generator.
func (Static) GenerateChallenge(_ context.Context, level string) (string, error) {
	return FallbackChallenge(level), nil
}
