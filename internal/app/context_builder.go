package app

import (
	"rolechat/internal/ai"
	"rolechat/internal/model"
	"rolechat/internal/roles"
)

// ContextPolicy bounds how much history is replayed. MaxTurns <= 0 replays
// the full history.
type ContextPolicy struct {
	MaxTurns int
}

// BuildContext assembles the model input: the role's system prompt, every
// replayed turn as a user/assistant pair, then the new user text.
func BuildContext(registry *roles.Registry, roleKey string, history []model.ChatMessage, newText string, policy ContextPolicy) []ai.ChatMessage {
	if policy.MaxTurns > 0 && len(history) > policy.MaxTurns {
		history = history[len(history)-policy.MaxTurns:]
	}

	messages := make([]ai.ChatMessage, 0, 2*len(history)+2)
	messages = append(messages, ai.ChatMessage{
		Role:    ai.RoleSystem,
		Content: registry.Resolve(roleKey).Prompt,
	})
	for _, turn := range history {
		messages = append(messages,
			ai.ChatMessage{Role: ai.RoleUser, Content: turn.UserText},
			ai.ChatMessage{Role: ai.RoleAssistant, Content: turn.BotReply},
		)
	}
	messages = append(messages, ai.ChatMessage{Role: ai.RoleUser, Content: newText})
	return messages
}
