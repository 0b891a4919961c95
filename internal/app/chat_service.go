package app

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"rolechat/internal/ai"
	"rolechat/internal/roles"
)

var ErrEmptyMessage = errors.New("message is empty")

// Actor identifies who is speaking and in which persona.
type Actor struct {
	UserID uint
	Role   string
}

type ChatService struct {
	conversations *ConversationService
	registry      *roles.Registry
	completer     ai.Completer
	policy        ContextPolicy
	log           logrus.FieldLogger
}

func NewChatService(
	conversations *ConversationService,
	registry *roles.Registry,
	completer ai.Completer,
	policy ContextPolicy,
	log logrus.FieldLogger,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		registry:      registry,
		completer:     completer,
		policy:        policy,
		log:           log,
	}
}

// HandleTurn runs one chat turn. A failed completion is returned as is and
// nothing is persisted for it.
func (s *ChatService) HandleTurn(ctx context.Context, actor Actor, text string) (string, error) {
	if actor.UserID == 0 {
		return "", ErrUnauthenticated
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}

	history, err := s.conversations.History(ctx, actor.UserID)
	if err != nil {
		return "", err
	}

	messages := BuildContext(s.registry, actor.Role, history, text, s.policy)
	reply, err := s.completer.Complete(ctx, messages)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"user_id": actor.UserID,
			"role":    actor.Role,
		}).Warn("chat turn failed")
		return "", err
	}

	if _, err := s.conversations.Append(ctx, actor.UserID, text, reply); err != nil {
		return "", err
	}
	return reply, nil
}
