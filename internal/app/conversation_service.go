package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"rolechat/internal/model"
	"rolechat/internal/repository"
)

const exportTimeLayout = "2006-01-02 15:04:05"

type HistoryCache interface {
	GetHistory(ctx context.Context, userID uint) ([]model.ChatMessage, bool, error)
	Version(ctx context.Context, userID uint) (int64, error)
	SetHistory(ctx context.Context, userID uint, version int64, messages []model.ChatMessage) error
	Invalidate(ctx context.Context, userID uint) error
}

type TurnPublisher interface {
	Publish(ctx context.Context, event model.TurnEvent) error
}

type ConversationService struct {
	messageRepo  *repository.ChatMessageRepository
	historyCache HistoryCache
	publisher    TurnPublisher
	log          logrus.FieldLogger
	now          func() time.Time
}

// NewConversationService accepts nil cache and publisher when those
// integrations are disabled.
func NewConversationService(
	messageRepo *repository.ChatMessageRepository,
	historyCache HistoryCache,
	publisher TurnPublisher,
	log logrus.FieldLogger,
) *ConversationService {
	return &ConversationService{
		messageRepo:  messageRepo,
		historyCache: historyCache,
		publisher:    publisher,
		log:          log,
		now:          time.Now,
	}
}

// Append persists one turn. The history cache is invalidated before the insert
// and an invalidation failure aborts the turn, so a cached copy never hides a
// stored entry.
func (s *ConversationService) Append(ctx context.Context, userID uint, userText, botReply string) (*model.ChatMessage, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	if strings.TrimSpace(userText) == "" {
		return nil, ErrEmptyMessage
	}

	if s.historyCache != nil {
		if err := s.historyCache.Invalidate(ctx, userID); err != nil {
			return nil, fmt.Errorf("invalidate history cache failed: %w", err)
		}
	}

	createdAt := s.now().UTC().Truncate(time.Millisecond)
	latest, err := s.messageRepo.LatestByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		floor := latest.CreatedAt.UTC().Truncate(time.Millisecond)
		if !createdAt.After(floor) {
			createdAt = floor.Add(time.Millisecond)
		}
	}

	message := &model.ChatMessage{
		UserID:    userID,
		UserText:  userText,
		BotReply:  botReply,
		CreatedAt: createdAt,
	}
	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	entry := s.log.WithFields(logrus.Fields{"user_id": userID, "message_id": message.ID})
	if s.historyCache != nil {
		// drops snapshots filled while the insert was in flight
		if err := s.historyCache.Invalidate(ctx, userID); err != nil {
			entry.WithError(err).Warn("invalidate history cache after insert failed")
		}
	}
	if s.publisher != nil {
		event := model.TurnEvent{UserID: userID, MessageID: message.ID, CreatedAt: message.CreatedAt}
		if err := s.publisher.Publish(ctx, event); err != nil {
			entry.WithError(err).Warn("publish turn event failed")
		}
	}
	return message, nil
}

func (s *ConversationService) History(ctx context.Context, userID uint) ([]model.ChatMessage, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}

	fill := false
	var version int64
	if s.historyCache != nil {
		cached, hit, err := s.historyCache.GetHistory(ctx, userID)
		if err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("read history cache failed")
		} else if hit {
			return cached, nil
		}
		if version, err = s.historyCache.Version(ctx, userID); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("read history version failed")
		} else {
			fill = true
		}
	}

	messages, err := s.messageRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if fill {
		if err := s.historyCache.SetHistory(ctx, userID, version, messages); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("fill history cache failed")
		}
	}
	return messages, nil
}

func (s *ConversationService) ExportText(ctx context.Context, userID uint) (string, error) {
	messages, err := s.History(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load history for export failed: %w", err)
	}
	return RenderExport(messages), nil
}

// RenderExport formats a history as the plain-text download: a "You" line and
// a "Bot" line per turn, each turn followed by a blank line.
func RenderExport(messages []model.ChatMessage) string {
	lines := make([]string, 0, len(messages)*3)
	for _, msg := range messages {
		ts := msg.CreatedAt.UTC().Format(exportTimeLayout)
		lines = append(lines,
			fmt.Sprintf("[%s] You: %s", ts, msg.UserText),
			fmt.Sprintf("[%s] Bot: %s", ts, msg.BotReply),
			"",
		)
	}
	return strings.Join(lines, "\n")
}
