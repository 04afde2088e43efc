package app

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/google/uuid"
)

const (
	maxMessageLength   = 2000
	defaultMessagePage = 50
)

func conversationTopic(key string) string {
	return "conversation:" + key
}

// SendMessage stores a message from sender to receiverID and wakes any
// long-poll waiting on the conversation.
func (s *Service) SendMessage(ctx context.Context, sender *domain.User, receiverID uuid.UUID, body string) (*domain.Message, error) {
	if err := RequireRole(sender, domain.RoleVendor, domain.RoleInvestor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if sender.ID == receiverID {
		return nil, ErrSelfMessage
	}
	text := sanitizeText(body)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return nil, ErrMessageTooLong
	}
	if err := s.consumeRateLimit(ctx, "message", sender.ID.String(), s.config.MessageRateLimitPerMinute); err != nil {
		return nil, err
	}

	receiver, err := s.repo.FindUserByID(ctx, receiverID)
	if err != nil {
		return nil, err
	}

	message := &domain.Message{
		SenderID:     sender.ID,
		SenderName:   sender.Name,
		ReceiverID:   receiver.ID,
		ReceiverName: receiver.Name,
		Body:         text,
	}
	if err := s.repo.AppendMessage(ctx, message); err != nil {
		return nil, err
	}
	s.metrics.MessagesSent.Inc()

	if err := s.notifier.Publish(ctx, conversationTopic(message.ConversationKey)); err != nil {
		s.logger.Warn("failed to notify conversation", "conversation_key", message.ConversationKey, "error", err)
	}
	if err := s.repo.TouchLastActive(ctx, sender.ID, s.now()); err != nil {
		s.logger.Warn("failed to record last activity", "user_id", sender.ID, "error", err)
	}
	return message, nil
}

// ListMessages returns messages after the cursor in ascending sequence order.
func (s *Service) ListMessages(ctx context.Context, user *domain.User, peerID uuid.UUID, afterSeq int64, limit int) (*domain.MessagePage, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultMessagePage
	}
	if afterSeq < 0 {
		afterSeq = 0
	}
	key := domain.ConversationKey(user.ID, peerID)
	messages, err := s.repo.ListMessages(ctx, key, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	page := &domain.MessagePage{Messages: messages, NextCursor: afterSeq}
	if n := len(messages); n > 0 {
		page.NextCursor = messages[n-1].Seq
	}
	return page, nil
}

// WaitMessages long-polls the conversation. It returns as soon as there is
// anything after the cursor, or an empty page once wait elapses.
func (s *Service) WaitMessages(ctx context.Context, user *domain.User, peerID uuid.UUID, afterSeq int64, limit int, wait time.Duration) (*domain.MessagePage, error) {
	maxWait := time.Duration(s.config.MessageWaitMaxSeconds) * time.Second
	if maxWait <= 0 {
		maxWait = 25 * time.Second
	}
	if wait > maxWait {
		wait = maxWait
	}
	if wait <= 0 {
		return s.ListMessages(ctx, user, peerID, afterSeq, limit)
	}

	// Subscribe before the first read so a message committed in between
	// still wakes us.
	topic := conversationTopic(domain.ConversationKey(user.ID, peerID))
	sub, err := s.notifier.Subscribe(ctx, topic)
	if err != nil {
		s.logger.Warn("failed to subscribe to conversation; answering without waiting", "topic", topic, "error", err)
		return s.ListMessages(ctx, user, peerID, afterSeq, limit)
	}
	defer sub.Close()

	page, err := s.ListMessages(ctx, user, peerID, afterSeq, limit)
	if err != nil || len(page.Messages) > 0 {
		return page, err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return page, nil
		case <-sub.C():
			page, err = s.ListMessages(ctx, user, peerID, afterSeq, limit)
			if err != nil || len(page.Messages) > 0 {
				return page, err
			}
		}
	}
}

// MarkConversationRead marks messages from peer up to upToSeq as read.
func (s *Service) MarkConversationRead(ctx context.Context, user *domain.User, peerID uuid.UUID, upToSeq int64) (int64, error) {
	return s.repo.MarkMessagesRead(ctx, domain.ConversationKey(user.ID, peerID), user.ID, upToSeq)
}

// Conversations lists the caller's inbox.
func (s *Service) Conversations(ctx context.Context, user *domain.User) ([]domain.ConversationSummary, error) {
	return s.repo.ListConversations(ctx, user.ID)
}
