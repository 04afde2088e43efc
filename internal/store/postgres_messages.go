package store

import (
	"context"
	"fmt"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/google/uuid"
)

// AppendMessage stores message under its conversation and assigns the next
// sequence number. The conversation row is the per-pair counter; its upsert
// takes a row lock, so sequence order matches commit order.
func (r *PostgresRepository) AppendMessage(ctx context.Context, message *domain.Message) error {
	message.ConversationKey = domain.ConversationKey(message.SenderID, message.ReceiverID)
	participantA, participantB := message.SenderID, message.ReceiverID
	if participantB.String() < participantA.String() {
		participantA, participantB = participantB, participantA
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO conversations (key, participant_a, participant_b, last_seq, last_message_at)
		VALUES ($1, $2, $3, 1, clock_timestamp())
		ON CONFLICT (key)
		DO UPDATE SET last_seq = conversations.last_seq + 1, last_message_at = clock_timestamp()
		RETURNING last_seq
	`, message.ConversationKey, participantA, participantB).Scan(&message.Seq)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to advance conversation sequence: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_key, seq, sender_id, receiver_id, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, message.ConversationKey, message.Seq, message.SenderID, message.ReceiverID, message.Body).Scan(&message.ID, &message.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	event := domain.MessageSentEvent{
		MessageID:       message.ID,
		ConversationKey: message.ConversationKey,
		Seq:             message.Seq,
		SenderID:        message.SenderID,
		ReceiverID:      message.ReceiverID,
		CreatedAt:       message.CreatedAt,
	}
	if err := enqueueEventTx(ctx, tx, r.exchange, domain.EventMessageSent, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListMessages returns up to limit messages with seq > afterSeq in ascending order.
func (r *PostgresRepository) ListMessages(ctx context.Context, conversationKey string, afterSeq int64, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	rows, err := r.db.Query(ctx, `
		SELECT m.id, m.conversation_key, m.seq, m.sender_id, COALESCE(su.name, ''),
			m.receiver_id, COALESCE(ru.name, ''), m.body, m.created_at, m.read
		FROM messages m
		LEFT JOIN users su ON su.id = m.sender_id
		LEFT JOIN users ru ON ru.id = m.receiver_id
		WHERE m.conversation_key = $1 AND m.seq > $2
		ORDER BY m.seq ASC
		LIMIT $3
	`, conversationKey, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var message domain.Message
		err := rows.Scan(
			&message.ID,
			&message.ConversationKey,
			&message.Seq,
			&message.SenderID,
			&message.SenderName,
			&message.ReceiverID,
			&message.ReceiverName,
			&message.Body,
			&message.CreatedAt,
			&message.Read,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

// seq is BIGINT; the cursor is cast so Postgres does not infer int4 from the 0 literal.
const markMessagesReadSQL = `
	UPDATE messages
	SET read = TRUE
	WHERE conversation_key = $1
	  AND receiver_id = $2
	  AND NOT read
	  AND ($3::bigint <= 0 OR seq <= $3::bigint)
`

// MarkMessagesRead flags messages addressed to receiverID as read. An upToSeq
// of zero or less marks the whole conversation.
func (r *PostgresRepository) MarkMessagesRead(ctx context.Context, conversationKey string, receiverID uuid.UUID, upToSeq int64) (int64, error) {
	result, err := r.db.Exec(ctx, markMessagesReadSQL, conversationKey, receiverID, upToSeq)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// ListConversations returns the user's inbox, most recent conversation first.
func (r *PostgresRepository) ListConversations(ctx context.Context, userID uuid.UUID) ([]domain.ConversationSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT cv.key, peer.id, peer.name, peer.role, cv.last_seq,
			COALESCE(lm.body, ''), cv.last_message_at,
			(
				SELECT COUNT(*)
				FROM messages um
				WHERE um.conversation_key = cv.key AND um.receiver_id = $1 AND NOT um.read
			)
		FROM conversations cv
		JOIN users peer ON peer.id = CASE WHEN cv.participant_a = $1 THEN cv.participant_b ELSE cv.participant_a END
		LEFT JOIN messages lm ON lm.conversation_key = cv.key AND lm.seq = cv.last_seq
		WHERE cv.participant_a = $1 OR cv.participant_b = $1
		ORDER BY cv.last_message_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := []domain.ConversationSummary{}
	for rows.Next() {
		var (
			summary domain.ConversationSummary
			role    string
		)
		err := rows.Scan(
			&summary.Key,
			&summary.PeerID,
			&summary.PeerName,
			&role,
			&summary.LastSeq,
			&summary.LastMessage,
			&summary.LastMessageAt,
			&summary.UnreadCount,
		)
		if err != nil {
			return nil, err
		}
		summary.PeerRole = domain.Role(role)
		conversations = append(conversations, summary)
	}
	return conversations, rows.Err()
}
