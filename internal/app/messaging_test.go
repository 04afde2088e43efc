package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/fundlink/fundlink-service/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type stubLimiter struct {
	count int
	err   error
}

func (l *stubLimiter) Attempt(ctx context.Context, scope, subject string, limit int, window time.Duration) (RateLimit, error) {
	if l.err != nil {
		return RateLimit{}, l.err
	}
	l.count++
	return newRateLimit(l.count, 41500*time.Millisecond, l.count <= limit, limit, window), nil
}

func TestSendMessageOrdersBySeqAndSharesKey(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	vendor := env.repo.addUser("Asha", domain.RoleVendor)
	investor := env.repo.addUser("Ravi", domain.RoleInvestor)

	first, err := env.svc.SendMessage(ctx, vendor, investor.ID, "Hello, are you interested?")
	require.NoError(t, err)
	second, err := env.svc.SendMessage(ctx, investor, vendor.ID, "Yes, tell me more")
	require.NoError(t, err)
	third, err := env.svc.SendMessage(ctx, vendor, investor.ID, "Sending the deck now")
	require.NoError(t, err)

	assert.Equal(t, first.ConversationKey, second.ConversationKey)
	assert.Equal(t, domain.ConversationKey(investor.ID, vendor.ID), third.ConversationKey)
	assert.Equal(t, []int64{1, 2, 3}, []int64{first.Seq, second.Seq, third.Seq})

	page, err := env.svc.ListMessages(ctx, investor, vendor.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	assert.Equal(t, int64(3), page.NextCursor)
	assert.Equal(t, "Yes, tell me more", page.Messages[1].Body)

	page, err = env.svc.ListMessages(ctx, vendor, investor.ID, 2, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, int64(3), page.Messages[0].Seq)

	marked, err := env.svc.MarkConversationRead(ctx, investor, vendor.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	vendor := env.repo.addUser("Asha", domain.RoleVendor)
	investor := env.repo.addUser("Ravi", domain.RoleInvestor)
	roleless := env.repo.addUser("Legacy", "")

	tests := []struct {
		name    string
		sender  *domain.User
		to      *domain.User
		body    string
		wantErr error
	}{
		{name: "empty", sender: vendor, to: investor, body: "   ", wantErr: ErrEmptyMessage},
		{name: "markup only", sender: vendor, to: investor, body: "<script></script>", wantErr: ErrEmptyMessage},
		{name: "too long", sender: vendor, to: investor, body: strings.Repeat("a", maxMessageLength+1), wantErr: ErrMessageTooLong},
		{name: "self", sender: vendor, to: vendor, body: "hi", wantErr: ErrSelfMessage},
		{name: "no role", sender: roleless, to: investor, body: "hi", wantErr: ErrRoleRequired},
		{name: "unknown receiver", sender: vendor, to: &domain.User{}, body: "hi", wantErr: store.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.SendMessage(ctx, tt.sender, tt.to.ID, tt.body)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	msg, err := env.svc.SendMessage(ctx, vendor, investor.ID, "<b>Hi</b> there")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", msg.Body)
}

func TestSendMessageRateLimited(t *testing.T) {
	limiter := &stubLimiter{}
	env := newTestEnv(func(d *Dependencies) {
		d.Limiter = limiter
		d.Config.MessageRateLimitPerMinute = 2
	})
	ctx := context.Background()
	vendor := env.repo.addUser("Asha", domain.RoleVendor)
	investor := env.repo.addUser("Ravi", domain.RoleInvestor)

	for i := 0; i < 2; i++ {
		_, err := env.svc.SendMessage(ctx, vendor, investor.ID, "ping")
		require.NoError(t, err)
	}
	_, err := env.svc.SendMessage(ctx, vendor, investor.ID, "ping")
	var rateErr *RateLimitError
	require.True(t, errors.As(err, &rateErr))
	assert.Equal(t, "message", rateErr.Scope)
	assert.Equal(t, 42, rateErr.RetryAfterSeconds)

	// A broken limiter fails open.
	limiter.err = errors.New("redis down")
	_, err = env.svc.SendMessage(ctx, vendor, investor.ID, "ping")
	assert.NoError(t, err)
}

func TestWaitMessagesWakesOnSend(t *testing.T) {
	defer goleak.VerifyNone(t)

	env := newTestEnv()
	ctx := context.Background()
	vendor := env.repo.addUser("Asha", domain.RoleVendor)
	investor := env.repo.addUser("Ravi", domain.RoleInvestor)

	done := make(chan *domain.MessagePage, 1)
	errCh := make(chan error, 1)
	go func() {
		page, err := env.svc.WaitMessages(ctx, investor, vendor.ID, 0, 10, 5*time.Second)
		errCh <- err
		done <- page
	}()

	// Keep sending until the waiter has subscribed and picked a message up.
	require.Eventually(t, func() bool {
		if _, err := env.svc.SendMessage(ctx, vendor, investor.ID, "are you there?"); err != nil {
			return false
		}
		select {
		case page := <-done:
			return page != nil && len(page.Messages) > 0 && page.NextCursor >= 1
		default:
			return false
		}
	}, 3*time.Second, 20*time.Millisecond)
	require.NoError(t, <-errCh)
}

func TestWaitMessagesReturnsExistingWithoutBlocking(t *testing.T) {
	defer goleak.VerifyNone(t)

	env := newTestEnv()
	ctx := context.Background()
	vendor := env.repo.addUser("Asha", domain.RoleVendor)
	investor := env.repo.addUser("Ravi", domain.RoleInvestor)
	_, err := env.svc.SendMessage(ctx, vendor, investor.ID, "hello")
	require.NoError(t, err)

	start := time.Now()
	page, err := env.svc.WaitMessages(ctx, investor, vendor.ID, 0, 10, 5*time.Second)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitMessagesTimesOutAndHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	env := newTestEnv()
	vendor := env.repo.addUser("Asha", domain.RoleVendor)
	investor := env.repo.addUser("Ravi", domain.RoleInvestor)

	page, err := env.svc.WaitMessages(context.Background(), investor, vendor.ID, 0, 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.Equal(t, int64(0), page.NextCursor)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = env.svc.WaitMessages(ctx, investor, vendor.ID, 0, 10, 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryNotifierDeliversAndUnsubscribes(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	notifier := NewMemoryNotifier()
	sub, err := notifier.Subscribe(ctx, "conversation:a_b")
	require.NoError(t, err)

	// Bursts coalesce into one pending wake-up.
	require.NoError(t, notifier.Publish(ctx, "conversation:a_b"))
	require.NoError(t, notifier.Publish(ctx, "conversation:a_b"))
	select {
	case <-sub.C():
	case <-time.After(time.Second):
		t.Fatal("expected a wake-up")
	}
	select {
	case <-sub.C():
		t.Fatal("expected wake-ups to coalesce")
	default:
	}

	require.NoError(t, notifier.Publish(ctx, "conversation:other"))
	select {
	case <-sub.C():
		t.Fatal("unexpected wake-up from another topic")
	default:
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Empty(t, notifier.topics)
}
