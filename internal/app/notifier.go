package app

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Notifier wakes long-poll waiters when a topic changes. A notification
// carries no payload; waiters re-read the store after waking.
type Notifier interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription delivers wake-ups for one topic until closed.
type Subscription interface {
	C() <-chan struct{}
	Close() error
}

// MemoryNotifier is an in-process Notifier for single-instance deployments and tests.
type MemoryNotifier struct {
	mu     sync.Mutex
	topics map[string]map[*memorySubscription]struct{}
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{topics: make(map[string]map[*memorySubscription]struct{})}
}

type memorySubscription struct {
	notifier *MemoryNotifier
	topic    string
	ch       chan struct{}
	once     sync.Once
}

func (s *memorySubscription) C() <-chan struct{} { return s.ch }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.notifier.mu.Lock()
		defer s.notifier.mu.Unlock()
		subs := s.notifier.topics[s.topic]
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.notifier.topics, s.topic)
		}
	})
	return nil
}

func (n *MemoryNotifier) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	sub := &memorySubscription{notifier: n, topic: topic, ch: make(chan struct{}, 1)}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.topics[topic] == nil {
		n.topics[topic] = make(map[*memorySubscription]struct{})
	}
	n.topics[topic][sub] = struct{}{}
	return sub, nil
}

func (n *MemoryNotifier) Publish(ctx context.Context, topic string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.topics[topic] {
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// RedisNotifier fans wake-ups out across instances with Redis pub/sub.
type RedisNotifier struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisNotifier(client redis.UniversalClient, prefix string) *RedisNotifier {
	return &RedisNotifier{client: client, prefix: prefix + ":notify:"}
}

func (n *RedisNotifier) Publish(ctx context.Context, topic string) error {
	return n.client.Publish(ctx, n.prefix+topic, "1").Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	pubsub := n.client.Subscribe(ctx, n.prefix+topic)
	// Wait for the subscription confirmation so a publish issued right
	// after Subscribe returns is not missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{pubsub: pubsub, ch: make(chan struct{}, 1), done: make(chan struct{})}
	go sub.forward()
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) forward() {
	defer close(s.done)
	for range s.pubsub.Channel() {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}

func (s *redisSubscription) C() <-chan struct{} { return s.ch }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
		<-s.done
	})
	return err
}
