// Package livequery implements the subscription layer every engine pushes
// incremental state through. A subscription receives the current snapshot of
// its watched entity set at registration and a full recomputed snapshot after
// every published change, never a diff, so observers always hold an
// internally consistent view.
package livequery

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Topic names one watched entity set, e.g. "notifications/u1".
type Topic string

// TopicFor joins path segments into a topic.
func TopicFor(parts ...string) Topic {
	return Topic(strings.Join(parts, "/"))
}

// RecomputeFunc rebuilds the full snapshot for a subscription. It re-reads
// every dynamic dependency (e.g. the current friend set) on each call.
type RecomputeFunc func(ctx context.Context) (any, error)

// Snapshot is one full view delivered to a subscriber. Version increases by
// one per delivery within a subscription.
type Snapshot struct {
	Version int64
	Data    any
}

// State tracks the subscription lifecycle.
type State int32

const (
	// StateRegistered means the initial snapshot has not been delivered yet.
	StateRegistered State = iota
	// StateStreaming means deltas are being delivered.
	StateStreaming
	// StateCancelled means no further deliveries will occur.
	StateCancelled
)

// Broker fans out topic invalidations to registered subscriptions.
type Broker struct {
	mu   sync.Mutex
	subs map[Topic]map[*Subscription]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[Topic]map[*Subscription]struct{})}
}

// Subscribe registers interest in a set of topics. The initial snapshot is
// computed synchronously before any delta can be observed; a recompute
// failure at registration fails the subscription outright.
func (b *Broker) Subscribe(ctx context.Context, topics []Topic, recompute RecomputeFunc) (*Subscription, error) {
	if b == nil {
		return nil, fmt.Errorf("broker is required")
	}
	if recompute == nil {
		return nil, fmt.Errorf("recompute func is required")
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}

	sub := &Subscription{
		broker:    b,
		topics:    append([]Topic(nil), topics...),
		recompute: recompute,
		updates:   make(chan Snapshot, 1),
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		state:     StateRegistered,
	}

	initial, err := recompute(ctx)
	if err != nil {
		return nil, fmt.Errorf("compute initial snapshot: %w", err)
	}

	b.mu.Lock()
	for _, topic := range sub.topics {
		set, ok := b.subs[topic]
		if !ok {
			set = make(map[*Subscription]struct{})
			b.subs[topic] = set
		}
		set[sub] = struct{}{}
	}
	b.mu.Unlock()

	sub.mu.Lock()
	sub.version++
	sub.deliverLocked(Snapshot{Version: sub.version, Data: initial})
	sub.state = StateStreaming
	sub.mu.Unlock()

	go sub.run(ctx)
	return sub, nil
}

// Publish invalidates topics; every subscription watching any of them
// recomputes and delivers a fresh snapshot. Publishing an unwatched topic is
// a no-op.
func (b *Broker) Publish(topics ...Topic) {
	if b == nil {
		return
	}
	notified := make(map[*Subscription]struct{})
	b.mu.Lock()
	for _, topic := range topics {
		for sub := range b.subs[topic] {
			notified[sub] = struct{}{}
		}
	}
	b.mu.Unlock()

	for sub := range notified {
		select {
		case sub.kick <- struct{}{}:
		default:
			// A recompute is already pending; it will observe this change.
		}
	}
}

func (b *Broker) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	for _, topic := range sub.topics {
		set, ok := b.subs[topic]
		if !ok {
			continue
		}
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, topic)
		}
	}
	b.mu.Unlock()
}

// Subscription is one registered observer interest. Updates must be drained
// by a single consumer; slow consumers coalesce to the newest snapshot.
type Subscription struct {
	broker    *Broker
	topics    []Topic
	recompute RecomputeFunc

	mu      sync.Mutex
	state   State
	version int64

	updates    chan Snapshot
	kick       chan struct{}
	done       chan struct{}
	cancelOnce sync.Once
}

// Updates returns the snapshot stream. The channel is closed after Cancel.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.updates
}

// State reports the lifecycle state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cancel stops deliveries and releases broker resources. Snapshots already
// dispatched remain readable; no new ones are produced. Cancel is idempotent.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(func() {
		s.broker.unsubscribe(s)
		s.mu.Lock()
		s.state = StateCancelled
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Subscription) run(ctx context.Context) {
	for {
		select {
		case <-s.done:
			close(s.updates)
			return
		case <-ctx.Done():
			s.Cancel()
		case <-s.kick:
			data, err := s.recompute(ctx)
			if err != nil {
				log.Printf("livequery: recompute failed for %v: %v", s.topics, err)
				continue
			}
			s.mu.Lock()
			if s.state != StateCancelled {
				s.version++
				s.deliverLocked(Snapshot{Version: s.version, Data: data})
			}
			s.mu.Unlock()
		}
	}
}

// deliverLocked replaces any undrained snapshot with the newer one.
func (s *Subscription) deliverLocked(snapshot Snapshot) {
	for {
		select {
		case s.updates <- snapshot:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}
