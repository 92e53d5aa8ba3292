package game

import (
	"sync"

	"github.com/tikotus/funky-server/internal/network"
)

// subscriber is anything that can receive a delivered Envelope without
// blocking the publisher. *player.Player satisfies this via its own
// drop-newest outbound buffer; syncSlot (sync.go) satisfies it via a
// single-slot sliding buffer.
type subscriber interface {
	Deliver(network.Envelope)
}

// topicPub is the session's egress publish/subscribe point: a map from
// topic to subscriber set, guarded by a mutex. Messages are classified into
// {lock, sync, join, other} by network.TopicOf and delivered only to
// subscribers of that topic.
type topicPub struct {
	mu   sync.Mutex
	subs map[network.Topic]map[subscriber]struct{}
}

func newTopicPub() *topicPub {
	return &topicPub{subs: make(map[network.Topic]map[subscriber]struct{})}
}

// Subscribe registers sub to receive messages classified under each of
// topics.
func (tp *topicPub) Subscribe(sub subscriber, topics ...network.Topic) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	for _, t := range topics {
		if tp.subs[t] == nil {
			tp.subs[t] = make(map[subscriber]struct{})
		}
		tp.subs[t][sub] = struct{}{}
	}
}

// AddTopic registers an additional topic for an already-subscribed
// subscriber, used when a newcomer's outbound gains :join once sync
// completes.
func (tp *topicPub) AddTopic(sub subscriber, topic network.Topic) {
	tp.Subscribe(sub, topic)
}

// Unsubscribe removes sub from every topic.
func (tp *topicPub) Unsubscribe(sub subscriber) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	for _, set := range tp.subs {
		delete(set, sub)
	}
}

// Publish classifies e by topic and delivers it to every current
// subscriber of that topic.
func (tp *topicPub) Publish(e network.Envelope) {
	topic := network.TopicOf(e)

	tp.mu.Lock()
	subs := make([]subscriber, 0, len(tp.subs[topic]))
	for s := range tp.subs[topic] {
		subs = append(subs, s)
	}
	tp.mu.Unlock()

	for _, s := range subs {
		s.Deliver(e)
	}
}
