package pkg

import "sync"

// subscriber receives best-effort frames from the broker.
type subscriber interface {
	Send(data []byte)
}

// link is the hub's view of one connection: unicast sends plus the ability
// to terminate it.
type link interface {
	subscriber
	Close()
}

// publisher is the broadcast primitive the hub publishes room updates
// through. Delivery is fire-and-forget: a slow or dead subscriber never
// blocks or fails delivery to the others.
type publisher interface {
	Subscribe(sub subscriber, topic string)
	Unsubscribe(sub subscriber, topic string)
	Publish(topic string, data []byte)
	Drop(sub subscriber)
}

// Broker is an in-process topic fan-out. Messages published to a topic are
// delivered to current subscribers in publish order.
type Broker struct {
	lock   sync.RWMutex
	topics map[string]map[subscriber]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]map[subscriber]struct{}),
	}
}

func (b *Broker) Subscribe(sub subscriber, topic string) {
	b.lock.Lock()
	defer b.lock.Unlock()

	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[subscriber]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}
}

func (b *Broker) Unsubscribe(sub subscriber, topic string) {
	b.lock.Lock()
	defer b.lock.Unlock()

	subs, ok := b.topics[topic]
	if !ok {
		return
	}

	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, topic)
	}
}

// Publish sends data to every subscriber of topic. Publishing to a topic
// with no subscribers is a no-op.
func (b *Broker) Publish(topic string, data []byte) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	for sub := range b.topics[topic] {
		sub.Send(data)
	}

	PresencePublishesCounter.Inc()
}

// Drop removes sub from every topic. Called when a connection closes without
// unsubscribing first.
func (b *Broker) Drop(sub subscriber) {
	b.lock.Lock()
	defer b.lock.Unlock()

	for topic, subs := range b.topics {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.topics, topic)
		}
	}
}
