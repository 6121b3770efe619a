package session

import (
	"context"
	"sync"
)

type Handler func(ctx context.Context, ev Event)

type Subscription interface {
	Unsubscribe()
}

// Broker は認証イベントの配信元。現在のSessionも持つ。
// Publishは登録順にハンドラを同期で呼ぶ。
type Broker struct {
	mu       sync.Mutex
	current  *Session
	handlers map[int]Handler
	order    []int
	nextID   int
}

func NewBroker() *Broker {
	return &Broker{handlers: map[int]Handler{}}
}

type subscription struct {
	b    *Broker
	id   int
	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()
		delete(s.b.handlers, s.id)
		for i, id := range s.b.order {
			if id == s.id {
				s.b.order = append(s.b.order[:i:i], s.b.order[i+1:]...)
				break
			}
		}
	})
}

func (b *Broker) OnAuthEvent(h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[b.nextID] = h
	b.order = append(b.order, b.nextID)
	return &subscription{b: b, id: b.nextID}
}

func (b *Broker) Publish(ctx context.Context, ev Event) {
	b.mu.Lock()
	switch ev.Type {
	case SignedIn:
		if ev.Session != nil {
			s := *ev.Session
			b.current = &s
		}
	case SignedOut:
		b.current = nil
	}
	hs := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		hs = append(hs, b.handlers[id])
	}
	b.mu.Unlock()

	for _, h := range hs {
		h(ctx, ev)
	}
}

func (b *Broker) Current() (Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return Session{}, false
	}
	return *b.current, true
}
