package cart

import "sync"

// Listener は変更のたびに、確定したStateと元のActionで呼ばれる
type Listener func(s State, a Action)

type subscriber struct {
	id int
	fn Listener
}

// Store はカートの状態を持つ。Dispatchは直列で、リスナーはDispatch順に呼ばれる。
type Store struct {
	dispatchMu sync.Mutex

	mu        sync.RWMutex
	state     State
	listeners []subscriber
	nextID    int
}

func NewStore() *Store {
	return &Store{state: State{Items: []LineItem{}}}
}

func (s *Store) Dispatch(a Action) State {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	next := Reduce(s.state, a)
	s.state = next
	ls := make([]subscriber, len(s.listeners))
	copy(ls, s.listeners)
	s.mu.Unlock()

	// リスナーの中からDispatchしないこと（デッドロックする）
	for _, l := range ls {
		l.fn(next, a)
	}
	return next
}

// Subscribe は解除用の関数を返す
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{Items: cloneItems(s.state.Items)}
}

func (s *Store) Items() []LineItem {
	return s.State().Items
}

func (s *Store) Total() float64 {
	return s.State().Total()
}

func (s *Store) AddItem(p Product) State {
	return s.Dispatch(AddItem(p))
}

func (s *Store) RemoveItem(id string) State {
	return s.Dispatch(RemoveItem(id))
}

func (s *Store) UpdateQuantity(id string, quantity int64) State {
	return s.Dispatch(UpdateQuantity(id, quantity))
}

func (s *Store) ClearCart() State {
	return s.Dispatch(ClearCart())
}

func (s *Store) Hydrate(items []LineItem, origin Origin) State {
	return s.Dispatch(Hydrate(items, origin))
}
