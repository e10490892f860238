package gossip

import "container/list"

// seenSetMax bounds the seen set and the message store.
const seenSetMax = 10000

// SeenStore is the duplicate-suppression set plus the bounded message
// store backing anti-entropy replays. Ids keep insertion order; when
// the capacity is exceeded the oldest id is evicted together with its
// stored envelope, so the store never outlives the seen entry.
type SeenStore struct {
	capacity int
	order    *list.List // ids, front = oldest
	elems    map[string]*list.Element
	msgs     map[string]*Envelope
}

func NewSeenStore(capacity int) *SeenStore {
	return &SeenStore{
		capacity: capacity,
		order:    list.New(),
		elems:    make(map[string]*list.Element),
		msgs:     make(map[string]*Envelope),
	}
}

// Mark records id as seen, storing env for replay when non-nil.
// Marking an id again keeps its insertion position.
func (s *SeenStore) Mark(id string, env *Envelope) {
	if _, ok := s.elems[id]; ok {
		if env != nil {
			s.msgs[id] = env
		}
		return
	}
	s.elems[id] = s.order.PushBack(id)
	if env != nil {
		s.msgs[id] = env
	}
	for s.order.Len() > s.capacity {
		oldest := s.order.Front()
		evicted := s.order.Remove(oldest).(string)
		delete(s.elems, evicted)
		delete(s.msgs, evicted)
	}
}

func (s *SeenStore) Contains(id string) bool {
	_, ok := s.elems[id]
	return ok
}

// Get returns the stored envelope for id, if it is still retained.
func (s *SeenStore) Get(id string) (*Envelope, bool) {
	env, ok := s.msgs[id]
	return env, ok
}

// Recent returns up to k of the most recently inserted ids, oldest of
// those first.
func (s *SeenStore) Recent(k int) []string {
	if k > s.order.Len() {
		k = s.order.Len()
	}
	if k <= 0 {
		return nil
	}
	ids := make([]string, k)
	e := s.order.Back()
	for i := k - 1; i >= 0; i-- {
		ids[i] = e.Value.(string)
		e = e.Prev()
	}
	return ids
}

func (s *SeenStore) Len() int { return s.order.Len() }

// StoredLen reports how many full envelopes are retained.
func (s *SeenStore) StoredLen() int { return len(s.msgs) }
