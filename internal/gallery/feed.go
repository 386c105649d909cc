package gallery

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type subscriber struct {
	id   string
	ch   chan []Record
	done chan struct{}
}

// offer delivers snap, replacing an undelivered older snapshot.
func (s *subscriber) offer(snap []Record) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// feed manages snapshot subscribers of a Gallery.
type feed struct {
	mu   sync.Mutex
	subs map[string]*subscriber
	log  *zap.Logger
}

func newFeed(log *zap.Logger) *feed {
	return &feed{subs: make(map[string]*subscriber), log: log}
}

func (f *feed) add(initial []Record) *subscriber {
	s := &subscriber{
		id:   uuid.NewString(),
		ch:   make(chan []Record, 1),
		done: make(chan struct{}),
	}
	s.offer(cloneRecords(initial))

	f.mu.Lock()
	f.subs[s.id] = s
	f.mu.Unlock()
	f.log.Debug("gallery subscriber added", zap.String("subscriber", s.id))
	return s
}

func (f *feed) remove(s *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[s.id]; !ok {
		return
	}
	delete(f.subs, s.id)
	close(s.ch)
	close(s.done)
	f.log.Debug("gallery subscriber removed", zap.String("subscriber", s.id))
}

func (f *feed) empty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs) == 0
}

// publish sends each subscriber its own copy of snap.
func (f *feed) publish(snap []Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		s.offer(cloneRecords(snap))
	}
}

func (f *feed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.subs {
		delete(f.subs, id)
		close(s.ch)
		close(s.done)
	}
}

func cloneRecords(recs []Record) []Record {
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}
