package api

import (
	"sync"

	"splitmix/task"
)

const (
	subscriberBuffer = 64
	maxFinished      = 32
)

// hub fans one task's event channel out to any number of SSE clients and
// keeps a compacted history so late subscribers can replay it.
type hub struct {
	mu       sync.Mutex
	streams  map[string]*stream
	finished []string
}

type stream struct {
	history []task.Event
	subs    map[chan task.Event]struct{}
	done    bool
}

func newHub() *hub {
	return &hub{streams: make(map[string]*stream)}
}

// track consumes events until the manager closes the channel.
func (h *hub) track(id string, events <-chan task.Event) {
	h.mu.Lock()
	h.streams[id] = &stream{subs: make(map[chan task.Event]struct{})}
	h.mu.Unlock()

	go func() {
		for ev := range events {
			h.publish(id, ev)
		}
		h.end(id)
	}()
}

func (h *hub) publish(id string, ev task.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.streams[id]
	if s == nil {
		return
	}

	// Consecutive progress events of one stage collapse to the latest.
	if n := len(s.history); n > 0 && ev.Type == task.EventProgress && ev.Progress != nil {
		prev := s.history[n-1]
		if prev.Type == task.EventProgress && prev.Progress != nil && prev.Stage == ev.Stage {
			s.history[n-1] = ev
		} else {
			s.history = append(s.history, ev)
		}
	} else {
		s.history = append(s.history, ev)
	}

	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// A stalled client is dropped rather than reordered; it can reconnect and replay.
			delete(s.subs, ch)
			close(ch)
		}
	}
}

func (h *hub) end(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.streams[id]
	if s == nil {
		return
	}
	s.done = true
	for ch := range s.subs {
		close(ch)
	}
	s.subs = nil

	h.finished = append(h.finished, id)
	for len(h.finished) > maxFinished {
		delete(h.streams, h.finished[0])
		h.finished = h.finished[1:]
	}
}

// subscribe returns the history so far and, for unfinished tasks, a channel
// of the events that follow it.
func (h *hub) subscribe(id string) (history []task.Event, live <-chan task.Event, cancel func(), ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.streams[id]
	if s == nil {
		return nil, nil, func() {}, false
	}
	history = append([]task.Event(nil), s.history...)
	if s.done {
		return history, nil, func() {}, true
	}

	ch := make(chan task.Event, subscriberBuffer)
	s.subs[ch] = struct{}{}
	cancel = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
	return history, ch, cancel, true
}
