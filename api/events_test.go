package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"splitmix/media"
	"splitmix/task"
)

func progress(stage media.Stage, overall float64) task.Event {
	return task.Event{Type: task.EventProgress, Stage: stage, Progress: media.Converting{Percent: overall}, Overall: overall}
}

func TestHubCompactsHistory(t *testing.T) {
	h := newHub()
	h.streams["t"] = &stream{subs: make(map[chan task.Event]struct{})}

	h.publish("t", task.Event{Type: task.EventStage, Stage: media.StageConverting})
	h.publish("t", progress(media.StageConverting, 10))
	h.publish("t", progress(media.StageConverting, 20))
	h.publish("t", task.Event{Type: task.EventProgress, Stage: media.StageConverting, Overall: 30})
	h.publish("t", task.Event{Type: task.EventStage, Stage: media.StageSeparating})
	h.publish("t", progress(media.StageSeparating, 40))

	history, live, cancel, ok := h.subscribe("t")
	require.True(t, ok)
	defer cancel()
	require.NotNil(t, live)

	var overall []float64
	for _, ev := range history {
		overall = append(overall, ev.Overall)
	}
	assert.Equal(t, []float64{0, 20, 30, 0, 40}, overall)
}

func TestHubLiveDelivery(t *testing.T) {
	h := newHub()
	events := make(chan task.Event)
	h.track("t", events)

	_, live, cancel, ok := h.subscribe("t")
	require.True(t, ok)
	defer cancel()

	events <- task.Event{Type: task.EventStage, Stage: media.StageConverting}
	events <- task.Event{Type: task.EventCompleted, Overall: 100}
	close(events)

	var got []task.EventType
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, open := <-live:
			if !open {
				assert.Equal(t, []task.EventType{task.EventStage, task.EventCompleted}, got)
				history, rest, _, ok := h.subscribe("t")
				assert.True(t, ok)
				assert.Nil(t, rest)
				assert.Len(t, history, 2)
				return
			}
			got = append(got, ev.Type)
		case <-timeout:
			t.Fatal("live channel was not closed")
		}
	}
}

func TestHubDropsStalledSubscriber(t *testing.T) {
	h := newHub()
	h.streams["t"] = &stream{subs: make(map[chan task.Event]struct{})}
	_, live, cancel, _ := h.subscribe("t")
	defer cancel()

	for i := 0; i <= subscriberBuffer; i++ {
		h.publish("t", task.Event{Type: task.EventStage})
	}
	n := 0
	for range live {
		n++
	}
	assert.Equal(t, subscriberBuffer, n)
}
