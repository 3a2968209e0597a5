package events_test

import (
	"testing"

	"github.com/leighmacdonald/tf-lobby/internal/events"
	"github.com/stretchr/testify/require"
)

func TestTopicOrdering(t *testing.T) {
	topic := events.NewTopic[int](8)
	sub := topic.Subscribe()

	for i := range 5 {
		topic.Publish(i)
	}

	require.Equal(t, []int{0, 1, 2, 3, 4}, events.Drain(sub))
}

func TestTopicLateAttach(t *testing.T) {
	topic := events.NewTopic[int](4)
	topic.Publish(1)

	sub := topic.Subscribe()
	topic.Publish(2)

	require.Equal(t, []int{2}, events.Drain(sub))
}

func TestTopicLaggingReader(t *testing.T) {
	topic := events.NewTopic[int](3)
	slow := topic.Subscribe()
	fast := topic.Subscribe()

	for i := range 5 {
		topic.Publish(i)
		require.Equal(t, []int{i}, events.Drain(fast))
	}

	// The slow reader lost the two oldest messages, never the newest.
	require.Equal(t, []int{2, 3, 4}, events.Drain(slow))
}

func TestTopicIndependentSubscribers(t *testing.T) {
	topic := events.NewTopic[string](4)
	first := topic.Subscribe()
	second := topic.Subscribe()

	topic.Publish("a")
	topic.Publish("b")

	require.Equal(t, []string{"a", "b"}, events.Drain(first))
	require.Equal(t, []string{"a", "b"}, events.Drain(second))
}

func TestDrainEmpty(t *testing.T) {
	topic := events.NewTopic[int](2)
	sub := topic.Subscribe()
	require.Empty(t, events.Drain(sub))
}
