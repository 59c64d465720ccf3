package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HyphaGroup/codexd/internal/agent"
)

func deltaEvent(text string) *agent.Event {
	ev := agent.NewEvent(agent.EventStreamDelta, "c1")
	ev.Text = text
	return ev
}

func texts(events []*BufferedEvent) []string {
	out := make([]string, 0, len(events))
	for _, be := range events {
		out = append(out, be.Event.Text)
	}
	return out
}

func TestEventBuffer_Append(t *testing.T) {
	buf := NewEventBuffer("c1", 10)
	assert.True(t, buf.LastAppend().IsZero())

	assert.Equal(t, 0, buf.Append(deltaEvent("a")))
	assert.Equal(t, 1, buf.Append(deltaEvent("b")))
	assert.Equal(t, 2, buf.Len())
	assert.False(t, buf.LastAppend().IsZero())
}

func TestEventBuffer_EmptyPoll(t *testing.T) {
	buf := NewEventBuffer("c1", 10)

	page, err := buf.Since(-1)
	require.NoError(t, err)
	assert.Empty(t, page.Events)
	assert.NotNil(t, page.Events)
	assert.Equal(t, -1, page.LastIndex)
}

func TestEventBuffer_Since(t *testing.T) {
	buf := NewEventBuffer("c1", 10)
	for _, s := range []string{"a", "b", "c"} {
		buf.Append(deltaEvent(s))
	}

	tests := []struct {
		name  string
		after int
		want  []string
	}{
		{"everything", -1, []string{"a", "b", "c"}},
		{"after first", 0, []string{"b", "c"}},
		{"after second", 1, []string{"c"}},
		{"caught up", 2, []string{}},
		{"ahead", 100, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := buf.Since(tt.after)
			require.NoError(t, err)
			assert.Equal(t, tt.want, texts(page.Events))
			assert.Equal(t, 2, page.LastIndex)
			assert.Zero(t, page.Dropped)
		})
	}
}

func TestEventBuffer_Overwrite(t *testing.T) {
	buf := NewEventBuffer("c1", 3)
	for _, s := range []string{"a", "b", "c", "d"} {
		buf.Append(deltaEvent(s))
	}
	assert.Equal(t, 3, buf.Len())

	page, err := buf.Since(-1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, texts(page.Events))
	assert.Equal(t, 1, page.Events[0].Index)
	assert.Equal(t, 3, page.LastIndex)
	assert.Equal(t, 1, page.Dropped)

	// A client that saw index 0 has lost nothing yet.
	page, err = buf.Since(0)
	require.NoError(t, err)
	assert.Len(t, page.Events, 3)

	buf.Append(deltaEvent("e"))
	page, err = buf.Since(0)
	assert.ErrorIs(t, err, ErrEventsPurged)
	assert.Equal(t, 4, page.LastIndex)
	assert.Equal(t, 2, page.Dropped)
}

func TestEventBuffer_ConcurrentAppend(t *testing.T) {
	buf := NewEventBuffer("c1", 1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				buf.Append(deltaEvent("x"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, buf.Len())
	page, err := buf.Since(-1)
	require.NoError(t, err)
	assert.Equal(t, 499, page.LastIndex)
	for i, be := range page.Events {
		assert.Equal(t, i, be.Index)
	}
}
