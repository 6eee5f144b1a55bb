package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/docwatch/internal/session"
)

func TestOutbox_DropsWhenFull(t *testing.T) {
	out := newOutbox()
	for range outboxSize {
		require.NoError(t, out.Send(session.Issue("x")))
	}
	assert.ErrorIs(t, out.Send(session.Issue("overflow")), errOutboxFull)
}

func TestOutbox_CloseKeepsQueued(t *testing.T) {
	out := newOutbox()
	require.NoError(t, out.Send(session.Issue("first")))
	out.Close()
	out.Close()

	assert.ErrorIs(t, out.Send(session.Issue("late")), errOutboxClosed)

	var got []string
	for msg := range out.Messages() {
		got = append(got, string(msg.Arg(0)))
	}
	assert.Equal(t, []string{`"first"`}, got)
}
