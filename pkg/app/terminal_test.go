package app_test

import (
	"bytes"
	"testing"

	"github.com/cmwaters/parley/pkg/app"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
)

func TestTerminal(t *testing.T) {
	var buf bytes.Buffer
	term := app.NewTerminal(&buf)

	term.Echo("hello")
	term.Message(peer.ID("a-very-long-peer-identifier"), "hi there")
	term.Warn("no group")

	out := buf.String()
	require.Contains(t, out, "me:")
	require.Contains(t, out, "hello")
	require.Contains(t, out, "hi there")
	require.Contains(t, out, "no group")
}

func TestShortID(t *testing.T) {
	id := peer.ID("short")
	require.Equal(t, id.String(), app.ShortID(id))

	long := peer.ID("a-very-long-peer-identifier")
	require.Len(t, app.ShortID(long), 12)
	require.Contains(t, long.String(), app.ShortID(long))
}

func TestRecorder(t *testing.T) {
	rec := app.NewRecorder()
	rec.Info("added")
	rec.Message("a", "hello")
	rec.Clear()

	require.Len(t, rec.Entries(), 3)
	msgs := rec.Filter(app.EntryMessage)
	require.Len(t, msgs, 1)
	require.Equal(t, peer.ID("a"), msgs[0].From)
	require.Equal(t, "hello", msgs[0].Text)
}
