// Package app is the display side of the chat. Everything the user sees goes
// through a Display.
package app

import (
	"github.com/libp2p/go-libp2p/core/peer"
)

// Display is the sink for user facing output.
type Display interface {
	// Message shows a decrypted message from another member.
	Message(from peer.ID, text string)
	// Echo shows a message the local user sent.
	Echo(text string)
	// Info reports progress such as members joining.
	Info(msg string)
	// Warn reports something the user did or received that could not be
	// acted on.
	Warn(msg string)
	// Clear clears the screen.
	Clear()
}
