package parley

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cmwaters/parley/session"
	"github.com/cmwaters/parley/wire"
)

// ErrExit is returned by Execute when the user asks to quit.
var ErrExit = errors.New("exit requested")

type CommandName string

const (
	CmdCreate CommandName = "create"
	CmdJoin   CommandName = "join"
	CmdSend   CommandName = "send"
	CmdClear  CommandName = "clear"
	CmdExit   CommandName = "exit"
	CmdHelp   CommandName = "help"
)

const HelpText = `Commands:
  create       start a new group as its leader
  join         broadcast a request to join the group
  send <text>  send a message to the group
  clear        clear the screen
  exit         quit
  help         show this message`

// Command is one parsed command. Text is only set for send.
type Command struct {
	Name CommandName
	Text string
}

// UnknownCommandError is returned for a token that is not a command. Any
// commands before it on the line are still returned.
type UnknownCommandError struct {
	Token string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q, type 'help' for usage", e.Token)
}

// ParseCommands splits a line into commands. Several commands may share a
// line ("create join"); send consumes the remainder of the line as its text.
func ParseCommands(line string) ([]Command, error) {
	var cmds []Command
	rest := strings.TrimSpace(line)
	for rest != "" {
		token, tail, _ := strings.Cut(rest, " ")
		tail = strings.TrimSpace(tail)
		switch name := CommandName(token); name {
		case CmdSend:
			return append(cmds, Command{Name: CmdSend, Text: tail}), nil
		case CmdCreate, CmdJoin, CmdClear, CmdExit, CmdHelp:
			cmds = append(cmds, Command{Name: name})
		default:
			return cmds, &UnknownCommandError{Token: token}
		}
		rest = tail
	}
	return cmds, nil
}

// Execute parses and runs a line of input. User errors are shown on the
// display and are not returned. ErrExit and unrecoverable session errors
// are.
func (n *Node) Execute(ctx context.Context, line string) error {
	cmds, parseErr := ParseCommands(line)
	for _, cmd := range cmds {
		if err := n.execute(ctx, cmd); err != nil {
			return err
		}
	}
	if parseErr != nil {
		n.display.Warn(parseErr.Error())
	}
	return nil
}

func (n *Node) execute(ctx context.Context, cmd Command) error {
	switch cmd.Name {
	case CmdCreate:
		if err := n.session.Create(ctx); err != nil {
			return err
		}
		n.display.Info("Created a new group")

	case CmdJoin:
		kp, err := n.identity.KeyPackage()
		if err != nil {
			return err
		}
		data, err := wire.EncodeKeyPackage(kp)
		if err != nil {
			return err
		}
		if err := n.enqueue(data); err != nil {
			n.display.Warn("Could not send join request, try again")
			return nil
		}
		n.display.Info("Sent join request")

	case CmdSend:
		if cmd.Text == "" {
			n.display.Warn("usage: send <text>")
			return nil
		}
		msg, err := n.session.CreateMessage(ctx, cmd.Text)
		if errors.Is(err, session.ErrNoGroup) {
			n.display.Warn("No group yet, use 'create' or 'join' first")
			return nil
		}
		if err != nil {
			n.logger.Error().Err(err).Msg("creating message")
			n.display.Warn("Could not send message")
			return nil
		}
		if err := n.enqueue(wire.EncodeControl(msg)); err != nil {
			n.display.Warn("Could not send message, try again")
			return nil
		}
		n.display.Echo(cmd.Text)

	case CmdClear:
		n.display.Clear()

	case CmdExit:
		return ErrExit

	case CmdHelp:
		n.display.Info(HelpText)
	}
	return nil
}

// ReadCommands executes every line read from r until r is exhausted, the
// context is cancelled or the user exits. Exiting is not an error.
func (n *Node) ReadCommands(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return ctx.Err()
				}
			}
			err := n.Execute(ctx, line)
			if errors.Is(err, ErrExit) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}
}
