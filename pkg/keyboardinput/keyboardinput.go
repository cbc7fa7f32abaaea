// Package keyboardinput drives the protocol engine from stdin instead of a
// real CEC adapter, for `daemon --input keyboard` manual testing (spec.md
// §6): single-key raw mode when stdin is a tty, falling back to line
// mode (read a line, strip, lowercase) when it isn't.
package keyboardinput

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"

	"github.com/corvidae/cecbridge/pkg/bridgeengine"
	"github.com/corvidae/cecbridge/pkg/cecframe"
)

const source = "keyboard"

var keyMap = map[string]cecframe.Kind{
	"u":    cecframe.KindVolumeUp,
	"+":    cecframe.KindVolumeUp,
	"up":   cecframe.KindVolumeUp,
	"d":    cecframe.KindVolumeDown,
	"-":    cecframe.KindVolumeDown,
	"down": cecframe.KindVolumeDown,
	"m":    cecframe.KindMute,
	"mute": cecframe.KindMute,
}

var quitKeys = map[string]bool{"q": true, "quit": true, "exit": true}

// Adapter reads keystrokes from in and feeds the resulting events to
// engine.HandleInbound until ctx is cancelled, in is closed, or a quit key
// is seen.
type Adapter struct {
	in     io.Reader
	isTerm bool
	fd     int
}

// NewStdin builds an Adapter reading raw bytes from in, switching to
// single-key raw mode when fd names a terminal.
func NewStdin(in io.Reader, fd int) *Adapter {
	return &Adapter{in: in, isTerm: term.IsTerminal(fd), fd: fd}
}

// Run feeds keyboard events to engine until ctx is done or input ends.
func (a *Adapter) Run(ctx context.Context, engine *bridgeengine.Engine) error {
	if a.isTerm {
		return a.runCbreak(ctx, engine)
	}
	return a.runLineMode(ctx, engine)
}

func (a *Adapter) runCbreak(ctx context.Context, engine *bridgeengine.Engine) error {
	oldState, err := term.MakeRaw(a.fd)
	if err != nil {
		return fmt.Errorf("keyboardinput: enter raw mode: %w", err)
	}
	defer term.Restore(a.fd, oldState)

	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := a.in.Read(buf)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("keyboardinput: read: %w", err)
		}
		if n == 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(string(buf[:n])))
		if key == "" {
			continue
		}
		if quitKeys[key] {
			return nil
		}
		dispatch(ctx, engine, key)
	}
}

func (a *Adapter) runLineMode(ctx context.Context, engine *bridgeengine.Engine) error {
	scanner := bufio.NewScanner(a.in)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" {
			continue
		}
		if quitKeys[line] {
			return nil
		}
		dispatch(ctx, engine, line)
	}
	return scanner.Err()
}

func dispatch(ctx context.Context, engine *bridgeengine.Engine, key string) {
	kind, ok := keyMap[key]
	if !ok {
		return
	}
	engine.HandleInbound(ctx, &cecframe.InboundEvent{Kind: kind, Source: source, Key: key})
}
