// Package hotkeys registers the two global shortcuts of spec §4.10. They
// are strictly diagnostic and never influence the session state machine.
// golang.design/x/hotkey has no analogue anywhere in the retrieval pack —
// global, outside-any-window hotkey registration is absent from every
// pack repo — so this package is named but not grounded, per SPEC_FULL §3.
package hotkeys

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.design/x/hotkey"
)

// CommandKind discriminates which diagnostic shortcut fired.
type CommandKind int

const (
	// CommandDebugSave saves the most recent capture buffer to the debug
	// directory (spec §4.10).
	CommandDebugSave CommandKind = iota
	// CommandToggleDebugBox toggles the overlay's debug outline.
	CommandToggleDebugBox
)

// Command flows from the hotkey handler to whatever consumes it (the
// overlay, for the debug box; the agent orchestrator, for debug save).
type Command struct {
	Kind CommandKind
}

// Handler owns the two registered global hotkeys for the process lifetime.
type Handler struct {
	commands chan<- Command
}

// New builds a Handler that emits onto commands.
func New(commands chan<- Command) *Handler {
	return &Handler{commands: commands}
}

// platformModifier returns the primary modifier key for the host OS:
// Cmd on macOS, Ctrl everywhere else, matching spec §6's
// "Ctrl/Cmd+Shift+..." notation.
func platformModifier() hotkey.Modifier {
	if runtime.GOOS == "darwin" {
		return hotkey.ModCmd
	}
	return hotkey.ModCtrl
}

// Run registers both shortcuts and blocks, emitting a Command for every
// keydown, until ctx is cancelled.
func (h *Handler) Run(ctx context.Context) error {
	mod := platformModifier()

	save := hotkey.New([]hotkey.Modifier{mod, hotkey.ModShift}, hotkey.KeyS)
	if err := save.Register(); err != nil {
		return fmt.Errorf("hotkeys: failed to register debug-save shortcut: %w", err)
	}
	defer save.Unregister()

	toggle := hotkey.New([]hotkey.Modifier{mod, hotkey.ModShift}, hotkey.KeyD)
	if err := toggle.Register(); err != nil {
		return fmt.Errorf("hotkeys: failed to register debug-box shortcut: %w", err)
	}
	defer toggle.Unregister()

	slog.Info("hotkeys: global shortcuts registered")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-save.Keydown():
			h.emit(Command{Kind: CommandDebugSave})
		case <-toggle.Keydown():
			h.emit(Command{Kind: CommandToggleDebugBox})
		}
	}
}

func (h *Handler) emit(cmd Command) {
	select {
	case h.commands <- cmd:
	default:
		slog.Warn("hotkeys: command dropped, consumer not draining")
	}
}
