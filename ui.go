// ui.go
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/jroimartin/gocui"

	"chatrelay/internal/config"
	"chatrelay/internal/relay"
)

const refreshInterval = time.Second

// ConsoleUI is the operator console: relay activity, live connections and an
// input line whose text is announced to all listeners.
type ConsoleUI struct {
	gui        *gocui.Gui
	relay      *relay.Relay
	cfg        config.Config
	msgView    string
	connView   string
	statusView string
	inputView  string
	helpView   string
	showHelp   bool
}

func NewConsoleUI(cfg config.Config) (*ConsoleUI, error) {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return nil, err
	}

	ui := &ConsoleUI{
		gui:        g,
		cfg:        cfg,
		msgView:    "activity",
		connView:   "connections",
		statusView: "status",
		inputView:  "input",
		helpView:   "help",
	}

	g.SetManagerFunc(ui.layout)
	return ui, nil
}

func (ui *ConsoleUI) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	sidebarWidth := 40
	msgWidth := maxX - sidebarWidth - 1
	msgHeight := maxY - 7

	if v, err := g.SetView(ui.msgView, 0, 0, msgWidth, msgHeight); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Activity"
		v.Wrap = true
		v.Autoscroll = true
	}

	if v, err := g.SetView(ui.connView, msgWidth+1, 0, maxX-1, msgHeight); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Connections"
		v.Wrap = true
	}

	if v, err := g.SetView(ui.statusView, 0, msgHeight+1, maxX-1, msgHeight+3); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Status"
		v.Wrap = true
	}

	if v, err := g.SetView(ui.inputView, 0, msgHeight+4, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Announce"
		v.Editable = true
		v.Wrap = true

		if _, err := g.SetCurrentView(ui.inputView); err != nil {
			return err
		}
	}

	if !ui.showHelp {
		if err := g.DeleteView(ui.helpView); err != nil && err != gocui.ErrUnknownView {
			return err
		}
		return nil
	}
	if v, err := g.SetView(ui.helpView, maxX/6, maxY/6, maxX*5/6, maxY*5/6); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Help"
		fmt.Fprintln(v, `Client commands:
/listen         - Receive chat messages
/nick <name>    - Set nickname, allows posting
/msg <text>     - Post text (same as plain text)

Keybindings:
Ctrl-C          - Stop the relay
F1              - Toggle help
Tab             - Switch views
Enter           - Announce the input to all listeners`)
	}

	return nil
}

// Write appends relay log output to the activity view.
func (ui *ConsoleUI) Write(p []byte) (int, error) {
	text := string(p)
	ui.gui.Update(func(g *gocui.Gui) error {
		v, err := g.View(ui.msgView)
		if err != nil {
			return nil
		}
		fmt.Fprint(v, text)
		return nil
	})
	return len(p), nil
}

func (ui *ConsoleUI) updateConnections(ctx context.Context) {
	if ui.relay == nil {
		return
	}
	infos, err := ui.relay.Snapshot(ctx)
	if err != nil {
		return
	}

	ui.gui.Update(func(g *gocui.Gui) error {
		v, err := g.View(ui.connView)
		if err != nil {
			return nil
		}
		v.Clear()
		for _, info := range infos {
			name := info.Nickname
			if name == "" {
				name = "-"
			}
			fmt.Fprintf(v, "%s [%s] %s\n", name, info.Roles, info.Addr)
		}
		return nil
	})
	ui.updateStatus(fmt.Sprintf("Port %s | Connections: %d/%d | F1: Help",
		ui.cfg.Port, len(infos), ui.cfg.MaxConnections))
}

func (ui *ConsoleUI) updateStatus(status string) {
	ui.gui.Update(func(g *gocui.Gui) error {
		v, err := g.View(ui.statusView)
		if err != nil {
			return nil
		}
		v.Clear()
		fmt.Fprint(v, status)
		return nil
	})
}

func (ui *ConsoleUI) keybindings(ctx context.Context) error {
	if err := ui.gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone,
		func(_ *gocui.Gui, _ *gocui.View) error {
			return gocui.ErrQuit
		}); err != nil {
		return err
	}

	if err := ui.gui.SetKeybinding("", gocui.KeyF1, gocui.ModNone,
		func(_ *gocui.Gui, _ *gocui.View) error {
			ui.showHelp = !ui.showHelp
			return nil
		}); err != nil {
		return err
	}

	if err := ui.gui.SetKeybinding(ui.inputView, gocui.KeyEnter, gocui.ModNone,
		func(_ *gocui.Gui, v *gocui.View) error {
			return ui.handleInput(ctx, v)
		}); err != nil {
		return err
	}

	if err := ui.gui.SetKeybinding("", gocui.KeyTab, gocui.ModNone,
		func(g *gocui.Gui, v *gocui.View) error {
			nextView := map[string]string{
				ui.msgView:   ui.connView,
				ui.connView:  ui.inputView,
				ui.inputView: ui.msgView,
			}
			if v == nil {
				return nil
			}
			if next, ok := nextView[v.Name()]; ok {
				_, err := g.SetCurrentView(next)
				return err
			}
			return nil
		}); err != nil {
		return err
	}

	return nil
}

func (ui *ConsoleUI) handleInput(ctx context.Context, v *gocui.View) error {
	input := strings.TrimSpace(v.Buffer())
	v.Clear()
	v.SetCursor(0, 0)
	if input == "" || ui.relay == nil {
		return nil
	}

	if err := ui.relay.Announce(ctx, input); err != nil {
		ui.updateStatus(fmt.Sprintf("Announce failed: %v", err))
	}
	return nil
}

// Run blocks until the operator quits or ctx is cancelled.
func (ui *ConsoleUI) Run(ctx context.Context) error {
	if err := ui.keybindings(ctx); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ui.updateConnections(ctx)
			case <-ctx.Done():
				ui.gui.Update(func(_ *gocui.Gui) error {
					return gocui.ErrQuit
				})
				return
			}
		}
	}()

	if err := ui.gui.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}
	return nil
}

func (ui *ConsoleUI) Close() {
	ui.gui.Close()
}

// RunWithUI serves the relay with the operator console in front.
// Quitting the console stops the relay.
func RunWithUI(ctx context.Context, cfg config.Config, ln net.Listener, logFile *os.File) error {
	ui, err := NewConsoleUI(cfg)
	if err != nil {
		ln.Close()
		return err
	}
	defer ui.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ready := make(chan struct{})
	errs := make(chan error, 1)
	logger := log.New(activityWriter(ui, logFile), "", log.Ltime)
	go func() {
		errs <- serve(ctx, cfg, ln, logger, func(r *relay.Relay) {
			ui.relay = r
			close(ready)
		})
		cancel()
	}()

	select {
	case <-ready:
	case err := <-errs:
		return err
	}

	uiErr := ui.Run(ctx)
	cancel()
	if err := <-errs; err != nil {
		return err
	}
	return uiErr
}
