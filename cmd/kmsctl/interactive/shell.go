// Package interactive provides the interactive command-line interface
// for kmsctl.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"golang.org/x/time/rate"

	"github.com/kmspipe/kmspipe-go/cmd/kmsctl/dumbfb"
	"github.com/kmspipe/kmspipe-go/pkg/display"
	"github.com/kmspipe/kmspipe-go/pkg/kms"
	"github.com/kmspipe/kmspipe-go/pkg/resource"
)

// ShellConfig provides configuration information to the interactive
// shell. It decouples the shell from the main package's configuration
// struct.
type ShellConfig interface {
	// DevicePath returns the card node the shell operates on.
	DevicePath() string
	// Driver returns the kernel driver identity, empty when unknown.
	Driver() string
}

// Shell handles interactive mode for kmsctl. Commands run against the
// display manager; hotplug and vsync callbacks print asynchronously
// above the prompt.
type Shell struct {
	mgr      *display.Manager
	importer *dumbfb.Importer
	config   ShellConfig
	rl       *readline.Instance

	// Double-buffered fill state per display, owned by the Run loop.
	fills map[int]*fillState

	// Displays with vsync reporting enabled. Each sampler limits the
	// print rate so a 60Hz stream does not swamp the terminal.
	sampleMu sync.Mutex
	samplers map[int]*rate.Sometimes
}

type fillState struct {
	bufs   [2]*dumbfb.Buffer
	next   int
	width  uint32
	height uint32
	color  int
}

var fillPalette = []uint32{0xff0000, 0x00ff00, 0x0000ff, 0xffffff}

// New creates the interactive shell and hooks the manager's callbacks
// up to it.
func New(mgr *display.Manager, importer *dumbfb.Importer, cfg ShellConfig) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "kmsctl> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	s := &Shell{
		mgr:      mgr,
		importer: importer,
		config:   cfg,
		rl:       rl,
		fills:    make(map[int]*fillState),
		samplers: make(map[int]*rate.Sometimes),
	}
	mgr.SetCallbacks(display.Callbacks{
		Hotplug: s.handleHotplug,
		VSync:   s.handleVSync,
	})
	return s, nil
}

// Stdout returns the readline-managed stdout writer. Writing through
// it keeps output above the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns the readline-managed stderr writer.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run executes the interactive command loop until the context is
// cancelled or the user exits.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()
		case "list", "ls":
			s.cmdList()
		case "modes":
			s.cmdModes(args)
		case "set-mode", "mode":
			s.cmdSetMode(args)
		case "dpms":
			s.cmdDpms(args)
		case "present", "p":
			s.cmdPresent(args)
		case "vsync":
			s.cmdVSync(args)
		case "status":
			s.cmdStatus()
		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	out := s.rl.Stdout()
	fmt.Fprintln(out, "KMS Pipeline Commands:")
	fmt.Fprintln(out, "  Topology:")
	fmt.Fprintln(out, "    list                      - List connectors and their displays")
	fmt.Fprintln(out, "    modes <display>           - List the display's modes")
	fmt.Fprintln(out, "    status                    - Show device and display status")
	fmt.Fprintln(out, "  Configuration:")
	fmt.Fprintln(out, "    set-mode <display> <n>    - Apply mode <n> from the modes listing")
	fmt.Fprintln(out, "    dpms <display> <level>    - Set power level: on, standby, suspend, off")
	fmt.Fprintln(out, "  Presentation:")
	fmt.Fprintln(out, "    present <display> [color] - Present a solid-fill frame (name or rrggbb hex)")
	fmt.Fprintln(out, "    vsync <display> on|off    - Toggle vsync reporting (sampled once per second)")
	fmt.Fprintln(out, "  General:")
	fmt.Fprintln(out, "    help                      - Show this help")
	fmt.Fprintln(out, "    quit                      - Exit")
}

// cmdList handles the list command.
func (s *Shell) cmdList() {
	out := s.rl.Stdout()
	fmt.Fprintln(out, "Connectors:")
	fmt.Fprintln(out, "-------------------------------------------")
	for _, conn := range s.mgr.Resources().Connectors() {
		displayCol := "-"
		if conn.Display() != resource.UnboundDisplay {
			displayCol = strconv.Itoa(conn.Display())
		}
		modeCol := "-"
		if m := conn.ActiveMode(); m.Valid() {
			modeCol = m.String()
		}
		fmt.Fprintf(out, "  %-3s %-12s %-13s %s\n", displayCol, conn.Name(), conn.State(), modeCol)
	}
}

// cmdModes handles the modes command.
func (s *Shell) cmdModes(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: modes <display>")
		return
	}
	display, err := parseDisplay(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}

	// DisplayConfigs reprobes the connector, so the list is current.
	if _, err := s.mgr.DisplayConfigs(display); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	conn, err := s.mgr.Resources().ConnectorForDisplay(display)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	active := -1
	if idx, err := s.mgr.ActiveConfig(display); err == nil {
		active = idx
	}

	fmt.Fprintf(s.rl.Stdout(), "Display %d (%s) modes:\n", display, conn.Name())
	for i, m := range conn.Modes() {
		marker := " "
		if i == active {
			marker = "*"
		}
		tag := ""
		if m.Preferred() {
			tag = "  (preferred)"
		}
		fmt.Fprintf(s.rl.Stdout(), "  %s %2d  %s%s\n", marker, i, m, tag)
	}
}

// cmdSetMode handles the set-mode command.
func (s *Shell) cmdSetMode(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: set-mode <display> <mode-index>")
		return
	}
	display, err := parseDisplay(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	index, err := strconv.Atoi(args[1])
	if err != nil || index < 0 {
		fmt.Fprintf(s.rl.Stdout(), "Invalid mode index: %s\n", args[1])
		return
	}

	if _, err := s.mgr.DisplayConfigs(display); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	conn, err := s.mgr.Resources().ConnectorForDisplay(display)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	modes := conn.Modes()
	if index >= len(modes) {
		fmt.Fprintf(s.rl.Stdout(), "No mode %d on display %d (%d available)\n", index, display, len(modes))
		return
	}

	mode := modes[index]
	if err := s.mgr.SetActiveModeNow(display, mode); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Mode set failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Display %d mode set to %s\n", display, mode)
}

// cmdDpms handles the dpms command.
func (s *Shell) cmdDpms(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: dpms <display> on|standby|suspend|off")
		return
	}
	display, err := parseDisplay(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	level, err := parseDpms(args[1])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}

	if err := s.mgr.SetPowerMode(display, level); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Power mode change failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Display %d power mode: %s\n", display, level)
}

// cmdPresent handles the present command. It fills the display's back
// buffer with a solid color and queues it as a frame.
func (s *Shell) cmdPresent(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: present <display> [color]")
		return
	}
	display, err := parseDisplay(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}

	conn, err := s.mgr.Resources().ConnectorForDisplay(display)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	mode := conn.ActiveMode()
	if !mode.Valid() {
		fmt.Fprintf(s.rl.Stdout(), "Display %d has no active mode (use set-mode first)\n", display)
		return
	}

	buf, st, err := s.backBuffer(display, mode.Width(), mode.Height())
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Buffer allocation failed: %v\n", err)
		return
	}
	color := fillPalette[st.color%len(fillPalette)]
	st.color++
	if len(args) > 1 {
		color, err = parseColor(args[1])
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
			return
		}
	}
	buf.Fill(color)

	point, err := s.mgr.QueueFrame(display, buf)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Queue failed: %v\n", err)
		return
	}
	if tl, err := s.mgr.Timeline(display); err == nil {
		waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := tl.Wait(waitCtx, point); err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Frame %d queued, completion still pending\n", point)
			return
		}
	}
	fmt.Fprintf(s.rl.Stdout(), "Presented %dx%d fill #%06x on display %d (frame %d)\n",
		mode.Width(), mode.Height(), color, display, point)
}

// backBuffer returns the display's next fill buffer, reallocating the
// pair when the mode size changed. Abandoned buffers stay with the
// importer until it closes; the frame cache may still scan them out.
func (s *Shell) backBuffer(display int, width, height uint32) (*dumbfb.Buffer, *fillState, error) {
	st := s.fills[display]
	if st == nil {
		st = &fillState{}
		s.fills[display] = st
	}
	if st.width != width || st.height != height {
		st.bufs[0] = nil
		st.bufs[1] = nil
		st.next = 0
		st.width = width
		st.height = height
	}
	if st.bufs[st.next] == nil {
		b, err := s.importer.Allocate(width, height)
		if err != nil {
			return nil, nil, err
		}
		st.bufs[st.next] = b
	}
	b := st.bufs[st.next]
	st.next = 1 - st.next
	return b, st, nil
}

// cmdVSync handles the vsync command.
func (s *Shell) cmdVSync(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: vsync <display> on|off")
		return
	}
	display, err := parseDisplay(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}

	switch strings.ToLower(args[1]) {
	case "on":
		if err := s.mgr.VSyncControl(display, true); err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
			return
		}
		s.sampleMu.Lock()
		s.samplers[display] = &rate.Sometimes{Interval: time.Second}
		s.sampleMu.Unlock()
		fmt.Fprintf(s.rl.Stdout(), "VSync reporting enabled for display %d\n", display)
	case "off":
		if err := s.mgr.VSyncControl(display, false); err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
			return
		}
		s.sampleMu.Lock()
		delete(s.samplers, display)
		s.sampleMu.Unlock()
		fmt.Fprintf(s.rl.Stdout(), "VSync reporting disabled for display %d\n", display)
	default:
		fmt.Fprintln(s.rl.Stdout(), "Usage: vsync <display> on|off")
	}
}

// cmdStatus handles the status command.
func (s *Shell) cmdStatus() {
	out := s.rl.Stdout()
	fmt.Fprintln(out, "Pipeline Status:")
	fmt.Fprintln(out, "-------------------------------------------")
	fmt.Fprintf(out, "  Device:   %s\n", s.config.DevicePath())
	if drv := s.config.Driver(); drv != "" {
		fmt.Fprintf(out, "  Driver:   %s\n", drv)
	}
	fmt.Fprintf(out, "  Session:  %s\n", s.mgr.Session())

	for _, conn := range s.mgr.Resources().Connectors() {
		if conn.Display() == resource.UnboundDisplay {
			continue
		}
		fmt.Fprintf(out, "\n  Display %d (%s):\n", conn.Display(), conn.Name())
		fmt.Fprintf(out, "    State:  %s\n", conn.State())
		m := conn.ActiveMode()
		if !m.Valid() {
			fmt.Fprintf(out, "    Mode:   none\n")
			continue
		}
		fmt.Fprintf(out, "    Mode:   %s\n", m)
		if attrs, err := s.mgr.Attributes(conn.Display(), m.ID()); err == nil {
			fmt.Fprintf(out, "    VSync:  %s period\n", attrs.VSyncPeriod.Round(time.Microsecond))
			if attrs.XDPI != 0 {
				fmt.Fprintf(out, "    DPI:    %dx%d\n", attrs.XDPI/1000, attrs.YDPI/1000)
			}
		}
	}
}

// handleHotplug prints connector changes above the prompt.
func (s *Shell) handleHotplug(display int, connected bool) {
	state := "connected"
	if !connected {
		state = "disconnected"
	}
	fmt.Fprintf(s.rl.Stdout(), "\n[%s] display %d %s\n",
		time.Now().Format("15:04:05"), display, state)
	s.rl.Refresh()
}

// handleVSync prints sampled vsync callbacks for displays enabled with
// the vsync command. It must stay cheap; it runs on the event thread.
func (s *Shell) handleVSync(display int, ts time.Time, seq uint64) {
	s.sampleMu.Lock()
	sampler := s.samplers[display]
	s.sampleMu.Unlock()
	if sampler == nil {
		return
	}
	sampler.Do(func() {
		fmt.Fprintf(s.rl.Stdout(), "\n[%s] display %d vsync seq=%d\n",
			ts.Format("15:04:05.000"), display, seq)
		s.rl.Refresh()
	})
}

func parseDisplay(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid display index: %s", s)
	}
	return n, nil
}

func parseDpms(s string) (kms.DPMSMode, error) {
	switch strings.ToLower(s) {
	case "on":
		return kms.DPMSOn, nil
	case "standby":
		return kms.DPMSStandby, nil
	case "suspend":
		return kms.DPMSSuspend, nil
	case "off":
		return kms.DPMSOff, nil
	}
	return 0, fmt.Errorf("invalid power level: %s (must be on, standby, suspend, or off)", s)
}

var namedColors = map[string]uint32{
	"red":     0xff0000,
	"green":   0x00ff00,
	"blue":    0x0000ff,
	"white":   0xffffff,
	"black":   0x000000,
	"yellow":  0xffff00,
	"cyan":    0x00ffff,
	"magenta": 0xff00ff,
}

func parseColor(s string) (uint32, error) {
	if c, ok := namedColors[strings.ToLower(s)]; ok {
		return c, nil
	}
	hex := strings.ToLower(s)
	hex = strings.TrimPrefix(hex, "0x")
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, fmt.Errorf("invalid color: %s (use a name or rrggbb hex)", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color: %s (use a name or rrggbb hex)", s)
	}
	return uint32(v), nil
}
