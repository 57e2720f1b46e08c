package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.td.teradata.com/sandbox/bouncer/internal/config"
	"github.td.teradata.com/sandbox/bouncer/internal/driver"
	"github.td.teradata.com/sandbox/bouncer/internal/log"
	"github.td.teradata.com/sandbox/bouncer/internal/services/audio"
	"github.td.teradata.com/sandbox/bouncer/internal/services/common"
	"github.td.teradata.com/sandbox/bouncer/internal/services/dispatch"
	"github.td.teradata.com/sandbox/bouncer/internal/services/display"
	"github.td.teradata.com/sandbox/bouncer/internal/services/serial"
	"github.td.teradata.com/sandbox/bouncer/internal/services/state"
)

const ttyDevice = "/dev/tty"

var cfgFile string

var overrides struct {
	speed     int
	sync      string
	violation string
	renderer  string
	input     string
	port      string
	window    int
}

var rootCmd = &cobra.Command{
	Use:   "bouncer",
	Short: "bouncer animates a message across the terminal under keyboard control",
	Long: `bouncer moves a message along one terminal row. A timer advances it while
keystrokes arrive asynchronously:

  f      faster          s      slower
  space  reverse         q, Q   quit

With --sync unsynchronized the timer handler and the key dispatcher share
state without coordination, and a timer firing between a speed change and
its timer re-arm is reported as an invariant violation.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.CLIConfig
		applyOverrides(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		closeLog, err := setupLogging(cfg.Log)
		if err != nil {
			return err
		}
		defer closeLog()
		return run(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

// Execute bootstraps the viper
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "configuration file for bouncer")
	registerFlags(rootCmd)
	rootCmd.AddCommand(raceCmd)
}

func registerFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVarP(&overrides.speed, "speed", "s", 0, "initial speed in characters per second")
	f.StringVar(&overrides.sync, "sync", "", "state synchronisation: locked, queued or unsynchronized")
	f.StringVar(&overrides.violation, "violation", "", "invariant violation policy: fail-fast or tolerant")
	f.StringVarP(&overrides.renderer, "renderer", "r", "", "renderer: ansi, tcell, curses or headless")
	f.StringVarP(&overrides.input, "input", "i", "", "keystroke source: tty, stdin, serial or screen")
	f.StringVarP(&overrides.port, "port", "p", "", "serial port name, implies --input serial")
	f.IntVar(&overrides.window, "race-window", 0, "milliseconds between marking and consulting a speed change")
}

func initConfig() {
	if err := config.NewConfig(cfgFile); err != nil {
		log.Fatalf("Failed to load configuration: %s", err)
	}
}

func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("speed") {
		cfg.Bouncer.InitialSpeed = overrides.speed
	}
	if f.Changed("sync") {
		cfg.Bouncer.Sync = overrides.sync
	}
	if f.Changed("violation") {
		cfg.Bouncer.Violation = overrides.violation
	}
	if f.Changed("renderer") {
		cfg.Renderer = overrides.renderer
	}
	if f.Changed("input") {
		cfg.Input.Source = overrides.input
	}
	if f.Changed("port") {
		cfg.Serial.PortName = overrides.port
		cfg.Input.Source = config.InputSerial
	}
	if f.Changed("race-window") {
		cfg.Bouncer.RaceWindowMs = overrides.window
	}
	if cfg.Renderer == config.RendererTcell && cfg.Input.Source == config.InputTTY {
		// tcell owns the terminal input
		cfg.Input.Source = config.InputScreen
	}
}

func setupLogging(c *config.Log) (func(), error) {
	var w io.Writer = os.Stderr
	closer := func() {}
	if c.File != "" && c.File != "-" {
		f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		w = f
		closer = func() { _ = f.Close() }
	}
	log.Setup(log.NewLogConfigurator(w, c.Level))
	return closer, nil
}

func driverOptions(cfg *config.Config) (driver.Options, error) {
	mode, err := state.ParseMode(cfg.Bouncer.Sync)
	if err != nil {
		return driver.Options{}, err
	}
	policy, err := dispatch.ParsePolicy(cfg.Bouncer.Violation)
	if err != nil {
		return driver.Options{}, err
	}
	return driver.Options{
		Speed:      cfg.Bouncer.InitialSpeed,
		Mode:       mode,
		Policy:     policy,
		RaceWindow: time.Duration(cfg.Bouncer.RaceWindowMs) * time.Millisecond,
	}, nil
}

func openRenderer(cfg *config.Config) (common.Renderer, error) {
	row := cfg.Bouncer.Row
	switch cfg.Renderer {
	case config.RendererTcell:
		return display.NewScreen(row)
	case config.RendererCurses:
		return display.NewCurses(row)
	case config.RendererHeadless:
		return display.NewHeadless(cfg.Terminal.Width, cfg.Terminal.Height), nil
	default:
		t, err := display.New(os.Stdout, row)
		if err != nil {
			log.Warnf("ANSI terminal unavailable (%v), writing a %dx%d display", err, cfg.Terminal.Width, cfg.Terminal.Height)
			return display.NewWriter(os.Stdout, cfg.Terminal.Width, cfg.Terminal.Height, row), nil
		}
		return t, nil
	}
}

func openInput(cfg *config.Config, r common.Renderer) (io.Reader, func(), error) {
	noop := func() {}
	switch cfg.Input.Source {
	case config.InputScreen:
		s, ok := r.(*display.Screen)
		if !ok {
			return nil, nil, errors.New("input source screen requires the tcell renderer")
		}
		return s, noop, nil
	case config.InputStdin:
		return os.Stdin, noop, nil
	case config.InputSerial:
		port, err := serial.Open(cfg.Serial)
		if err != nil {
			return nil, nil, err
		}
		log.Infof("Opened port %s", cfg.Serial.PortName)
		return port, func() { _ = port.Close() }, nil
	default:
		if cfg.Renderer == config.RendererCurses {
			// curses already put the terminal in cbreak mode
			return os.Stdin, noop, nil
		}
		t, err := display.OpenTTY(ttyDevice)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", ttyDevice, err)
		}
		return t, func() { _ = t.Close() }, nil
	}
}

func openCue(c *config.Audio) (common.Cue, func()) {
	if !c.Enabled {
		return common.NoCue{}, func() {}
	}
	cue, err := audio.NewCue(c.Frequency, time.Duration(c.DurationMs)*time.Millisecond, log.GetDefaultLogger())
	if err != nil {
		log.Warnf("Audio disabled: %v", err)
		return common.NoCue{}, func() {}
	}
	return cue, cue.Close
}

func run(ctx context.Context, cfg *config.Config, out io.Writer) (err error) {
	opts, err := driverOptions(cfg)
	if err != nil {
		return err
	}

	r, err := openRenderer(cfg)
	if err != nil {
		return fmt.Errorf("initialising renderer: %w", err)
	}
	rendererOpen := true
	closeRenderer := func() {
		if rendererOpen {
			rendererOpen = false
			if cerr := r.Close(); cerr != nil {
				log.Warnf("Closing renderer: %v", cerr)
			}
		}
	}
	defer closeRenderer()

	in, closeInput, err := openInput(cfg, r)
	if err != nil {
		return err
	}
	defer closeInput()

	cue, closeCue := openCue(cfg.Audio)
	defer closeCue()
	opts.Cue = cue

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, unix.SIGINT, unix.SIGTERM, unix.SIGHUP)
	defer stop()

	d := driver.New(r, in, log.GetDefaultLogger(), opts)
	if s, ok := r.(*display.Screen); ok {
		s.OnResize(d.Resize)
	} else {
		stopResize := watchResize(d.Resize)
		defer stopResize()
	}

	err = d.Run(ctx)
	closeRenderer()
	summarise(out, d)
	return err
}

func watchResize(fn func()) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGWINCH)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ch:
				fn()
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

func summarise(out io.Writer, d *driver.Driver) {
	st := d.Stats()
	fmt.Fprintf(out, "dispatches: %d  speed requests: %d  timer adjustments: %d  violations: %d  read errors: %d  steps: %d\n",
		st.Dispatches, st.Requests, st.Adjustments, st.Violations, st.ReadErrors, d.Steps())
	if d.History().Len() > 0 {
		fmt.Fprintln(out, "tolerated violations:")
		_ = d.History().Dump(out)
	}
}
