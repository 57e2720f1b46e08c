package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.td.teradata.com/sandbox/bouncer/internal/config"
	"github.td.teradata.com/sandbox/bouncer/internal/driver"
	"github.td.teradata.com/sandbox/bouncer/internal/log"
	"github.td.teradata.com/sandbox/bouncer/internal/services/dispatch"
	"github.td.teradata.com/sandbox/bouncer/internal/services/state"
)

var raceFlags struct {
	keys        string
	keyInterval time.Duration
	window      time.Duration
	speed       int
	sync        string
	violation   string
	timeout     time.Duration
}

var raceCmd = &cobra.Command{
	Use:   "race",
	Short: "replay speed changes against a fast timer without a terminal",
	Long: `race replays scripted keystrokes against a fast timer on a headless display
and reports how many speed changes lost their timer adjustment. Run it with
--sync locked or --sync queued to see the same script without violations.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := state.ParseMode(raceFlags.sync)
		if err != nil {
			return err
		}
		policy, err := dispatch.ParsePolicy(raceFlags.violation)
		if err != nil {
			return err
		}
		closeLog, err := setupLogging(config.CLIConfig.Log)
		if err != nil {
			return err
		}
		defer closeLog()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := context.WithTimeout(ctx, raceFlags.timeout)
		defer cancel()

		sc := driver.Scenario{
			Keys:        raceFlags.keys,
			KeyInterval: raceFlags.keyInterval,
			Speed:       raceFlags.speed,
			Mode:        mode,
			Policy:      policy,
			RaceWindow:  raceFlags.window,
		}
		rep := sc.Run(ctx, log.GetDefaultLogger())

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "sync: %v  keys: %d  timer steps: %d  re-arms: %d  final speed: %d\n",
			mode, len(sc.Keys), rep.Steps, rep.Rearms, rep.Speed)
		fmt.Fprintf(out, "speed requests: %d  timer adjustments: %d  violations: %d\n",
			rep.Stats.Requests, rep.Stats.Adjustments, rep.Stats.Violations)
		if rep.History.Len() > 0 {
			_ = rep.History.Dump(out)
		}
		return rep.Err
	},
}

func init() {
	f := raceCmd.Flags()
	f.StringVar(&raceFlags.keys, "keys", "ffffssssffffssssffffssss", "keystrokes to replay before quitting")
	f.DurationVar(&raceFlags.keyInterval, "key-interval", 5*time.Millisecond, "delay before each keystroke")
	f.DurationVar(&raceFlags.window, "window", 3*time.Millisecond, "delay between marking and consulting a speed change")
	f.IntVar(&raceFlags.speed, "speed", 300, "initial speed; 300 fires the timer every 3ms")
	f.StringVar(&raceFlags.sync, "sync", "unsynchronized", "state synchronisation: locked, queued or unsynchronized")
	f.StringVar(&raceFlags.violation, "violation", "tolerant", "invariant violation policy: fail-fast or tolerant")
	f.DurationVar(&raceFlags.timeout, "timeout", 30*time.Second, "give up after this long")
}
