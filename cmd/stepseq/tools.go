package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cbegin/stepseq/internal/midiout"
	"github.com/cbegin/stepseq/internal/pattern"
	"github.com/cbegin/stepseq/internal/synth"
	"github.com/cbegin/stepseq/internal/theory"
)

var euclidCmd = &cobra.Command{
	Use:   "euclid <hits> <steps> [rotation]",
	Short: "Print a Euclidean rhythm",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		nums := make([]int, 3)
		for i, a := range args {
			n, err := strconv.Atoi(a)
			if err != nil {
				return errors.Errorf("euclid: %q is not a number", a)
			}
			nums[i] = n
		}
		if err := pattern.CheckLength(nums[1]); err != nil {
			return errors.Wrap(err, "euclid: steps")
		}
		var b strings.Builder
		for _, hit := range pattern.Euclid(nums[0], nums[1], nums[2]) {
			if hit {
				b.WriteByte('x')
			} else {
				b.WriteByte('.')
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), b.String())
		return nil
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse <pattern>",
	Short: "Check a pattern and show how it parses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, err := pattern.Parse(args[0])
		if err != nil {
			return err
		}
		if steps == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "reset")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n%d slots, %d onsets\n", pattern.Format(steps), len(steps), pattern.Onsets(steps))
		return nil
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI output ports",
	Run: func(cmd *cobra.Command, args []string) {
		for i, name := range midiout.OutPorts() {
			fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", i, name)
		}
	},
}

var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "List synth parameters, scales and temperaments",
	Run: func(cmd *cobra.Command, args []string) {
		p := synth.DefaultParams()
		for _, d := range synth.Descriptors() {
			v, _ := p.Get(d.Name)
			fmt.Fprintf(cmd.OutOrStdout(), "%-14s %8g  [%g..%g]\n", d.Name, v, d.Min, d.Max)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nscales: %s\n", strings.Join(theory.ScaleNames(), " "))
		fmt.Fprintln(cmd.OutOrStdout(), "temperaments: equal just pythagorean")
	},
}
