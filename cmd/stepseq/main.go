// Command stepseq plays, renders and serves step-notation patterns.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cbegin/stepseq"
	"github.com/cbegin/stepseq/internal/session"
	"github.com/cbegin/stepseq/internal/theory"
)

var version = "dev"

var (
	debug       bool
	sessionPath string
	tempo       float64
	root        string
	scale       string
	progression string
	subdiv      string
	seed        int64
	voices      int
	sampleRate  int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stepseq",
	Short: "Theory-aware step sequencer",
	Long: `stepseq turns compact step patterns into sample-accurate polyphonic
playback over a shared key, scale and chord progression.

Patterns are given as arguments, one per track, or as N=pattern to pick the
track index. A session file restores a whole set.

Examples:
  stepseq play "0 2 4 [5 7]" "1=k . s ."
  stepseq play --session set.yaml --midi-port IAC
  stepseq render -o loop.wav --seconds 8 "0 2 [4,6] ?"
  stepseq export -o loop.mid "0 1 2 3"
  stepseq serve --addr :8080 --play
  stepseq tui --scale dorian`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&debug, "debug", false, "log at debug level")
	pf.StringVar(&sessionPath, "session", "", "session YAML to load")
	pf.Float64Var(&tempo, "tempo", 0, "tempo in BPM")
	pf.StringVar(&root, "root", "", "root pitch class, e.g. D or F#")
	pf.StringVar(&scale, "scale", "", "scale name")
	pf.StringVar(&progression, "progression", "", "roman numerals separated by spaces, e.g. \"I vi IV V\"")
	pf.StringVar(&subdiv, "subdivision", "", "slot length for new tracks, e.g. 8n or 0.25")
	pf.Int64Var(&seed, "seed", 0, "random seed for wildcards")
	pf.IntVar(&voices, "voices", 0, "voice pool size")
	pf.IntVar(&sampleRate, "sample-rate", 48000, "output sample rate")

	rootCmd.AddCommand(playCmd, renderCmd, exportCmd, serveCmd, tuiCmd, euclidCmd, parseCmd, portsCmd, paramsCmd)
}

// buildEngine loads the session, applies flag overrides and sequences the
// pattern arguments.
func buildEngine(args []string) (*stepseq.Engine, error) {
	doc := &session.Document{}
	if sessionPath != "" {
		var err error
		if doc, err = session.LoadFile(sessionPath); err != nil {
			return nil, err
		}
	}
	opts, err := doc.Options()
	if err != nil {
		return nil, err
	}
	opts = append(opts, stepseq.WithSampleRate(sampleRate), stepseq.WithLogger(slog.Default()))
	if seed != 0 {
		opts = append(opts, stepseq.WithSeed(seed))
	}
	if voices > 0 {
		opts = append(opts, stepseq.WithVoices(voices))
	}
	if subdiv != "" {
		beats, err := theory.ParseSubdivision(subdiv)
		if err != nil {
			return nil, err
		}
		opts = append(opts, stepseq.WithSubdivision(beats))
	}
	e, err := stepseq.New(opts...)
	if err != nil {
		return nil, err
	}
	if err := doc.Apply(e); err != nil {
		slog.Warn("session applied with errors", "err", err)
	}
	if err := applyTheoryFlags(e.Theory()); err != nil {
		return nil, err
	}
	for i, arg := range args {
		track, text := splitTrackArg(i, arg)
		if err := e.Sequence(track, text, 0); err != nil {
			return nil, errors.Wrapf(err, "track %d", track)
		}
	}
	return e, nil
}

func applyTheoryFlags(ctx *theory.Context) error {
	if root != "" {
		if err := ctx.SetRootName(root); err != nil {
			return err
		}
	}
	if scale != "" {
		if err := ctx.SetScale(scale); err != nil {
			return err
		}
	}
	if progression != "" {
		if err := ctx.SetProgression(strings.Fields(progression)...); err != nil {
			return err
		}
	}
	if tempo != 0 {
		return ctx.SetTempo(tempo)
	}
	return nil
}

// splitTrackArg reads "N=pattern"; anything else goes to track i.
func splitTrackArg(i int, arg string) (int, string) {
	if k := strings.IndexByte(arg, '='); k > 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(arg[:k])); err == nil {
			return n, arg[k+1:]
		}
	}
	return i, arg
}
