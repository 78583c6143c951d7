package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // registers the MIDI driver

	"github.com/cbegin/stepseq"
	"github.com/cbegin/stepseq/internal/api"
	"github.com/cbegin/stepseq/internal/midiout"
	"github.com/cbegin/stepseq/internal/tui"
)

var (
	duration    time.Duration
	volume      float64
	midiPort    string
	midiChannel uint8
	muteAudio   bool
	addr        string
	serveAudio  bool
)

var playCmd = &cobra.Command{
	Use:   "play [pattern...]",
	Short: "Play patterns until interrupted",
	RunE:  runPlay,
}

var serveCmd = &cobra.Command{
	Use:   "serve [pattern...]",
	Short: "Serve the HTTP authoring API",
	RunE:  runServe,
}

var tuiCmd = &cobra.Command{
	Use:   "tui [pattern...]",
	Short: "Live-code tracks in the terminal",
	RunE:  runTUI,
}

func init() {
	for _, c := range []*cobra.Command{playCmd, serveCmd, tuiCmd} {
		c.Flags().Float64Var(&volume, "volume", 1, "output gain")
		c.Flags().StringVar(&midiPort, "midi-port", "", "also send notes to the first MIDI output matching this name")
		c.Flags().Uint8Var(&midiChannel, "channel", 0, "MIDI channel 0-15")
		c.Flags().BoolVar(&muteAudio, "mute", false, "do not open the audio device")
	}
	playCmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 plays until interrupted)")
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	serveCmd.Flags().BoolVar(&serveAudio, "play", false, "start audio output as well")
}

// startOutputs opens the MIDI port and audio device as requested. The
// returned func stops everything.
func startOutputs(e *stepseq.Engine, audio bool) (func(), error) {
	var closers []func() error
	if midiPort != "" {
		port, closePort, err := midiout.Open(midiPort, midiChannel, e.Logger())
		if err != nil {
			return nil, err
		}
		e.AddOutput(port)
		closers = append(closers, closePort)
	}
	if audio && !muteAudio {
		if err := e.Play(); err != nil {
			return nil, err
		}
		e.SetVolume(volume)
		closers = append(closers, e.Close)
	} else {
		stop := clockLoop(e)
		closers = append(closers, func() error { stop(); return nil })
	}
	return func() {
		e.StopAll()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("close output", "err", err)
			}
		}
	}, nil
}

// clockLoop advances the engine in real time without audio.
func clockLoop(e *stepseq.Engine) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		const tick = 5 * time.Millisecond
		frames := e.SampleRate() * int(tick) / int(time.Second)
		t := time.NewTicker(tick)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				e.Advance(frames)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func runPlay(cmd *cobra.Command, args []string) error {
	e, err := buildEngine(args)
	if err != nil {
		return err
	}
	stop, err := startOutputs(e, true)
	if err != nil {
		return err
	}
	defer stop()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()
	if duration > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, duration)
		defer cancelTimeout()
	}
	slog.Info("playing", "tracks", len(e.Tracks()), "tempo", e.Theory().Tempo())
	<-ctx.Done()
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := buildEngine(args)
	if err != nil {
		return err
	}
	stop, err := startOutputs(e, serveAudio)
	if err != nil {
		return err
	}
	defer stop()
	return api.New(e).Run(addr)
}

func runTUI(cmd *cobra.Command, args []string) error {
	if !debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	}
	e, err := buildEngine(args)
	if err != nil {
		return err
	}
	stop, err := startOutputs(e, true)
	if err != nil {
		return err
	}
	defer stop()
	return tui.Run(e)
}
