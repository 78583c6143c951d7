package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cbegin/stepseq/internal/midiout"
)

var (
	outPath string
	seconds float64
)

var renderCmd = &cobra.Command{
	Use:   "render [pattern...]",
	Short: "Render patterns offline to a float WAV file",
	RunE:  runRender,
}

var exportCmd = &cobra.Command{
	Use:   "export [pattern...]",
	Short: "Capture patterns to a Standard MIDI File",
	RunE:  runExport,
}

func init() {
	renderCmd.Flags().StringVarP(&outPath, "output", "o", "out.wav", "output file")
	renderCmd.Flags().Float64Var(&seconds, "seconds", 8, "length to render")
	exportCmd.Flags().StringVarP(&outPath, "output", "o", "out.mid", "output file")
	exportCmd.Flags().Float64Var(&seconds, "seconds", 8, "length to capture")
	exportCmd.Flags().Uint8Var(&midiChannel, "channel", 0, "MIDI channel 0-15")
}

func runRender(cmd *cobra.Command, args []string) error {
	e, err := buildEngine(args)
	if err != nil {
		return err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return errors.Wrap(err, "render")
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := e.RenderWAV(w, seconds); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "render")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%.1fs)\n", outPath, seconds)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	e, err := buildEngine(args)
	if err != nil {
		return err
	}
	rec := midiout.NewRecorder(midiChannel)
	e.AddOutput(rec)
	frames := int64(seconds * float64(e.SampleRate()))
	e.Advance(int(frames))
	f, err := os.Create(outPath)
	if err != nil {
		return errors.Wrap(err, "export")
	}
	defer f.Close()
	if err := rec.WriteSMF(f, e.SampleRate(), e.Theory().Tempo(), frames); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d events)\n", outPath, rec.Len())
	return nil
}
