package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/aloud/internal/metrics"
	"github.com/dgnsrekt/aloud/internal/synth"
	"github.com/dgnsrekt/aloud/internal/tts"
	"github.com/dgnsrekt/aloud/internal/ttypes"
)

var (
	synthOutput string

	synthCmd = &cobra.Command{
		Use:   "synth [TEXT]",
		Short: "Synthesize text into an audio file",
		Long: paragraph(fmt.Sprintf("\n%s text with the configured voice and write the audio as it streams in. "+
			"Text is read from stdin when no argument is given.", keyword("Synthesize"))),
		Example: paragraph("aloud synth 你好 -o hello.pcm\necho hello | aloud synth --voice en_female -o -"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runSynth,
	}
)

func init() {
	synthCmd.Flags().StringVarP(&synthOutput, "output", "o", "", "output file, - for stdout")
	_ = synthCmd.MarkFlagRequired("output")
}

func runSynth(cmd *cobra.Command, args []string) error {
	cfg, err := tts.LoadConfigFromViper()
	if err != nil {
		return err
	}

	text, err := synthText(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	cred, err := credentialProvider(cfg)
	if err != nil {
		return err
	}
	if cred.Credential() == "" {
		fmt.Fprintln(os.Stderr, paragraph(tts.ValidateSetup(cfg, cred).Guidance))
		return ttypes.ErrMissingCredential
	}

	var out io.Writer = cmd.OutOrStdout()
	if synthOutput != "-" {
		f, err := os.Create(synthOutput)
		if err != nil {
			return fmt.Errorf("unable to create output: %w", err)
		}
		defer f.Close() //nolint:errcheck
		out = f
	}

	client := synth.NewClient(cfg.SynthClientConfig(), metrics.NewMetrics(nil), log.Default())
	stream, err := client.Open(cmd.Context(), cred.Credential(), text, synth.Options{
		Voice:       cfg.Voice,
		RateAdjust:  cfg.Rate,
		PitchAdjust: cfg.Pitch,
		Format:      cfg.Format,
	})
	if err != nil {
		return err
	}
	defer stream.Close() //nolint:errcheck

	n, err := io.Copy(out, stream)
	if err != nil {
		return err
	}
	if n == 0 {
		return ttypes.NewError(ttypes.CodeEmptyAudio, "session ended without audio", ttypes.ErrEmptyAudio)
	}

	log.Info("synthesized", "voice", synth.ResolveVoice(cfg.Voice), "size", humanize.IBytes(uint64(n)))
	return nil
}

func synthText(stdin io.Reader, args []string) (string, error) {
	var text string
	if len(args) == 1 {
		text = args[0]
	} else {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		text = string(b)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("nothing to synthesize")
	}
	return text, nil
}
