package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/aloud/internal/synth"
)

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List the known voices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		current := viper.GetString("voice")
		if current == "" {
			current = synth.DefaultVoice
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, name := range synth.VoiceNames() {
			mark := " "
			if name == current {
				mark = "*"
			}
			fmt.Fprintf(w, "%s %s\t%s\n", mark, name, faint(synth.ResolveVoice(name)))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if !synth.IsKnownVoice(current) {
			msg := fmt.Sprintf("configured voice %q is not in the table", current)
			if s, ok := synth.SuggestVoice(current); ok {
				msg += fmt.Sprintf(", did you mean %q?", s)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), warning(msg))
		}
		return nil
	},
}
