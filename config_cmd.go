package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/aloud/internal/tts"
)

const defaultConfig = `# voice name or backend speaker id (see "aloud voices")
voice: "taozi"
# speech rate and pitch adjustments, -1.0 to 1.0
rate: 0
pitch: 0
# audio format requested from the backend: pcm or wav
format: "pcm"
# file holding the backend credential, watched for changes
# credential_file: "~/.config/aloud/cookie"
# synthesize the next section's first page ahead of time
prefetch: true
# placeholder played when a chunk cannot be synthesized
silence: "300ms"

audio:
  sample_rate: 24000
  channels: 1
  volume: 1.0

# chunk sizes are in characters; the target grows by step after each
# synthesized chunk, up to ceiling
chunk:
  floor: 301
  step: 200
  ceiling: 700
  char_duration: "200ms"
  prefetch_fraction: 0.25
  lookahead_chars: 1000
  prefetch_shrink: true

synth:
  timeout: "60s"
  # requests_per_minute: 0

# audio survives restarts when dir is set
cache:
  # dir: "~/.cache/aloud/audio"
  max_size: 536870912
  compression: 3
  ttl: "168h"
  cleanup_interval: "1h"

playback:
  max_errors: 5
  reload_delay: "2s"

signals:
  # nats_url: "nats://127.0.0.1:4222"
  subject: "aloud"
`

var printConfig bool

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the aloud config file",
	Long:    paragraph(fmt.Sprintf("\n%s the aloud config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("aloud config\naloud config --config path/to/config.yml\naloud config --print"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if printConfig {
			return printEffectiveConfig(os.Stdout)
		}

		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("aloud", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&printConfig, "print", false, "print the effective configuration as YAML")
}

// printEffectiveConfig writes the merged defaults, config file, environment
// and flags.
func printEffectiveConfig(w io.Writer) error {
	if _, err := tts.LoadConfigFromViper(); err != nil {
		return err
	}

	b, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return fmt.Errorf("unable to encode config: %w", err)
	}
	_, err = w.Write(b)
	return err //nolint:wrapcheck
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
