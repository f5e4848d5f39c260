package tts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/dgnsrekt/aloud/internal/synth"
	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// Validate checks configuration values.
func (c Config) Validate() error {
	var errs []error

	if c.Rate < -1 || c.Rate > 1 {
		errs = append(errs, fmt.Errorf("rate must be between -1.0 and 1.0, got %.2f", c.Rate))
	}
	if c.Pitch < -1 || c.Pitch > 1 {
		errs = append(errs, fmt.Errorf("pitch must be between -1.0 and 1.0, got %.2f", c.Pitch))
	}
	if c.Format == "" {
		errs = append(errs, errors.New("format must not be empty"))
	}
	if c.Silence < 0 {
		errs = append(errs, fmt.Errorf("silence must not be negative, got %s", c.Silence))
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		errs = append(errs, fmt.Errorf("volume must be between 0.0 and 1.0, got %.2f", c.Audio.Volume))
	}

	if c.Chunk.Floor < 1 {
		errs = append(errs, fmt.Errorf("chunk floor must be positive, got %d", c.Chunk.Floor))
	}
	if c.Chunk.Ceiling < c.Chunk.Floor {
		errs = append(errs, fmt.Errorf("chunk ceiling %d is below floor %d", c.Chunk.Ceiling, c.Chunk.Floor))
	}
	if c.Chunk.Step < 0 {
		errs = append(errs, fmt.Errorf("chunk step must not be negative, got %d", c.Chunk.Step))
	}
	if c.Chunk.PrefetchFraction < 0 || c.Chunk.PrefetchFraction > 1 {
		errs = append(errs, fmt.Errorf("prefetch fraction must be between 0 and 1, got %.2f", c.Chunk.PrefetchFraction))
	}
	if c.Chunk.SkipPattern != "" {
		if _, err := regexp.Compile(c.Chunk.SkipPattern); err != nil {
			errs = append(errs, fmt.Errorf("invalid skip pattern: %w", err))
		}
	}

	if c.Synth.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("synthesis timeout must be positive, got %s", c.Synth.Timeout))
	}
	if c.Cache.Compression < 0 || c.Cache.Compression > 22 {
		errs = append(errs, fmt.Errorf("cache compression must be between 0 and 22, got %d", c.Cache.Compression))
	}
	if c.Playback.MaxErrors < 1 {
		errs = append(errs, fmt.Errorf("max errors must be positive, got %d", c.Playback.MaxErrors))
	}

	return errors.Join(errs...)
}

// ValidationResult describes whether reading can start and how to fix it
// when it cannot.
type ValidationResult struct {
	// Ready is set when every check passed
	Ready bool

	// Error contains the first failed check
	Error error

	// Guidance provides setup instructions if validation failed
	Guidance string

	// Details contains additional information for display
	Details map[string]string
}

// ValidateSetup checks the credential, voice and cache directory before a
// session starts. It never contacts the backend.
func ValidateSetup(cfg Config, cred CredentialProvider) *ValidationResult {
	result := &ValidationResult{Details: make(map[string]string)}

	result.Details["voice"] = synth.ResolveVoice(cfg.Voice)
	if !synth.IsKnownVoice(cfg.Voice) {
		note := "not in the voice table, sent as-is"
		if s, ok := synth.SuggestVoice(cfg.Voice); ok {
			note = fmt.Sprintf("%s (did you mean %q?)", note, s)
		}
		result.Details["voice_note"] = note
	}

	if cred == nil || cred.Credential() == "" {
		result.Error = ttypes.ErrMissingCredential
		result.Guidance = buildCredentialGuidance(cfg)
		return result
	}
	result.Details["credential"] = "present"

	if cfg.Cache.Dir != "" {
		parent := filepath.Dir(cfg.Cache.Dir)
		if _, err := os.Stat(parent); err != nil {
			result.Error = fmt.Errorf("cache directory parent not accessible: %w", err)
			result.Guidance = "Create the parent directory or change cache.dir in the config file"
			return result
		}
		result.Details["cache_dir"] = cfg.Cache.Dir
	}

	result.Ready = true
	return result
}

func buildCredentialGuidance(cfg Config) string {
	where := "a file such as ~/.config/aloud/cookie"
	if cfg.CredentialFile != "" {
		where = cfg.CredentialFile
	}
	return fmt.Sprintf(`No backend credential is set. To configure:

1. Sign in to the web client in a browser.
2. Copy the Cookie request header of the speech websocket.
3. Save it to %s and pass --credential-file, or
   export ALOUD_CREDENTIAL='<cookie>'.

Reading resumes by itself once the credential file is written.`, where)
}
