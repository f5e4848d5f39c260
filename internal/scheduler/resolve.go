package scheduler

import (
	"context"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/aloud/internal/cache"
	"github.com/dgnsrekt/aloud/internal/metrics"
	"github.com/dgnsrekt/aloud/internal/synth"
	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// resolver makes chunk audio available in the store. Both scheduler kinds
// share its logic.
type resolver struct {
	kind    string
	synth   ttypes.Synthesizer
	store   ttypes.AudioStore
	skip    *regexp.Regexp
	silence []byte

	logger  *log.Logger
	metrics *metrics.Metrics
}

// resolve fingerprints chunk and fills the store on a miss. It reports
// whether a backend synthesis succeeded. Errors are returned only for
// cancellation and a missing credential; in both cases nothing is written.
func (r *resolver) resolve(ctx context.Context, chunk *ttypes.Chunk, opts RunOptions) (bool, error) {
	chunk.Fingerprint = cache.Fingerprint(opts.rateKey(), synth.Normalize(chunk.Text))

	if r.store.Has(chunk.Fingerprint) {
		chunk.Cached = true
		r.logger.Debug("chunk cached", "kind", r.kind, "order", chunk.Order, "fingerprint", chunk.Fingerprint)
		return false, nil
	}

	speak := chunk.Text
	if r.skip != nil {
		speak = r.skip.ReplaceAllString(speak, "")
	}
	if strings.TrimSpace(synth.Normalize(speak)) == "" {
		r.substitute(chunk)
		return false, nil
	}

	data, err := r.synth.Synthesize(ctx, ttypes.SynthesisRequest{
		Credential:  opts.Credential,
		Text:        speak,
		Voice:       opts.Voice,
		RateAdjust:  opts.Rate,
		PitchAdjust: opts.Pitch,
		Format:      opts.Format,
	})
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		if ttypes.HasCode(err, ttypes.CodePrecondition) {
			return false, err
		}
		r.logger.Warn("synthesis failed, substituting silence",
			"kind", r.kind, "order", chunk.Order, "fingerprint", chunk.Fingerprint, "err", err)
		r.substitute(chunk)
		return false, nil
	}

	r.store.Put(chunk.Fingerprint, data)
	return true, nil
}

func (r *resolver) substitute(chunk *ttypes.Chunk) {
	chunk.Silent = true
	if ts, ok := r.store.(ttypes.TransientStore); ok {
		ts.PutTransient(chunk.Fingerprint, r.silence)
		return
	}
	r.store.Put(chunk.Fingerprint, r.silence)
}
