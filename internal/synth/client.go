package synth

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/muesli/reflow/truncate"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/aloud/internal/metrics"
	"github.com/dgnsrekt/aloud/internal/queue"
	"github.com/dgnsrekt/aloud/internal/ttypes"
)

const (
	// DefaultEndpoint is the streaming synthesis endpoint.
	DefaultEndpoint = "wss://ws-samantha.doubao.com/samantha/audio/tts"

	// DefaultFormat is the audio format requested when none is set.
	DefaultFormat = "aac"

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36"
	origin           = "https://www.doubao.com"

	idMin int64 = 7400000000000000000
	idMax int64 = 7499999999999999999
)

// Config contains synthesis client settings.
type Config struct {
	Endpoint          string
	Timeout           time.Duration // connect, read and write ceiling
	BufferSize        int           // stream buffer in bytes
	RequestsPerMinute int           // 0 disables rate limiting
	UserAgent         string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:   DefaultEndpoint,
		Timeout:    60 * time.Second,
		BufferSize: queue.DefaultCapacity,
		UserAgent:  defaultUserAgent,
	}
}

// Options select the voice and prosody of one utterance.
type Options struct {
	Voice       string
	RateAdjust  float64 // -1..1, sent as an integer percentage
	PitchAdjust float64
	Format      string
}

// Client opens one streaming session per utterance. Device and web
// identifiers are generated once and reused for every session.
type Client struct {
	config  Config
	dialer  *websocket.Dialer
	limiter *rate.Limiter

	deviceID string
	webID    string

	sessions atomic.Int64

	logger  *log.Logger
	metrics *metrics.Metrics
}

// NewClient creates a client.
func NewClient(cfg Config, m *metrics.Metrics, logger *log.Logger) *Client {
	def := DefaultConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if logger == nil {
		logger = log.Default()
	}

	c := &Client{
		config: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.Timeout,
		},
		deviceID: newDeviceID(),
		webID:    newDeviceID(),
		logger:   logger,
		metrics:  m,
	}

	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return c
}

// Sessions returns the number of sessions that reached the backend.
func (c *Client) Sessions() int64 {
	return c.sessions.Load()
}

// Open starts a session for text and returns its stream immediately.
// An empty credential fails before any network activity.
func (c *Client) Open(ctx context.Context, credential, text string, opts Options) (*Stream, error) {
	if credential == "" {
		return nil, ttypes.NewError(ttypes.CodePrecondition, "credential required", ttypes.ErrMissingCredential)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := newStream(c.config.BufferSize, cancel)

	go func() {
		start := time.Now()
		err := c.session(ctx, credential, Normalize(text), opts, s)
		s.finish(err)

		code := ""
		if err != nil && !ttypes.IsCanceled(err) {
			code = errorCode(err)
			c.logger.Debug("synthesis session failed", "err", err)
		}
		c.metrics.ObserveSynthesis(time.Since(start), int(s.Len()), code)
	}()

	return s, nil
}

// Synthesize runs one session and drains it. It implements
// ttypes.Synthesizer.
func (c *Client) Synthesize(ctx context.Context, req ttypes.SynthesisRequest) ([]byte, error) {
	s, err := c.Open(ctx, req.Credential, req.Text, Options{
		Voice:       req.Voice,
		RateAdjust:  req.RateAdjust,
		PitchAdjust: req.PitchAdjust,
		Format:      req.Format,
	})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return ReadAll(s)
}

// session runs the protocol until the backend closes, fails or ctx ends.
func (c *Client) session(ctx context.Context, credential, text string, opts Options, s *Stream) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.endpointURL(opts), c.header(credential))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e := transportError("dial failed", err)
		if resp != nil {
			e.WithContext("status", resp.StatusCode)
		}
		return e
	}
	defer conn.Close()
	c.sessions.Add(1)

	// Unblock ReadMessage when the caller cancels or closes the stream
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	conn.SetWriteDeadline(time.Now().Add(c.config.Timeout))
	if err := conn.WriteJSON(clientEvent{Event: "text", Text: text}); err != nil {
		return c.failure(ctx, "send text", err)
	}
	if err := conn.WriteJSON(clientEvent{Event: "finish"}); err != nil {
		return c.failure(ctx, "send finish", err)
	}

	for {
		conn.SetReadDeadline(time.Now().Add(c.config.Timeout))
		frame := readFrame(conn)

		switch frame.Kind {
		case FrameBinary:
			if err := s.write(frame.Data); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}

		case FrameText:
			if frame.Err != nil {
				c.logger.Debug("ignoring malformed control frame", "err", frame.Err)
				continue
			}
			if err := c.control(frame.Control); err != nil {
				return err
			}

		case FrameClose:
			return nil

		case FrameFailure:
			return c.failure(ctx, "read", frame.Err)
		}
	}
}

// control handles a JSON control frame, returning an error when the
// backend reports one.
func (c *Client) control(ctl Control) error {
	switch ctl.Event {
	case "open_success":
		c.logger.Debug("synthesis session open")
	case "sentence_start":
		c.logger.Debug("sentence start", "text", truncate.StringWithTail(ctl.SentenceStart.ReadableText, 40, "…"))
	case "error":
		return ttypes.NewError(ttypes.CodeBackend, ctl.Message, nil).WithContext("event", ctl.Event)
	}

	if ctl.Code != 0 {
		return ttypes.NewError(ttypes.CodeBackend, ctl.Message, nil).WithContext("code", ctl.Code)
	}
	return nil
}

func (c *Client) failure(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ttypes.NewError(ttypes.CodeTimeout, op+" timed out", err)
	}
	return transportError(op+" failed", err)
}

func transportError(msg string, err error) *ttypes.Error {
	return ttypes.NewError(ttypes.CodeTransport, msg, err)
}

func (c *Client) endpointURL(opts Options) string {
	format := opts.Format
	if format == "" {
		format = DefaultFormat
	}

	q := url.Values{}
	q.Set("speaker", ResolveVoice(opts.Voice))
	q.Set("format", format)
	q.Set("speech_rate", strconv.Itoa(int(opts.RateAdjust*100)))
	q.Set("pitch", strconv.Itoa(int(opts.PitchAdjust*100)))
	q.Set("version_code", "20800")
	q.Set("language", "zh")
	q.Set("device_platform", "web")
	q.Set("aid", "497858")
	q.Set("real_aid", "497858")
	q.Set("pkg_type", "release_version")
	q.Set("device_id", c.deviceID)
	q.Set("pc_version", "2.50.6")
	q.Set("web_id", c.webID)
	q.Set("tea_uuid", c.webID)
	q.Set("region", "CN")
	q.Set("sys_region", "CN")
	q.Set("samantha_web", "1")
	q.Set("use-olympus-account", "1")
	q.Set("web_tab_id", uuid.NewString())

	return fmt.Sprintf("%s?%s", c.config.Endpoint, q.Encode())
}

func (c *Client) header(credential string) http.Header {
	h := http.Header{}
	h.Set("Accept-Language", "en,zh-CN;q=0.9,zh;q=0.8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")
	h.Set("Origin", origin)
	h.Set("User-Agent", c.config.UserAgent)
	h.Set("Cookie", credential)
	return h
}

// newDeviceID draws a 19-digit identifier. It only decorates requests.
func newDeviceID() string {
	return strconv.FormatInt(idMin+rand.Int64N(idMax-idMin), 10)
}
