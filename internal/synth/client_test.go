package synth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// fakeBackend is a scripted synthesis server.
type fakeBackend struct {
	srv      *httptest.Server
	sessions atomic.Int32

	mu     sync.Mutex
	events []clientEvent
	query  url.Values
	cookie string
}

func newFakeBackend(t *testing.T, script func(conn *websocket.Conn)) *fakeBackend {
	t.Helper()

	fb := &fakeBackend{}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	fb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fb.sessions.Add(1)

		fb.mu.Lock()
		fb.query = r.URL.Query()
		fb.cookie = r.Header.Get("Cookie")
		fb.mu.Unlock()

		// text, then finish
		for i := 0; i < 2; i++ {
			var ev clientEvent
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			fb.mu.Lock()
			fb.events = append(fb.events, ev)
			fb.mu.Unlock()
		}

		script(conn)
	}))
	t.Cleanup(fb.srv.Close)

	return fb
}

func (fb *fakeBackend) endpoint() string {
	return "ws" + strings.TrimPrefix(fb.srv.URL, "http")
}

func (fb *fakeBackend) client(timeout time.Duration) *Client {
	cfg := DefaultConfig()
	cfg.Endpoint = fb.endpoint()
	cfg.Timeout = timeout
	return NewClient(cfg, nil, nil)
}

func sendControl(conn *websocket.Conn, v interface{}) {
	b, _ := json.Marshal(v)
	conn.WriteMessage(websocket.TextMessage, b)
}

func closeNormally(conn *websocket.Conn) {
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// drain blocks until the client goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestClient_StreamsBinaryFrames(t *testing.T) {
	fb := newFakeBackend(t, func(conn *websocket.Conn) {
		sendControl(conn, map[string]string{"event": "open_success"})
		conn.WriteMessage(websocket.BinaryMessage, []byte("abc"))
		sendControl(conn, map[string]interface{}{
			"event":                 "sentence_start",
			"sentence_start_result": map[string]string{"readable_text": "你好"},
		})
		conn.WriteMessage(websocket.BinaryMessage, []byte("def"))
		closeNormally(conn)
	})
	c := fb.client(5 * time.Second)

	data, err := c.Synthesize(context.Background(), ttypes.SynthesisRequest{
		Credential:  "sessionid=abc",
		Text:        "你好，世界！😀",
		Voice:       "qingche",
		RateAdjust:  0.5,
		PitchAdjust: -0.2,
		Format:      "pcm",
	})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(data) != "abcdef" {
		t.Errorf("Expected frames in arrival order, got %q", data)
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	if len(fb.events) != 2 || fb.events[0].Event != "text" || fb.events[1].Event != "finish" {
		t.Fatalf("Expected text then finish, got %+v", fb.events)
	}
	if fb.events[0].Text != "你好，世界！" {
		t.Errorf("Expected normalized text, got %q", fb.events[0].Text)
	}
	if fb.cookie != "sessionid=abc" {
		t.Errorf("Expected credential as cookie, got %q", fb.cookie)
	}

	checks := map[string]string{
		"speaker":     "zh_female_qingche_moon_bigtts",
		"format":      "pcm",
		"speech_rate": "50",
		"pitch":       "-20",
		"region":      "CN",
	}
	for k, want := range checks {
		if got := fb.query.Get(k); got != want {
			t.Errorf("query %s = %q, want %q", k, got, want)
		}
	}
	if len(fb.query.Get("device_id")) != 19 || fb.query.Get("web_id") != fb.query.Get("tea_uuid") {
		t.Errorf("Unexpected identifiers: %v", fb.query)
	}
}

func TestClient_IdentifiersReusedAcrossSessions(t *testing.T) {
	fb := newFakeBackend(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.BinaryMessage, []byte("x"))
		closeNormally(conn)
	})
	c := fb.client(5 * time.Second)

	var ids, tabs []string
	for i := 0; i < 2; i++ {
		if _, err := c.Synthesize(context.Background(), ttypes.SynthesisRequest{Credential: "c", Text: "好"}); err != nil {
			t.Fatalf("Synthesize failed: %v", err)
		}
		fb.mu.Lock()
		ids = append(ids, fb.query.Get("device_id"))
		tabs = append(tabs, fb.query.Get("web_tab_id"))
		fb.mu.Unlock()
	}

	if ids[0] != ids[1] {
		t.Errorf("device_id changed between sessions: %v", ids)
	}
	if tabs[0] == tabs[1] {
		t.Errorf("web_tab_id should be fresh per session: %v", tabs)
	}
	if got := c.Sessions(); got != 2 {
		t.Errorf("Expected one session per call, got %d", got)
	}
}

func TestClient_Failures(t *testing.T) {
	tests := []struct {
		name   string
		script func(conn *websocket.Conn)
		code   ttypes.ErrorCode
	}{
		{
			name: "error event",
			script: func(conn *websocket.Conn) {
				conn.WriteMessage(websocket.BinaryMessage, []byte("partial"))
				sendControl(conn, map[string]string{"event": "error", "message": "quota exceeded"})
				drain(conn)
			},
			code: ttypes.CodeBackend,
		},
		{
			name: "non-zero code",
			script: func(conn *websocket.Conn) {
				sendControl(conn, map[string]interface{}{"code": 401, "message": "unauthorized"})
				drain(conn)
			},
			code: ttypes.CodeBackend,
		},
		{
			name: "abnormal close",
			script: func(conn *websocket.Conn) {
				conn.WriteMessage(websocket.BinaryMessage, []byte("partial"))
				conn.Close()
			},
			code: ttypes.CodeTransport,
		},
		{
			name: "clean close without audio",
			script: func(conn *websocket.Conn) {
				sendControl(conn, map[string]string{"event": "open_success"})
				closeNormally(conn)
			},
			code: ttypes.CodeEmptyAudio,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend(t, tt.script)
			c := fb.client(5 * time.Second)

			_, err := c.Synthesize(context.Background(), ttypes.SynthesisRequest{Credential: "c", Text: "你好"})
			if !ttypes.HasCode(err, tt.code) {
				t.Errorf("Expected %s error, got %v", tt.code, err)
			}
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	fb := newFakeBackend(t, drain)
	c := fb.client(100 * time.Millisecond)

	start := time.Now()
	_, err := c.Synthesize(context.Background(), ttypes.SynthesisRequest{Credential: "c", Text: "你好"})
	if !ttypes.HasCode(err, ttypes.CodeTimeout) {
		t.Errorf("Expected timeout error, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("Timeout took too long: %v", time.Since(start))
	}
}

func TestClient_MissingCredential(t *testing.T) {
	fb := newFakeBackend(t, closeNormally)
	c := fb.client(time.Second)

	_, err := c.Synthesize(context.Background(), ttypes.SynthesisRequest{Text: "你好"})
	if !errors.Is(err, ttypes.ErrMissingCredential) {
		t.Errorf("Expected ErrMissingCredential, got %v", err)
	}
	if !ttypes.HasCode(err, ttypes.CodePrecondition) {
		t.Errorf("Expected precondition error, got %v", err)
	}
	if n := fb.sessions.Load(); n != 0 {
		t.Errorf("Expected no backend sessions, got %d", n)
	}
}

func TestClient_StreamBeforeData(t *testing.T) {
	release := make(chan struct{})
	fb := newFakeBackend(t, func(conn *websocket.Conn) {
		<-release
		conn.WriteMessage(websocket.BinaryMessage, []byte("late"))
		closeNormally(conn)
	})
	c := fb.client(5 * time.Second)

	s, err := c.Open(context.Background(), "c", "你好", Options{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	got := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(s)
		got <- data
	}()

	select {
	case <-got:
		t.Fatal("Read completed before any data was sent")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case data := <-got:
		if string(data) != "late" {
			t.Errorf("Expected %q, got %q", "late", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stream never delivered data")
	}

	<-s.Done()
	if s.Err() != nil {
		t.Errorf("Expected clean session end, got %v", s.Err())
	}
}

func TestClient_Cancel(t *testing.T) {
	fb := newFakeBackend(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.BinaryMessage, []byte("a"))
		drain(conn)
	})
	c := fb.client(10 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Synthesize(ctx, ttypes.SynthesisRequest{Credential: "c", Text: "你好"})
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Cancellation did not stop the session")
	}
}
