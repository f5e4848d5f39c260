package signals

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/dgnsrekt/aloud/internal/ttypes"
)

func runServer(t *testing.T) *server.Server {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   server.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("create nats server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("nats server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns
}

func TestNATSPublishesSignals(t *testing.T) {
	ns := runServer(t)

	sub, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("subscriber connect: %v", err)
	}
	defer sub.Close()

	msgs, err := sub.SubscribeSync("book.>")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	pub, err := ConnectNATS(ns.ClientURL(), "book", nil)
	if err != nil {
		t.Fatalf("ConnectNATS failed: %v", err)
	}
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	pub.clock = func() time.Time { return now }

	pub.Emit(ttypes.Signal{Kind: ttypes.SignalPageAdvance, Section: "南山经", Chars: 1000, Page: 1})
	pub.Emit(ttypes.Signal{Kind: ttypes.SignalFatal, Section: "南山经", Chars: 1200, Err: errors.New("retries exhausted")})

	tests := []struct {
		subject string
		want    Message
	}{
		{"book.page_advance", Message{Kind: "page_advance", Section: "南山经", Chars: 1000, Page: 1, Time: now}},
		{"book.fatal", Message{Kind: "fatal", Section: "南山经", Chars: 1200, Error: "retries exhausted", Time: now}},
	}
	for _, tt := range tests {
		msg, err := msgs.NextMsg(2 * time.Second)
		if err != nil {
			t.Fatalf("waiting for %s: %v", tt.subject, err)
		}
		if msg.Subject != tt.subject {
			t.Errorf("subject = %q, want %q", msg.Subject, tt.subject)
		}

		var got Message
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("decode %s: %v", msg.Data, err)
		}
		if !got.Time.Equal(tt.want.Time) {
			t.Errorf("time = %v, want %v", got.Time, tt.want.Time)
		}
		got.Time, tt.want.Time = time.Time{}, time.Time{}
		if got != tt.want {
			t.Errorf("message = %+v, want %+v", got, tt.want)
		}
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !pub.conn.IsClosed() {
		if time.Now().After(deadline) {
			t.Fatal("connection not closed after drain")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
