package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"market-analyzer/internal/backtest"
	"market-analyzer/internal/model"
)

// envelope is the parsed WS message structure.
type envelope struct {
	Channel    string          `json:"channel"`
	Symbol     string          `json:"symbol"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
	Initial    bool            `json:"initial"`
}

func TestBroadcastEnvelopeFormat(t *testing.T) {
	channel := "pub:backtest:AAPL"
	data := []byte(`{"run_id":"r1","symbol":"AAPL","result":{"roi":12.24,"win_rate":100,"total_trades":1}}`)
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)

	buf := buildEnvelope(channel, data, now, 42, 7)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	if env.Channel != channel {
		t.Errorf("channel: got %q, want %q", env.Channel, channel)
	}
	if env.Symbol != "AAPL" {
		t.Errorf("symbol: got %q, want AAPL", env.Symbol)
	}
	if env.Seq != 42 || env.ChannelSeq != 7 {
		t.Errorf("seq/channel_seq: got %d/%d, want 42/7", env.Seq, env.ChannelSeq)
	}

	var rep struct {
		RunID  string `json:"run_id"`
		Result struct {
			ROI float64 `json:"roi"`
		} `json:"result"`
	}
	if err := json.Unmarshal(env.Data, &rep); err != nil {
		t.Fatalf("data is not valid JSON: %v", err)
	}
	if rep.RunID != "r1" || rep.Result.ROI != 12.24 {
		t.Errorf("data: got %+v", rep)
	}

	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	if err != nil {
		t.Errorf("ts is not valid RFC3339Nano: %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("ts: got %v, want %v", parsed, now)
	}
}

func TestBroadcastEnvelopeQuotesChannel(t *testing.T) {
	channel := `pub:backtest:BRK"B`
	buf := buildEnvelope(channel, []byte(`{}`), time.Now().UTC(), 1, 1)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	if env.Channel != channel {
		t.Errorf("channel: got %q, want %q", env.Channel, channel)
	}
}

func TestBroadcaster_PerChannelSeq(t *testing.T) {
	hub := NewHub(nil)
	a, b := "pub:backtest:AAPL", "pub:backtest:MSFT"

	hub.Broadcaster.Broadcast(a, []byte(`{}`))
	hub.Broadcaster.Broadcast(a, []byte(`{}`))
	hub.Broadcaster.Broadcast(b, []byte(`{}`))
	hub.Broadcaster.Broadcast(a, []byte(`{}`))

	if got := hub.GetChannelSeq(a); got != 3 {
		t.Errorf("channel_seq %s: got %d, want 3", a, got)
	}
	if got := hub.GetChannelSeq(b); got != 1 {
		t.Errorf("channel_seq %s: got %d, want 1", b, got)
	}

	replay := hub.GetReplayRange(a, 2, 3, "")
	if len(replay) != 2 {
		t.Fatalf("replay %s [2,3]: got %d, want 2", a, len(replay))
	}
	var last envelope
	if err := json.Unmarshal(replay[1], &last); err != nil {
		t.Fatal(err)
	}
	if last.ChannelSeq != 3 || last.Seq != 4 {
		t.Errorf("last replay: channel_seq=%d seq=%d, want 3/4", last.ChannelSeq, last.Seq)
	}
	if hub.GetReplayRange("pub:backtest:NONE", 1, 10, "") != nil {
		t.Error("unknown channel should replay nothing")
	}
}

func TestHub_ReplayByRunID(t *testing.T) {
	hub := NewHub(nil)
	ch := "pub:backtest:AAPL"
	hub.Broadcaster.Broadcast(ch, []byte(`{"run_id":"r1","n":1}`))
	hub.Broadcaster.Broadcast(ch, []byte(`{"run_id":"r2","n":2}`))
	hub.Broadcaster.Broadcast(ch, []byte(`{"run_id":"r1","n":3}`))

	got := hub.GetReplayRange(ch, 1, 3, "r1")
	if len(got) != 2 {
		t.Fatalf("run r1: got %d envelopes, want 2", len(got))
	}
	var env envelope
	if err := json.Unmarshal(got[1], &env); err != nil {
		t.Fatal(err)
	}
	if env.ChannelSeq != 3 {
		t.Errorf("second r1 envelope: channel_seq=%d, want 3", env.ChannelSeq)
	}
	if n := len(hub.GetReplayRange(ch, 1, 3, "missing")); n != 0 {
		t.Errorf("unknown run: got %d envelopes", n)
	}
}

func TestHubRecordStoresLatest(t *testing.T) {
	hub := NewHub(nil)
	rep := &backtest.Report{RunID: "r1", Symbol: "AAPL", Result: model.BacktestResult{ROIPercent: 1.5}}

	if err := hub.Record(context.Background(), rep); err != nil {
		t.Fatal(err)
	}
	latest := hub.GetLatestAll()
	data, ok := latest["pub:backtest:AAPL"]
	if !ok {
		t.Fatalf("latest missing AAPL: %v", latest)
	}
	if !strings.Contains(string(data), `"run_id":"r1"`) {
		t.Errorf("latest payload: %s", data)
	}
}

func dialHub(t *testing.T, hub *Hub, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(httpHandler(hub))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() == 0 {
		t.Fatal("client never registered")
	}
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(v); err != nil {
		t.Fatalf("read: %v", err)
	}
}

func TestClientReceivesInitialState(t *testing.T) {
	hub := NewHub(nil)
	hub.Broadcaster.Broadcast("pub:backtest:AAPL", []byte(`{"run_id":"r0"}`))

	conn := dialHub(t, hub, "")

	var env envelope
	readJSON(t, conn, &env)
	if !env.Initial || env.Symbol != "AAPL" || env.ChannelSeq != 1 {
		t.Errorf("initial envelope: %+v", env)
	}
}

func TestClientInitialStateRespectsLastTS(t *testing.T) {
	hub := NewHub(nil)
	hub.Broadcaster.Broadcast("pub:backtest:AAPL", []byte(`{}`))

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339Nano)
	conn := dialHub(t, hub, "?last_ts="+future)

	// Nothing newer than last_ts, so the first frame is the PONG we ask for.
	if err := conn.WriteJSON(map[string]interface{}{"type": "PING", "ping": 7}); err != nil {
		t.Fatal(err)
	}
	var msg map[string]interface{}
	readJSON(t, conn, &msg)
	if msg["type"] != "PONG" || msg["ping"] != float64(7) {
		t.Errorf("expected PONG, got %v", msg)
	}
}

func TestClientSymbolFilter(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub, "")

	if err := conn.WriteJSON(map[string]interface{}{"type": "SUBSCRIBE", "symbols": []string{"MSFT"}}); err != nil {
		t.Fatal(err)
	}
	var ack struct {
		Type    string   `json:"type"`
		Symbols []string `json:"symbols"`
	}
	readJSON(t, conn, &ack)
	if ack.Type != "SUBSCRIBED" || len(ack.Symbols) != 1 || ack.Symbols[0] != "MSFT" {
		t.Fatalf("ack: %+v", ack)
	}

	hub.Broadcaster.Broadcast("pub:backtest:AAPL", []byte(`{"n":1}`))
	hub.Broadcaster.Broadcast("pub:backtest:MSFT", []byte(`{"n":2}`))

	var env envelope
	readJSON(t, conn, &env)
	if env.Symbol != "MSFT" || string(env.Data) != `{"n":2}` {
		t.Errorf("filtered delivery: %+v", env)
	}
}

func TestClientRejectsUnknownMessage(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub, "")

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatal(err)
	}
	var msg map[string]string
	readJSON(t, conn, &msg)
	if msg["type"] != "ERROR" {
		t.Errorf("expected ERROR, got %v", msg)
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub, "")

	hub.Close()
	if hub.ClientCount() != 0 {
		t.Errorf("clients after Close: %d", hub.ClientCount())
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected read error after hub close")
	}
}
