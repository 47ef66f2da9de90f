package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tg0-data/etee-link/internal/controller"
	"github.com/tg0-data/etee-link/internal/schema"
	"github.com/tg0-data/etee-link/internal/serialmux"
	"github.com/tg0-data/etee-link/internal/telemetry"
)

type testHarness struct {
	srv  *Server
	port *serialmux.TestableSerialPort
	ctrl *controller.Controller
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	s := schema.MustDefault()
	port := serialmux.NewTestableSerialPort()
	mux := serialmux.NewSerialMux(port, s.FrameLength())

	store, err := telemetry.Open(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("telemetry.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctrl := controller.New(mux, s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() { mux.Monitor(ctx); done <- struct{}{} }()
	go func() { ctrl.Run(ctx); done <- struct{}{} }()
	t.Cleanup(func() {
		cancel()
		port.Close()
		<-done
		<-done
	})

	return &testHarness{
		srv:  NewServer(ctrl, store, s),
		port: port,
		ctrl: ctrl,
	}
}

// feedFrame pushes one raw data frame through the serial port. hand
// selects the routing bit.
func (h *testHarness) feedFrame(t *testing.T, hand controller.Hand) {
	t.Helper()
	s := schema.MustDefault()
	raw := make([]byte, s.FrameLength())
	raw[len(raw)-2], raw[len(raw)-1] = 0xFF, 0xFF
	if hand == controller.Right {
		raw[0] |= 1
	}
	h.port.FeedRead(raw)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ctrl.Connected(hand) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("frame never reached the driver")
}

func TestStateHandler(t *testing.T) {
	h := newTestHarness(t)
	h.feedFrame(t, controller.Right)

	rec := httptest.NewRecorder()
	h.srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/state", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var state stateJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("bad state JSON: %v", err)
	}
	if !state.Right.Connected || state.Right.Frames != 1 {
		t.Errorf("right hand = %+v", state.Right)
	}
	if state.Left.Connected {
		t.Error("left hand should not be connected")
	}
	if state.Session == "" {
		t.Error("state is missing the session ID")
	}
	if state.Right.Orientation.W != 1 {
		t.Errorf("fresh orientation = %+v, want identity", state.Right.Orientation)
	}
}

func TestStateHandlerRejectsPost(t *testing.T) {
	h := newTestHarness(t)

	rec := httptest.NewRecorder()
	h.srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/state", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestSchemaHandler(t *testing.T) {
	h := newTestHarness(t)

	rec := httptest.NewRecorder()
	h.srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/schema", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		FrameLength int          `json:"frame_length"`
		Widgets     []widgetJSON `json:"widgets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad schema JSON: %v", err)
	}
	if body.FrameLength != 44 {
		t.Errorf("frame_length = %d, want 44", body.FrameLength)
	}
	names := make(map[string]bool, len(body.Widgets))
	for _, w := range body.Widgets {
		names[w.Name] = true
	}
	for _, want := range []string{"hand", "thumb_pull", "accel_x", "battery_level"} {
		if !names[want] {
			t.Errorf("schema listing is missing %q", want)
		}
	}
}

func TestCommandHandlerRejectsUnknownCommand(t *testing.T) {
	h := newTestHarness(t)

	form := url.Values{"command": {"rm -rf"}}
	req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	h.srv.ServeMux().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestLinkEventsHandler(t *testing.T) {
	h := newTestHarness(t)
	recordLinkEvents(h.ctrl, h.srv.store)

	h.port.FeedRead([]byte("R connection complete\r\n"))

	deadline := time.Now().Add(2 * time.Second)
	var events []telemetry.LinkEvent
	for time.Now().Before(deadline) {
		var err error
		events, err = h.srv.store.LinkEvents()
		if err != nil {
			t.Fatalf("LinkEvents: %v", err)
		}
		if len(events) > 0 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if len(events) != 1 || events[0].Hand != "right" || events[0].Event != "connected" {
		t.Fatalf("events = %+v", events)
	}

	rec := httptest.NewRecorder()
	h.srv.ServeMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/telemetry/links", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []telemetry.LinkEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad events JSON: %v", err)
	}
	if len(got) != 1 || got[0].Event != "connected" {
		t.Errorf("response events = %+v", got)
	}
}

func TestSSEHandlerSendsPing(t *testing.T) {
	h := newTestHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)

	rec := httptest.NewRecorder()
	h.srv.ServeMux().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), ": ping\n\n") {
		t.Errorf("body = %q, want leading ping", rec.Body.String())
	}
}
