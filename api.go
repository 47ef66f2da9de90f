package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/tg0-data/etee-link/internal/controller"
	"github.com/tg0-data/etee-link/internal/packet"
	"github.com/tg0-data/etee-link/internal/schema"
	"github.com/tg0-data/etee-link/internal/telemetry"
)

type Server struct {
	ctrl   *controller.Controller
	store  *telemetry.Store
	schema *schema.PacketSchema
}

func NewServer(ctrl *controller.Controller, store *telemetry.Store, s *schema.PacketSchema) *Server {
	return &Server{ctrl: ctrl, store: store, schema: s}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", s.stateHandler)
	mux.HandleFunc("/events", s.eventsHandler)
	mux.HandleFunc("/command", s.commandHandler)
	mux.HandleFunc("/schema", s.schemaHandler)
	mux.HandleFunc("/telemetry/links", s.linkEventsHandler)
	return mux
}

type orientationJSON struct {
	W     float64 `json:"w"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

type handJSON struct {
	Connected   bool            `json:"connected"`
	Frames      uint64          `json:"frames"`
	Data        packet.Frame    `json:"data,omitempty"`
	Orientation orientationJSON `json:"orientation"`
}

type stateJSON struct {
	Session string   `json:"session"`
	Left    handJSON `json:"left"`
	Right   handJSON `json:"right"`
	Junk    uint64   `json:"junk_tokens"`
}

func (s *Server) handState(h controller.Hand) handJSON {
	q := s.ctrl.Quaternion(h)
	roll, pitch, yaw := q.Euler()
	return handJSON{
		Connected: s.ctrl.Connected(h),
		Frames:    s.ctrl.FrameCount(h),
		Data:      s.ctrl.Frame(h),
		Orientation: orientationJSON{
			W: q.W, X: q.X, Y: q.Y, Z: q.Z,
			Roll: roll, Pitch: pitch, Yaw: yaw,
		},
	}
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := stateJSON{
		Session: s.store.Session(),
		Left:    s.handState(controller.Left),
		Right:   s.handState(controller.Right),
		Junk:    s.ctrl.JunkCount(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		log.Printf("failed to encode state: %v", err)
	}
}

// eventsHandler streams driver events over SSE until the client goes
// away.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events := make(chan string, 16)
	notify := func(name string) func() {
		return func() {
			select {
			case events <- name:
			default:
			}
		}
	}

	type hook struct {
		ev *controller.Event
		id int
	}
	var hooks []hook
	connect := func(ev *controller.Event, name string) {
		hooks = append(hooks, hook{ev, ev.Connect(notify(name))})
	}
	connect(&s.ctrl.Events.LeftHandReceived, "left_frame")
	connect(&s.ctrl.Events.RightHandReceived, "right_frame")
	connect(&s.ctrl.Events.LeftConnected, "left_connected")
	connect(&s.ctrl.Events.RightConnected, "right_connected")
	connect(&s.ctrl.Events.LeftDisconnected, "left_disconnected")
	connect(&s.ctrl.Events.RightDisconnected, "right_disconnected")
	connect(&s.ctrl.Events.LeftHandLost, "left_hand_lost")
	connect(&s.ctrl.Events.RightHandLost, "right_hand_lost")
	connect(&s.ctrl.Events.DataLost, "data_lost")
	connect(&s.ctrl.Events.DongleDisconnected, "dongle_disconnected")
	defer func() {
		for _, h := range hooks {
			h.ev.Disconnect(h.id)
		}
	}()

	w.Write([]byte(": ping\n\n"))
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
		case name := <-events:
			// Frame events carry the hand's decoded state; link events
			// are bare notifications.
			payload := []byte("{}")
			switch name {
			case "left_frame":
				payload, _ = json.Marshal(s.handState(controller.Left))
			case "right_frame":
				payload, _ = json.Marshal(s.handState(controller.Right))
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload); err != nil {
				return
			}
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

func (s *Server) commandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	command := r.FormValue("command")
	if _, ok := allowedCommands[command]; !ok {
		http.Error(w, "Invalid command", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), controller.DefaultCommandTimeout)
	defer cancel()
	response, err := s.ctrl.Command(ctx, command)
	if err != nil {
		http.Error(w, fmt.Sprintf("Command failed: %v", err), http.StatusBadGateway)
		return
	}
	w.Write([]byte(response))
}

type widgetJSON struct {
	Name     string `json:"name"`
	Encoding string `json:"encoding"`
}

func (s *Server) schemaHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	fields := s.schema.Fields()
	widgets := make([]widgetJSON, 0, len(fields))
	for _, f := range fields {
		widgets = append(widgets, widgetJSON{Name: f.Name, Encoding: f.Encoding.String()})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"frame_length": s.schema.FrameLength(),
		"widgets":      widgets,
	})
}

func (s *Server) linkEventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	events, err := s.store.LinkEvents()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve events: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}
