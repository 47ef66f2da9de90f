// etee-link is the host-side daemon for the etee controller dongle. It
// decodes the controller data stream into typed state, tracks link
// health, runs the orientation filters, records session telemetry and
// serves the lot over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tg0-data/etee-link/internal/controller"
	"github.com/tg0-data/etee-link/internal/schema"
	"github.com/tg0-data/etee-link/internal/serialmux"
	"github.com/tg0-data/etee-link/internal/telemetry"
	"github.com/tg0-data/etee-link/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Run in dev mode, replaying fixture data instead of opening a dongle")
	fixtures    = flag.String("fixtures", "fixtures.bin", "Raw dongle capture to replay in dev mode")
	listen      = flag.String("listen", ":8080", "Listen address")
	portPath    = flag.String("port", "", "Dongle serial port (auto-discovered when empty)")
	schemaPath  = flag.String("schema", "", "Widget schema YAML (embedded stock layout when empty)")
	dbFile      = flag.String("db", "telemetry.db", "Telemetry database path")
	absoluteIMU = flag.Bool("absolute-imu", false, "Fuse magnetometer data for absolute orientation")
)

// statsInterval is how often battery and stream counters are sampled
// into the telemetry store.
const statsInterval = 10 * time.Second

func loadSchema() (*schema.PacketSchema, error) {
	if *schemaPath == "" {
		return schema.Default()
	}
	return schema.LoadFile(*schemaPath)
}

func openMux(frameLen int) (serialmux.Mux, error) {
	if *devMode {
		data, err := os.ReadFile(*fixtures)
		if err != nil {
			return nil, err
		}
		m, _ := serialmux.NewMockSerialMux(data, 100*time.Millisecond, frameLen)
		log.Printf("dev mode: replaying %d bytes from %s", len(data), *fixtures)
		return m, nil
	}

	path := *portPath
	if path == "" {
		var err error
		path, err = controller.FindDongle()
		if err != nil {
			return nil, err
		}
		log.Printf("found dongle at %s", path)
	}
	m, err := serialmux.NewRealSerialMux(path, frameLen)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// recordLinkEvents wires the driver's link events into the telemetry
// store.
func recordLinkEvents(ctrl *controller.Controller, store *telemetry.Store) {
	record := func(hand, event string) func() {
		return func() {
			if err := store.RecordLinkEvent(hand, event); err != nil {
				log.Printf("failed to record link event: %v", err)
			}
		}
	}
	ctrl.Events.LeftConnected.Connect(record("left", "connected"))
	ctrl.Events.RightConnected.Connect(record("right", "connected"))
	ctrl.Events.LeftDisconnected.Connect(record("left", "disconnected"))
	ctrl.Events.RightDisconnected.Connect(record("right", "disconnected"))
	ctrl.Events.LeftHandLost.Connect(record("left", "hand_lost"))
	ctrl.Events.RightHandLost.Connect(record("right", "hand_lost"))
	ctrl.Events.DongleDisconnected.Connect(record("dongle", "dongle_lost"))
}

func sampleStats(ctrl *controller.Controller, store *telemetry.Store) {
	for _, h := range []controller.Hand{controller.Left, controller.Right} {
		level, ok := ctrl.Get(h, "battery_level")
		if !ok {
			continue
		}
		charging, _ := ctrl.Get(h, "battery_charging")
		if err := store.RecordBattery(h.String(), int(level.Uint()), charging.Bool()); err != nil {
			log.Printf("failed to record battery: %v", err)
		}
	}
	err := store.RecordStreamStats(
		ctrl.FrameCount(controller.Left),
		ctrl.FrameCount(controller.Right),
		ctrl.JunkCount())
	if err != nil {
		log.Printf("failed to record stream stats: %v", err)
	}
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	log.Printf("etee-link %s", version.String())

	s, err := loadSchema()
	if err != nil {
		log.Fatalf("failed to load schema: %v", err)
	}
	log.Printf("schema: %d widgets, %d byte frames", s.NumFields(), s.FrameLength())

	m, err := openMux(s.FrameLength())
	if err != nil {
		log.Fatalf("failed to open dongle: %v", err)
	}
	defer m.Close()

	store, err := telemetry.Open(*dbFile)
	if err != nil {
		log.Fatalf("failed to open telemetry store: %v", err)
	}
	defer store.Close()
	log.Printf("telemetry session %s", store.Session())

	ctrl := controller.New(m, s)
	ctrl.SetAbsoluteIMU(*absoluteIMU)
	recordLinkEvents(ctrl, store)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// serial port IO
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// driver loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("driver loop failed: %v", err)
		}
		log.Print("driver routine terminated")
	}()

	// telemetry sampler
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sampleStats(ctrl, store)
			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP server
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		apiMux := NewServer(ctrl, store, s).ServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiMux))

		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	// kick off the stream once the routines are up
	if err := ctrl.StartData(); err != nil {
		log.Printf("failed to start data stream: %v", err)
	}

	wg.Wait()

	if err := ctrl.StopData(); err != nil {
		log.Printf("failed to stop data stream: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
