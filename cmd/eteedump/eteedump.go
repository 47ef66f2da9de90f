// eteedump decodes a raw dongle capture file and prints its contents:
// data frames as widget values and print messages as text. Useful for
// inspecting captures taken with the daemon's dev fixtures or a serial
// sniffer.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/tg0-data/etee-link/internal/packet"
	"github.com/tg0-data/etee-link/internal/schema"
	"github.com/tg0-data/etee-link/internal/serialmux"
)

var (
	schemaPath = flag.String("schema", "", "Widget schema YAML (embedded stock layout when empty)")
	jsonOut    = flag.Bool("json", false, "Emit one JSON object per frame instead of text")
	widgets    = flag.String("widgets", "", "Comma-separated widget names to print (all when empty)")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatalf("usage: eteedump [flags] <capture file>")
	}

	var s *schema.PacketSchema
	var err error
	if *schemaPath == "" {
		s, err = schema.Default()
	} else {
		s, err = schema.LoadFile(*schemaPath)
	}
	if err != nil {
		log.Fatalf("failed to load schema: %v", err)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("failed to open capture: %v", err)
	}
	defer f.Close()

	var selected []string
	if *widgets != "" {
		selected = strings.Split(*widgets, ",")
		for _, name := range selected {
			if _, ok := s.Lookup(name); !ok {
				log.Fatalf("unknown widget %q", name)
			}
		}
	}

	dec := packet.NewDecoder(s)
	frames, prints, junk := 0, 0, 0

	err = serialmux.Scan(f, s.FrameLength(), func(r serialmux.Reading) bool {
		switch r.Kind {
		case serialmux.ReadingData:
			frame, err := dec.Decode(r.Frame)
			if err != nil {
				log.Printf("frame %d: %v", frames, err)
				return true
			}
			printFrame(frames, frame, selected)
			frames++
		case serialmux.ReadingPrint:
			fmt.Printf("# %s\n", strings.TrimRight(r.Text, "\r\n"))
			prints++
		case serialmux.ReadingJunk:
			junk++
		}
		return true
	})
	if err != nil {
		log.Fatalf("failed to scan capture: %v", err)
	}

	fmt.Fprintf(os.Stderr, "%d frames, %d messages, %d junk tokens\n", frames, prints, junk)
}

func printFrame(n int, frame packet.Frame, selected []string) {
	if *jsonOut {
		out := any(frame)
		if selected != nil {
			picked := make(packet.Frame, len(selected))
			for _, name := range selected {
				picked[name] = frame[name]
			}
			out = picked
		}
		b, err := json.Marshal(out)
		if err != nil {
			log.Printf("frame %d: %v", n, err)
			return
		}
		fmt.Println(string(b))
		return
	}

	names := selected
	if names == nil {
		names = make([]string, 0, len(frame))
		for name := range frame {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, frame[name]))
	}
	fmt.Printf("[%d] %s\n", n, strings.Join(parts, " "))
}
