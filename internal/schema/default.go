package schema

import (
	_ "embed"
	"fmt"
	"sync"
)

//go:embed etee_controller.yaml
var defaultConfig []byte

var (
	defaultOnce   sync.Once
	defaultSchema *PacketSchema
	defaultErr    error
)

// Default returns the stock etee controller schema compiled into the
// binary. The schema is parsed once and shared; it is immutable.
func Default() (*PacketSchema, error) {
	defaultOnce.Do(func() {
		defaultSchema, defaultErr = Parse(defaultConfig)
		if defaultErr != nil {
			defaultErr = fmt.Errorf("schema: embedded default: %w", defaultErr)
		}
	})
	return defaultSchema, defaultErr
}

// MustDefault returns the stock schema or panics. Intended for test
// setup and tool main functions where a broken embed is unrecoverable.
func MustDefault() *PacketSchema {
	s, err := Default()
	if err != nil {
		panic(err)
	}
	return s
}
