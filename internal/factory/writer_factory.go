package factory

import (
	"HopSpectra/internal/config"
	"HopSpectra/internal/report"
	"fmt"
	"log"
	"sort"
	"strings"
)

// WriterFactory defines a function that creates a report writer from its
// config entry.
type WriterFactory func(def config.WriterDef) (report.Writer, error)

// registry holds the mapping of writer types to their factory functions.
var registry = make(map[string]WriterFactory)

// RegisterWriter registers a new writer type with its factory function.
func RegisterWriter(name string, factory WriterFactory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("writer type '%s' already registered", name))
	}
	registry[name] = factory
}

// Types returns the registered writer types in sorted order.
func Types() []string {
	types := make([]string, 0, len(registry))
	for name := range registry {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// Create creates a writer for every enabled definition. Writers created
// before a failure are closed again.
func Create(defs []config.WriterDef) ([]report.Writer, error) {
	var writers []report.Writer

	for _, def := range defs {
		if !def.Enabled {
			continue
		}
		log.Printf("Creating report writer of type: '%s'", def.Type)

		factory, ok := registry[def.Type]
		if !ok {
			closeAll(writers)
			return nil, fmt.Errorf("unknown writer type: '%s' (known: %s)", def.Type, strings.Join(Types(), ", "))
		}

		w, err := factory(def)
		if err != nil {
			closeAll(writers)
			return nil, fmt.Errorf("error creating writer type '%s': %w", def.Type, err)
		}
		writers = append(writers, w)
	}

	return writers, nil
}

func closeAll(writers []report.Writer) {
	for _, w := range writers {
		if err := w.Close(); err != nil {
			log.Printf("Warning: failed to close writer: %v", err)
		}
	}
}
