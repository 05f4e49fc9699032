package observability

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Factory builds an observer bound to a logger.
type Factory func(logger *slog.Logger) Observer

var (
	factories = map[string]Factory{
		"noop": func(*slog.Logger) Observer { return NoOpObserver{} },
		"slog": func(logger *slog.Logger) Observer { return NewSlogObserver(logger) },
	}
	mutex sync.RWMutex
)

// Resolve builds the observer registered under name. A comma-separated
// list resolves each entry and joins the results, so "slog,metrics"
// delivers every event to both. Pre-registered: "noop" and "slog".
func Resolve(name string, logger *slog.Logger) (Observer, error) {
	var observers []Observer
	for _, key := range strings.Split(name, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		mutex.RLock()
		factory, exists := factories[key]
		mutex.RUnlock()

		if !exists {
			return nil, fmt.Errorf("unknown observer: %s", key)
		}
		observers = append(observers, factory(logger))
	}

	if len(observers) == 0 {
		return nil, fmt.Errorf("unknown observer: %q", name)
	}
	return Join(observers...), nil
}

// RegisterObserver adds or replaces a named observer factory.
func RegisterObserver(name string, factory Factory) {
	mutex.Lock()
	defer mutex.Unlock()

	factories[name] = factory
}

// Names lists the registered observer names, sorted.
func Names() []string {
	mutex.RLock()
	defer mutex.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
