package events

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fleetgrid/webhooks/webhook/payload"
)

/* Catalog is the registry of event types the platform can emit.
 * It is an open enumeration: domain modules register their types at
 * startup (or via catalog.yaml), so new events need no change to the
 * router or dispatcher.
 */
type Catalog struct {
	mu    sync.RWMutex
	types map[string]string // type -> description
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		types: make(map[string]string),
	}
}

// Default returns a catalog seeded with the platform's built-in events
func Default() *Catalog {
	c := NewCatalog()
	for eventType, description := range builtin {
		// builtin types are statically valid
		c.types[eventType] = description
	}
	return c
}

var builtin = map[string]string{
	"load.created":          "A load was created",
	"load.updated":          "A load was updated",
	"load.completed":        "A load was completed",
	"load.cancelled":        "A load was cancelled",
	"driver.assigned":       "A driver was assigned to a load",
	"driver.violation":      "A driver hours-of-service violation was recorded",
	"route.optimized":       "A route was optimized",
	"route.completed":       "A route was completed",
	"invoice.created":       "An invoice was created",
	"invoice.paid":          "An invoice was paid",
	"invoice.overdue":       "An invoice became overdue",
	"maintenance.scheduled": "A maintenance work order was scheduled",
	"maintenance.completed": "A maintenance work order was completed",
	"document.uploaded":     "A document was uploaded",
	"document.expiring":     "A document is about to expire",
	"document.expired":      "A document expired",
}

// Register adds an event type to the catalog
func (c *Catalog) Register(eventType, description string) error {
	if err := payload.ValidateEventType(eventType); err != nil {
		return fmt.Errorf("registering event type: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[eventType] = description
	return nil
}

// Has reports whether the event type is in the catalog
func (c *Catalog) Has(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.types[eventType]
	return ok
}

// Description returns the description of an event type
func (c *Catalog) Description(eventType string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.types[eventType]
	return d, ok
}

// List returns all registered event types, sorted
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	types := make([]string, 0, len(c.types))
	for eventType := range c.types {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}
