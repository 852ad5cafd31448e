// Package entitytemplate generates the managed-boolean-entity template
// file an operator installs into the host configuration.
//
// Collector is an explicit, per-session value with no global state,
// owned by cmd/shaded's main and drained once at startup, rather than a
// process-wide singleton accumulator.
package entitytemplate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Boolean is one managed boolean entity to declare.
type Boolean struct {
	EntityID     string
	FriendlyName string
	Icon         string
}

// Collector accumulates managed boolean entities across every controller
// in one process run and renders them into a single template block.
type Collector struct {
	booleans map[string]Boolean
}

// New returns an empty, session-scoped Collector.
func New() *Collector {
	return &Collector{booleans: make(map[string]Boolean)}
}

// AddBoolean registers one managed boolean entity. Calling it twice for
// the same entity ID overwrites the earlier registration.
func (c *Collector) AddBoolean(entityID, friendlyName, icon string) {
	c.booleans[entityID] = Boolean{EntityID: entityID, FriendlyName: friendlyName, Icon: icon}
}

// Render produces the declaration block for every registered boolean, in
// alphabetical entity-ID order for a stable diff.
func (c *Collector) Render() string {
	if len(c.booleans) == 0 {
		return "# No input_booleans configured\n"
	}

	ids := make([]string, 0, len(c.booleans))
	for id := range c.booleans {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		boolean := c.booleans[id]
		fmt.Fprintf(&b, "  %s:\n", id)
		fmt.Fprintf(&b, "    name: %s\n", boolean.FriendlyName)
		if boolean.Icon != "" {
			fmt.Fprintf(&b, "    icon: %s\n", boolean.Icon)
		}
	}
	return b.String()
}

// WriteTo writes the rendered template to entities.config inside
// directoryPath. Per the concurrency model's "shared resources"
// requirement, multiple controllers sharing one host directory must each
// write only their own block: WriteTo appends rather than truncating, and
// is intended to be called exactly once per process run after every
// controller has registered its booleans, not once per controller.
func (c *Collector) WriteTo(directoryPath string) (string, error) {
	if err := os.MkdirAll(directoryPath, 0755); err != nil {
		return "", fmt.Errorf("entitytemplate: create directory failed: %w", err)
	}

	path := filepath.Join(directoryPath, "entities.config")

	content := c.Render()
	flags := os.O_APPEND | os.O_CREATE | os.O_WRONLY
	if _, err := os.Stat(path); os.IsNotExist(err) {
		content = "input_boolean:\n" + content
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return "", fmt.Errorf("entitytemplate: open failed: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(content); err != nil {
		return "", fmt.Errorf("entitytemplate: write failed: %w", err)
	}

	return path, nil
}

// BooleansFor returns the three (or five, with solar heating) managed
// boolean entities for a device.
func BooleansFor(uniqueID, kind string, solarHeating bool) []Boolean {
	out := []Boolean{
		{EntityID: fmt.Sprintf("input_boolean.%s_%s_locked", uniqueID, kind), FriendlyName: fmt.Sprintf("%s manual lock", uniqueID)},
		{EntityID: fmt.Sprintf("input_boolean.%s_%s_locked_external", uniqueID, kind), FriendlyName: fmt.Sprintf("%s external lock", uniqueID)},
		{EntityID: fmt.Sprintf("input_boolean.%s_manipulation_active", uniqueID), FriendlyName: fmt.Sprintf("%s manipulation active", uniqueID)},
	}
	if solarHeating {
		out = append(out,
			Boolean{EntityID: fmt.Sprintf("input_boolean.%s_solar_heating_active", uniqueID), FriendlyName: fmt.Sprintf("%s solar heating active", uniqueID)},
			Boolean{EntityID: fmt.Sprintf("input_boolean.%s_solar_heating_status", uniqueID), FriendlyName: fmt.Sprintf("%s solar heating status", uniqueID)},
		)
	}
	return out
}
