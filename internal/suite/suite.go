// Package suite loads persona suite definitions: the agent graph handed to
// the realtime transport at connect time.
//
// Suites are YAML files in a directory, one per suite id. An unknown or
// empty suite id falls back to the legacy single-agent definition so a
// connection never fails for lack of a persona graph.
package suite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
)

// Agent is one persona node in a suite graph.
type Agent struct {
	Name         string   `yaml:"name" json:"name"`
	Instructions string   `yaml:"instructions" json:"instructions"`
	Handoffs     []string `yaml:"handoffs" json:"handoffs,omitempty"`
}

// Graph is the persona graph for one suite.
type Graph struct {
	ID     string  `yaml:"id" json:"id"`
	Name   string  `yaml:"name" json:"name"`
	Entry  string  `yaml:"entry" json:"entry"`
	Agents []Agent `yaml:"agents" json:"agents"`
}

// legacyGraph is the single-agent fallback used when no suite matches.
var legacyGraph = Graph{
	ID:    "legacy",
	Name:  "Assistant",
	Entry: "assistant",
	Agents: []Agent{
		{
			Name:         "assistant",
			Instructions: "You are a focused productivity assistant. Help the user plan, write, and stay on task.",
		},
	},
}

// Catalog holds the loaded suite graphs.
type Catalog struct {
	mu     sync.RWMutex
	graphs map[string]Graph
}

// NewCatalog creates an empty catalog that always resolves the legacy graph.
func NewCatalog() *Catalog {
	return &Catalog{graphs: make(map[string]Graph)}
}

// LoadDir reads every *.yaml/*.yml file in dir into the catalog. A missing
// directory is not an error; connect simply falls back to the legacy agent.
func (c *Catalog) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read suites dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read suite %s: %w", entry.Name(), err)
		}

		var graph Graph
		if err := yaml.Unmarshal(data, &graph); err != nil {
			return fmt.Errorf("failed to parse suite %s: %w", entry.Name(), err)
		}
		if graph.ID == "" {
			graph.ID = strings.TrimSuffix(entry.Name(), ext)
		}
		if graph.Entry == "" && len(graph.Agents) > 0 {
			graph.Entry = graph.Agents[0].Name
		}

		c.mu.Lock()
		c.graphs[graph.ID] = graph
		c.mu.Unlock()
	}
	return nil
}

// Graph resolves a suite id, falling back to the legacy single agent.
func (c *Catalog) Graph(suiteID string) Graph {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if g, ok := c.graphs[suiteID]; ok {
		return g
	}
	return legacyGraph
}

// IDs lists the loaded suite ids.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.graphs))
	for id := range c.graphs {
		ids = append(ids, id)
	}
	return ids
}
