// Package registry holds the in-memory tree of test suites the daemon
// re-dispatches. The tree is loaded once from a suite manifest at startup
// and is read-only afterwards, except for an explicit reset of transient
// run-state between runs.
package registry

import (
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"
)

// SuiteNode is a node in the suite tree. SourceFile is optional; a node
// without one is attributed to the nearest ancestor's file during
// traversal. The resolution is top-down only, never looked up from
// descendants, and no parent pointers are stored.
type SuiteNode struct {
	Title      string
	SourceFile string
	Children   []*SuiteNode

	// Transient per-run state. Cleared by ResetTransientState between
	// runs; Title, SourceFile and Children always survive.
	Pending  bool
	TimedOut bool
	Errors   int
	Retries  int
	hooks    []Hook
}

// Hook is a lifecycle callback attached to a suite for the duration of a
// single run.
type Hook func() error

// AddHook registers a lifecycle hook on the node for the current run.
func (n *SuiteNode) AddHook(h Hook) {
	n.hooks = append(n.hooks, h)
}

// Hooks returns the node's registered lifecycle hooks.
func (n *SuiteNode) Hooks() []Hook {
	return n.hooks
}

// Registry manages the loaded suite tree.
type Registry struct {
	config Config

	mu   sync.RWMutex
	root *SuiteNode
}

// Config contains registry configuration.
type Config struct {
	Log           log.Logger
	SuiteManifest string
}

// manifestNode mirrors one suite entry in the YAML manifest.
type manifestNode struct {
	Title  string         `yaml:"title"`
	File   string         `yaml:"file,omitempty"`
	Suites []manifestNode `yaml:"suites,omitempty"`
}

type manifest struct {
	Suites []manifestNode `yaml:"suites"`
}

// NewRegistry loads the suite manifest and builds the tree.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.SuiteManifest == "" {
		return nil, fmt.Errorf("suite manifest file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}

	r := &Registry{config: cfg}
	if err := r.loadManifest(cfg.SuiteManifest); err != nil {
		return nil, fmt.Errorf("failed to load suite manifest: %w", err)
	}

	cfg.Log.Debug("Registry loaded", "topLevelSuites", len(r.root.Children))
	return r, nil
}

func (r *Registry) loadManifest(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading manifest file: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parsing manifest file: %w", err)
	}
	if len(m.Suites) == 0 {
		return fmt.Errorf("manifest %s defines no suites", path)
	}

	root := &SuiteNode{}
	for i := range m.Suites {
		child, err := buildNode(&m.Suites[i])
		if err != nil {
			return err
		}
		root.Children = append(root.Children, child)
	}
	r.root = root
	return nil
}

func buildNode(mn *manifestNode) (*SuiteNode, error) {
	if mn.Title == "" {
		return nil, fmt.Errorf("manifest suite with file %q is missing a title", mn.File)
	}
	node := &SuiteNode{
		Title:      mn.Title,
		SourceFile: mn.File,
	}
	for i := range mn.Suites {
		child, err := buildNode(&mn.Suites[i])
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

// Root returns the synthetic root of the tree. The root has no title.
func (r *Registry) Root() *SuiteNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.root
}

// TopLevelCount returns the number of top-level suites.
func (r *Registry) TopLevelCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.root.Children)
}

// ResetTransientState clears pending/timed-out/error/retry state and all
// lifecycle hooks on every node so a suite that ran before can run again
// cleanly. Tree structure and SourceFile tags are untouched.
func (r *Registry) ResetTransientState() {
	r.mu.Lock()
	defer r.mu.Unlock()
	resetNode(r.root)
}

func resetNode(n *SuiteNode) {
	n.Pending = false
	n.TimedOut = false
	n.Errors = 0
	n.Retries = 0
	n.hooks = nil
	for _, c := range n.Children {
		resetNode(c)
	}
}

// GetConfig returns the registry configuration.
func (r *Registry) GetConfig() Config {
	return r.config
}
