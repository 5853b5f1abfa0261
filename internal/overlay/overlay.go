// Package overlay materializes concrete subject configurations: a variant's
// base configuration (inline or file-referenced) with its dotted-path
// overrides applied, persisted as one YAML artifact per (variant, provider)
// pair.
package overlay

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crucible-bench/crucible/internal/definition"
)

// ConfigError reports a missing or unparsable variant configuration. It skips
// that variant/provider pair only; sibling pairs keep running.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("variant config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Load parses a configuration document into its node tree. The tree keeps
// key order, so re-marshaling an unmodified tree is byte-stable.
func Load(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return unwrap(&doc), nil
}

// unwrap strips a document node down to its content mapping.
func unwrap(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		return n.Content[0]
	}
	return n
}

func newMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func keyNode(key string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
}

// mappingIndex returns the position of key's value node, or -1.
func mappingIndex(m *yaml.Node, key string) int {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return i + 1
		}
	}
	return -1
}

// SetPath assigns value at a dotted path, creating intermediate mappings for
// missing segments. A non-mapping node found mid-path is overwritten by a
// fresh mapping, consistent with leaf overwrite semantics.
func SetPath(root *yaml.Node, path string, value *yaml.Node) {
	cur := unwrap(root)
	if cur.Kind == 0 {
		cur.Kind = yaml.MappingNode
		cur.Tag = "!!map"
	}
	segments := strings.Split(path, ".")
	for _, seg := range segments[:len(segments)-1] {
		idx := mappingIndex(cur, seg)
		if idx < 0 {
			next := newMapping()
			cur.Content = append(cur.Content, keyNode(seg), next)
			cur = next
			continue
		}
		if cur.Content[idx].Kind != yaml.MappingNode {
			cur.Content[idx] = newMapping()
		}
		cur = cur.Content[idx]
	}
	leaf := segments[len(segments)-1]
	if idx := mappingIndex(cur, leaf); idx >= 0 {
		cur.Content[idx] = value
		return
	}
	cur.Content = append(cur.Content, keyNode(leaf), value)
}

// GetPath resolves a dotted path through mapping nodes.
func GetPath(root *yaml.Node, path string) (*yaml.Node, bool) {
	cur := unwrap(root)
	for _, seg := range strings.Split(path, ".") {
		if cur.Kind != yaml.MappingNode {
			return nil, false
		}
		idx := mappingIndex(cur, seg)
		if idx < 0 {
			return nil, false
		}
		cur = cur.Content[idx]
	}
	return cur, true
}

// Clone deep-copies a node tree so overrides for one provider never leak into
// the variant's shared inline configuration.
func Clone(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	out := *n
	out.Content = make([]*yaml.Node, len(n.Content))
	for i, c := range n.Content {
		out.Content[i] = Clone(c)
	}
	return &out
}

// FirstAgent returns the first key of the configuration's top-level `agents`
// mapping, the agent a bare `call` is addressed to. Falls back to
// "test_agent" when the config declares none.
func FirstAgent(root *yaml.Node) string {
	if agents, ok := GetPath(root, "agents"); ok {
		if agents.Kind == yaml.MappingNode && len(agents.Content) > 0 {
			return agents.Content[0].Value
		}
	}
	return "test_agent"
}

// Materialize produces and persists the concrete configuration for one
// (variant, provider) pair. Repeated calls for the same pair overwrite the
// prior artifact and yield byte-identical output for identical inputs. The
// artifact is left in place after the run for post-hoc inspection.
func Materialize(v *definition.Variant, provider, dir string) (string, error) {
	var root *yaml.Node
	if inline, ok := v.Inline(); ok {
		root = Clone(inline)
	} else {
		path, _ := v.ConfigFile()
		loaded, err := Load(path)
		if err != nil {
			return "", err
		}
		root = loaded
	}

	for _, o := range v.OverrideList() {
		SetPath(root, o.Path, Clone(o.Value))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	out, err := yaml.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("encoding config for variant %q: %w", v.Name, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.yaml", v.Name, provider))
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return "", fmt.Errorf("writing config for variant %q: %w", v.Name, err)
	}
	return path, nil
}
