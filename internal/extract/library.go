package extract

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"cdpcrawler/internal/domain"
)

// Built-in rule set names
const (
	RulesIOSNeighbors  = "cisco_ios_show_cdp_neighbors_detail"
	RulesNXOSNeighbors = "cisco_nxos_show_cdp_neighbors_detail"
	RulesVersion       = "cisco_ios_show_version"
	RulesInventory     = "cisco_ios_show_inventory"
)

//go:embed rules/*.yaml
var builtinFS embed.FS

// Library holds compiled templates by rule set name
type Library struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewLibrary creates an empty library
func NewLibrary() *Library {
	return &Library{templates: make(map[string]*Template)}
}

// LoadBuiltin compiles every rule set shipped with the binary
func LoadBuiltin() (*Library, error) {
	lib := NewLibrary()

	entries, err := fs.ReadDir(builtinFS, "rules")
	if err != nil {
		return nil, fmt.Errorf("read builtin rules: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := builtinFS.ReadFile(path.Join("rules", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read builtin rule %s: %w", entry.Name(), err)
		}
		tmpl, err := ParseRuleSet(data, entry.Name())
		if err != nil {
			return nil, err
		}
		lib.Add(tmpl)
	}

	return lib, nil
}

// ParseRuleSet decodes a YAML rule set and compiles it. source names the
// origin in error messages.
func ParseRuleSet(data []byte, source string) (*Template, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, &domain.ConfigurationError{Source: source, Reason: "invalid rule set YAML", Err: err}
	}
	return Compile(rs)
}

// LoadFile reads and compiles a rule set from disk
func LoadFile(filePath string) (*Template, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, &domain.ConfigurationError{Source: filePath, Reason: "cannot read rule set", Err: err}
	}
	return ParseRuleSet(data, filePath)
}

// Add registers tmpl, replacing any template with the same name
func (l *Library) Add(tmpl *Template) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.templates[tmpl.Name()] = tmpl
}

// Override loads a rule set file and registers it under name. The file's own
// name field must match, so a typo cannot silently shadow a different table.
func (l *Library) Override(name, filePath string) error {
	tmpl, err := LoadFile(filePath)
	if err != nil {
		return err
	}
	if tmpl.Name() != name {
		return domain.NewConfigurationError(filePath,
			fmt.Sprintf("rule set is named %q, expected %q", tmpl.Name(), name))
	}
	l.Add(tmpl)
	return nil
}

// Get returns the template registered under name
func (l *Library) Get(name string) (*Template, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.templates[name]
	return t, ok
}

// Names returns the registered rule set names, sorted
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.templates))
	for name := range l.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Require returns an error unless every named rule set is registered
func (l *Library) Require(names ...string) error {
	for _, name := range names {
		if _, ok := l.Get(name); !ok {
			return domain.NewConfigurationError("rule library", fmt.Sprintf("rule set %q is not loaded", name))
		}
	}
	return nil
}
