// pkg/registry/registry.go
package registry

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Approved is the set of organization names eligible for enqueuing.
// Names match exactly.
type Approved struct {
	names map[string]struct{}
}

// NewApproved builds a set from names, ignoring blanks.
func NewApproved(names ...string) *Approved {
	a := &Approved{names: make(map[string]struct{}, len(names))}
	a.Add(names...)
	return a
}

func (a *Approved) Add(names ...string) {
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			a.names[n] = struct{}{}
		}
	}
}

func (a *Approved) Contains(name string) bool {
	_, ok := a.names[name]
	return ok
}

func (a *Approved) Len() int {
	return len(a.names)
}

// Names returns the names in sorted order.
func (a *Approved) Names() []string {
	out := make([]string, 0, len(a.names))
	for n := range a.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// LoadApproved reads an approved-organizations file. A .json file holds
// either an array of names or an OrganizationRegistry document; any other
// file holds one name per line with # comments.
func LoadApproved(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return parseJSON(data)
	}
	return parseLines(data)
}

func parseJSON(data []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var names []string
		if err := json.Unmarshal(trimmed, &names); err != nil {
			return nil, fmt.Errorf("parse organization list: %w", err)
		}
		return names, nil
	}

	var reg OrganizationRegistry
	if err := json.Unmarshal(trimmed, &reg); err != nil {
		return nil, fmt.Errorf("parse organization registry: %w", err)
	}
	return reg.Organizations, nil
}

func parseLines(data []byte) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read organization list: %w", err)
	}
	return names, nil
}
