package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

const serversKey = "mcpServers"

// hostConfig is a host client's JSON configuration. Unknown keys are kept
// as they were.
type hostConfig map[string]any

// serverEntry is one MCP server registration inside mcpServers.
type serverEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

func readHostConfig(path string) (hostConfig, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return hostConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read host config: %w", err)
	}
	if len(raw) == 0 {
		return hostConfig{}, nil
	}
	doc := hostConfig{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse host config %s: %w", path, err)
	}
	return doc, nil
}

func writeHostConfig(path string, doc hostConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create host config directory: %w", err)
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode host config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(raw, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write host config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace host config: %w", err)
	}
	return nil
}

func (d hostConfig) servers() map[string]any {
	servers, ok := d[serversKey].(map[string]any)
	if !ok {
		servers = map[string]any{}
		d[serversKey] = servers
	}
	return servers
}

func (d hostConfig) has(key string) bool {
	_, ok := d.servers()[key]
	return ok
}

// entryEnv returns the env block of a registered server. Non-string values
// are rendered as text.
func (d hostConfig) entryEnv(key string) map[string]string {
	entry, ok := d.servers()[key].(map[string]any)
	if !ok {
		return map[string]string{}
	}
	raw, ok := entry["env"].(map[string]any)
	if !ok {
		return map[string]string{}
	}
	env := make(map[string]string, len(raw))
	for k, v := range raw {
		env[k] = stringify(v)
	}
	return env
}

func (d hostConfig) set(key string, entry serverEntry) {
	value := map[string]any{
		"command": entry.Command,
		"args":    entry.Args,
	}
	if len(entry.Env) > 0 {
		env := make(map[string]any, len(entry.Env))
		for k, v := range entry.Env {
			env[k] = v
		}
		value["env"] = env
	}
	d.servers()[key] = value
}

func (d hostConfig) remove(key string) bool {
	servers := d.servers()
	if _, ok := servers[key]; !ok {
		return false
	}
	delete(servers, key)
	return true
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	}
}
