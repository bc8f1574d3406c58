package workload

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/wasmkeep/wasmkeep/internal/descriptors"
)

const (
	ModuleFileName = "module.wasm"
	ConfigFileName = "config.json"
)

// manifest is the on-disk shape of config.json: plain JSON, no env
// expansion or templating, matching the teacher's config persistence
// format.
type manifest struct {
	Steward string              `json:"steward,omitempty"`
	Args    []string            `json:"args,omitempty"`
	Env     []descriptors.EnvVar `json:"env,omitempty"`
	Files   []manifestSlot      `json:"files,omitempty"`
}

type manifestSlot struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Addr string `json:"addr,omitempty"`
	TLS  bool   `json:"tls,omitempty"`
}

// DefaultManifest returns the manifest used when a workload directory
// carries no config.json: stdio only, no network slots, no steward.
func DefaultManifest() manifest {
	return manifest{
		Files: []manifestSlot{
			{Name: "stdin", Kind: "stdin"},
			{Name: "stdout", Kind: "stdout"},
			{Name: "stderr", Kind: "stderr"},
		},
	}
}

// Load reads module.wasm and config.json from dir and assembles a
// Package. A missing config.json falls back to DefaultManifest; a
// missing module.wasm is fatal.
func Load(dir string) (Package, error) {
	moduleBytes, err := os.ReadFile(filepath.Join(dir, ModuleFileName))
	if err != nil {
		return Package{}, fmt.Errorf("workload: read %s: %w", ModuleFileName, err)
	}

	m, err := loadManifest(dir)
	if err != nil {
		return Package{}, err
	}

	cfg, err := toConfig(m)
	if err != nil {
		return Package{}, err
	}

	return Package{ModuleBytes: moduleBytes, Config: cfg}, nil
}

func loadManifest(dir string) (manifest, error) {
	path := filepath.Join(dir, ConfigFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultManifest(), nil
	}
	if err != nil {
		return manifest{}, fmt.Errorf("workload: read %s: %w", ConfigFileName, err)
	}

	m := DefaultManifest()
	if err := json.Unmarshal(data, &m); err != nil {
		return manifest{}, fmt.Errorf("workload: parse %s: %w", ConfigFileName, err)
	}
	return m, nil
}

func toConfig(m manifest) (descriptors.Config, error) {
	cfg := descriptors.Config{
		Args: m.Args,
		Env:  m.Env,
	}

	if m.Steward != "" {
		stewardURL, err := url.Parse(m.Steward)
		if err != nil {
			return descriptors.Config{}, fmt.Errorf("workload: parse steward url: %w", err)
		}
		cfg.Steward = stewardURL
	}

	for _, s := range m.Files {
		kind, err := parseKind(s.Kind)
		if err != nil {
			return descriptors.Config{}, fmt.Errorf("workload: slot %q: %w", s.Name, err)
		}
		cfg.Files = append(cfg.Files, descriptors.Slot{
			Name: s.Name,
			Kind: kind,
			Addr: s.Addr,
			TLS:  s.TLS,
		})
	}

	return cfg, nil
}

func parseKind(s string) (descriptors.Kind, error) {
	switch s {
	case "null":
		return descriptors.KindNull, nil
	case "stdin":
		return descriptors.KindStdin, nil
	case "stdout":
		return descriptors.KindStdout, nil
	case "stderr":
		return descriptors.KindStderr, nil
	case "listen":
		return descriptors.KindListen, nil
	case "connect":
		return descriptors.KindConnect, nil
	default:
		return 0, fmt.Errorf("unknown slot kind %q", s)
	}
}
