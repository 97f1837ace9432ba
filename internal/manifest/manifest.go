// Package manifest defines the deployment record produced by an upgrade run.
//
// The field set is consumed by downstream tooling and only ever grows.
package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/facetctl/internal/abi"
	"github.com/R3E-Network/facetctl/internal/diamond"
)

// DeploymentManifest is the final report of an orchestration run.
type DeploymentManifest struct {
	ProxyAddress     abi.Address            `json:"proxyAddress" yaml:"proxyAddress"`
	Modules          map[string]abi.Address `json:"modules" yaml:"modules"`
	Deployer         abi.Address            `json:"deployer" yaml:"deployer"`
	TimestampUTC     time.Time              `json:"timestampUTC" yaml:"timestampUTC"`
	FacetAddressList []abi.Address          `json:"facetAddressList" yaml:"facetAddressList"`

	RunID    string             `json:"runId" yaml:"runId"`
	Network  string             `json:"network,omitempty" yaml:"network,omitempty"`
	Action   diamond.Action     `json:"action" yaml:"action"`
	Cut      []diamond.CutEntry `json:"cut" yaml:"cut"`
	Warnings []string           `json:"warnings" yaml:"warnings"`
	Steps    []StepRecord       `json:"steps" yaml:"steps"`
	Smoke    []SmokeRecord      `json:"smoke,omitempty" yaml:"smoke,omitempty"`
}

// StepRecord is the outcome of one orchestrator step.
type StepRecord struct {
	Step       string `json:"step" yaml:"step"`
	Status     string `json:"status" yaml:"status"`
	Reason     string `json:"reason,omitempty" yaml:"reason,omitempty"`
	DurationMS int64  `json:"durationMs" yaml:"durationMs"`
}

// SmokeRecord is one sampled read-only call made during verification.
type SmokeRecord struct {
	Module   string   `json:"module" yaml:"module"`
	Label    string   `json:"label,omitempty" yaml:"label,omitempty"`
	Function string   `json:"function" yaml:"function"`
	Raw      string   `json:"raw,omitempty" yaml:"raw,omitempty"`
	Values   []string `json:"values,omitempty" yaml:"values,omitempty"`
	Error    string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Format is a manifest serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown manifest format %q", s)
	}
}

// FormatForPath picks YAML for .yaml/.yml files and JSON otherwise.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Validate checks the fields downstream tooling depends on.
func (m *DeploymentManifest) Validate() error {
	var errs []string
	if m.ProxyAddress.IsZero() {
		errs = append(errs, "proxyAddress is zero")
	}
	if m.RunID == "" {
		errs = append(errs, "runId is empty")
	}
	if m.TimestampUTC.IsZero() {
		errs = append(errs, "timestampUTC is unset")
	}
	for name, addr := range m.Modules {
		if addr.IsZero() {
			errs = append(errs, fmt.Sprintf("module %q has zero address", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("manifest validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// HasWarnings reports whether the run completed with warnings.
func (m *DeploymentManifest) HasWarnings() bool { return len(m.Warnings) > 0 }

// Encode writes m to w in the given format.
func (m *DeploymentManifest) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("encode YAML: %w", err)
		}
		return enc.Close()
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("encode JSON: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown manifest format %q", format)
	}
}

// Save writes m to path, creating parent directories.
func (m *DeploymentManifest) Save(path string, format Format) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create manifest directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	if err := m.Encode(f, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load loads a manifest from a file.
func Load(path string) (*DeploymentManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data, path)
}

// Parse parses manifest data, choosing the decoder from filename.
func Parse(data []byte, filename string) (*DeploymentManifest, error) {
	var m DeploymentManifest

	if FormatForPath(filename) == FormatYAML {
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	} else if err := json.Unmarshal(data, &m); err != nil {
		if yerr := yaml.Unmarshal(data, &m); yerr != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
	}

	return &m, nil
}
