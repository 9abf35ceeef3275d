package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy holds the numeric and structural limits used to judge proposals.
// Keys match the JSON policy documents agents and dashboards exchange.
type Policy struct {
	MaxDailySpendUSDC          float64  `yaml:"maxDailySpendUSDC"          json:"maxDailySpendUSDC"`
	MaxSingleTransferUSDC      float64  `yaml:"maxSingleTransferUSDC"      json:"maxSingleTransferUSDC"`
	AllowlistRecipients        []string `yaml:"allowlistRecipients"        json:"allowlistRecipients"`
	DenylistRecipients         []string `yaml:"denylistRecipients"         json:"denylistRecipients"`
	SwapMaxSlippageBps         float64  `yaml:"swapMaxSlippageBps"         json:"swapMaxSlippageBps"`
	SwapMinLiquidityUSDC       float64  `yaml:"swapMinLiquidityUSDC"       json:"swapMinLiquidityUSDC"`
	DeployRequiresTestsPassing bool     `yaml:"deployRequiresTestsPassing" json:"deployRequiresTestsPassing"`
	APIDenyPIIExfiltration     bool     `yaml:"apiDenyPIIExfiltration"     json:"apiDenyPIIExfiltration"`
}

// Default returns the built-in policy used when no valid file exists.
func Default() Policy {
	return Policy{
		MaxDailySpendUSDC:          50,
		MaxSingleTransferUSDC:      25,
		AllowlistRecipients:        []string{"0xSAFE_ALLOWLIST_1", "0xSAFE_ALLOWLIST_2"},
		DenylistRecipients:         []string{"0xDENY_1", "0xDENY_2"},
		SwapMaxSlippageBps:         50,
		SwapMinLiquidityUSDC:       5000,
		DeployRequiresTestsPassing: true,
		APIDenyPIIExfiltration:     true,
	}
}

// Clone returns a deep copy so snapshots never share list backing arrays.
func (p Policy) Clone() Policy {
	out := p
	out.AllowlistRecipients = append([]string(nil), p.AllowlistRecipients...)
	out.DenylistRecipients = append([]string(nil), p.DenylistRecipients...)
	if out.AllowlistRecipients == nil {
		out.AllowlistRecipients = []string{}
	}
	if out.DenylistRecipients == nil {
		out.DenylistRecipients = []string{}
	}
	return out
}

// ValidationError reports a policy field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid policy: %s %s", e.Field, e.Reason)
}

// Validate checks that every limit is a finite non-negative number.
func (p Policy) Validate() error {
	limits := []struct {
		name  string
		value float64
	}{
		{"maxDailySpendUSDC", p.MaxDailySpendUSDC},
		{"maxSingleTransferUSDC", p.MaxSingleTransferUSDC},
		{"swapMaxSlippageBps", p.SwapMaxSlippageBps},
		{"swapMinLiquidityUSDC", p.SwapMinLiquidityUSDC},
	}
	for _, l := range limits {
		if l.value < 0 || math.IsNaN(l.value) || math.IsInf(l.value, 0) {
			return &ValidationError{Field: l.name, Reason: "must be a finite non-negative number"}
		}
	}
	for _, r := range p.AllowlistRecipients {
		if strings.TrimSpace(r) == "" {
			return &ValidationError{Field: "allowlistRecipients", Reason: "must not contain empty entries"}
		}
	}
	for _, r := range p.DenylistRecipients {
		if strings.TrimSpace(r) == "" {
			return &ValidationError{Field: "denylistRecipients", Reason: "must not contain empty entries"}
		}
	}
	return nil
}

// Parse decodes a policy document (YAML, or JSON as a YAML subset).
// Fields absent from the document keep their default values.
func Parse(data []byte) (Policy, error) {
	p := Default()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p.Clone(), nil
}

// Store reads and writes the policy file.
type Store struct {
	path string
}

// DefaultPath returns ~/.governor/policy.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "policy.yaml"
	}
	return filepath.Join(home, ".governor", "policy.yaml")
}

// NewStore creates a store for path. Empty path uses DefaultPath.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load returns the stored policy. A missing, unreadable, unparseable or
// invalid file yields Default; Load never fails.
func (s *Store) Load() Policy {
	p, _ := s.LoadWithHash()
	return p
}

// LoadWithHash returns the policy and the SHA-256 of the bytes it came from.
// When the defaults are used the hash is that of empty input.
func (s *Store) LoadWithHash() (Policy, string) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Default(), hashBytes(nil)
	}
	p, err := Parse(data)
	if err != nil {
		return Default(), hashBytes(nil)
	}
	return p, hashBytes(data)
}

// Save validates p and writes it atomically. Files ending in .json are
// written as JSON, everything else as YAML.
func (s *Store) Save(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(s.path), ".json") {
		data, err = json.MarshalIndent(p.Clone(), "", "  ")
	} else {
		data, err = yaml.Marshal(p.Clone())
	}
	if err != nil {
		return fmt.Errorf("policy: marshal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("policy: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".policy-*")
	if err != nil {
		return fmt.Errorf("policy: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("policy: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("policy: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("policy: rename: %w", err)
	}
	return nil
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// DefaultPolicyYAML returns a commented policy file for `governor policy init`.
func DefaultPolicyYAML() string {
	return `# governor policy
# Generated by: governor policy init
#
# Rules are evaluated per action type in a fixed order:
#   TRANSFER   maxSingleTransferUSDC (deny), maxDailySpendUSDC (confirm),
#              denylistRecipients (deny), allowlistRecipients (confirm)
#   SWAP       swapMaxSlippageBps (confirm), swapMinLiquidityUSDC (deny)
#   DEPLOY_SIM deployRequiresTestsPassing (deny)
#   API_CALL   apiDenyPIIExfiltration (deny)
#
# Any deny hit forces DENY, otherwise any confirm hit forces
# REQUIRE_CONFIRMATION, otherwise the judge's recommendation stands.

maxDailySpendUSDC: 50
maxSingleTransferUSDC: 25

# An empty allowlist disables the allowlist rule.
allowlistRecipients:
  - 0xSAFE_ALLOWLIST_1
  - 0xSAFE_ALLOWLIST_2
denylistRecipients:
  - 0xDENY_1
  - 0xDENY_2

swapMaxSlippageBps: 50
swapMinLiquidityUSDC: 5000

deployRequiresTestsPassing: true
apiDenyPIIExfiltration: true
`
}
