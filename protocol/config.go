package protocol

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Proof envelope identifiers. Verifiers reject envelopes whose tags differ.
const (
	ProofProtocolGroth16 = "groth16"
	ProofCurveBN254      = "bn254"
)

// DefaultEpochDuration partitions time into 24h submission windows.
const DefaultEpochDuration = 24 * time.Hour

// Config provides configuration parameters for protocol components.
type Config struct {
	// EpochDuration is the length of a submission window. One submission per
	// identity per window.
	EpochDuration time.Duration `json:"epoch_duration,string" yaml:"epoch_duration"`

	// ProofProtocol is the expected proving-system tag in proof envelopes.
	ProofProtocol string `json:"proof_protocol" yaml:"proof_protocol"`

	// ProofCurve is the expected curve tag in proof envelopes.
	ProofCurve string `json:"proof_curve" yaml:"proof_curve"`

	// MinMembers is the minimum group size before submissions are accepted,
	// so a tiny group cannot be used to deanonymize a submitter.
	MinMembers uint32 `json:"min_members" yaml:"min_members"`

	// RetainedEpochs is how many past epochs of nullifiers are kept before
	// garbage collection.
	RetainedEpochs uint32 `json:"retained_epochs" yaml:"retained_epochs"`
}

// UnmarshalYAML accepts durations in Go syntax ("24h") in config files.
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig struct {
		EpochDuration  string `yaml:"epoch_duration"`
		ProofProtocol  string `yaml:"proof_protocol"`
		ProofCurve     string `yaml:"proof_curve"`
		MinMembers     uint32 `yaml:"min_members"`
		RetainedEpochs uint32 `yaml:"retained_epochs"`
	}

	var raw rawConfig
	if err := node.Decode(&raw); err != nil {
		return err
	}

	if raw.EpochDuration != "" {
		d, err := time.ParseDuration(raw.EpochDuration)
		if err != nil {
			return fmt.Errorf("invalid epoch_duration: %w", err)
		}
		if d < time.Second {
			return fmt.Errorf("epoch_duration %s is below the 1s minimum", d)
		}
		c.EpochDuration = d
	}
	if raw.ProofProtocol != "" {
		c.ProofProtocol = raw.ProofProtocol
	}
	if raw.ProofCurve != "" {
		c.ProofCurve = raw.ProofCurve
	}
	if raw.MinMembers != 0 {
		c.MinMembers = raw.MinMembers
	}
	if raw.RetainedEpochs != 0 {
		c.RetainedEpochs = raw.RetainedEpochs
	}
	return nil
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		EpochDuration:  DefaultEpochDuration,
		ProofProtocol:  ProofProtocolGroth16,
		ProofCurve:     ProofCurveBN254,
		MinMembers:     2,
		RetainedEpochs: 2,
	}
}
