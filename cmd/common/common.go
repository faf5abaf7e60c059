// Package common provides shared utilities for veilpost CLI commands.
//
// This package contains helper functions used across the service binaries
// to reduce code duplication:
//
//   - Key loading and generation for Ed25519 signing and P-256 recipient keys
//   - Protocol configuration loading from YAML files
package common

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/veilpost/veilpost/crypto"
	"github.com/veilpost/veilpost/protocol"
)

// LoadOrGenerateSigningKey loads an Ed25519 private key from a hex string,
// or generates a new key pair if hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return crypto.NewPrivateKeyFromBytes(keyBytes), nil
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// LoadOrGenerateRecipientKey loads a P-256 private key from a hex string,
// or generates a new key if hexKey is empty. The corresponding public key is
// the one report payloads are encrypted to.
func LoadOrGenerateRecipientKey(hexKey string) (*ecdh.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return ecdh.P256().NewPrivateKey(keyBytes)
	}
	return ecdh.P256().GenerateKey(rand.Reader)
}

// ParseRecipientPublicKey parses a hex-encoded uncompressed P-256 public key.
func ParseRecipientPublicKey(hexKey string) ([]byte, error) {
	keyBytes, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	if _, err := crypto.ParseRecipientKey(keyBytes); err != nil {
		return nil, err
	}
	return keyBytes, nil
}

// LoadConfig reads a protocol config from a YAML file, or returns the
// defaults if path is empty.
func LoadConfig(path string) (*protocol.Config, error) {
	cfg := protocol.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
