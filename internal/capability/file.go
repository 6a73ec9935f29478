package capability

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk layout of a catalog definition.
type catalogFile struct {
	Agents []AgentSpec `yaml:"agents"`
}

// LoadFile reads a YAML catalog and registers every agent in file order.
// When signingSecret is set every spec must carry a valid signature.
func LoadFile(path, signingSecret string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data, signingSecret)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte, signingSecret string) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Agents) == 0 {
		return nil, fmt.Errorf("catalog defines no agents")
	}
	cat := NewCatalog()
	for _, spec := range f.Agents {
		if err := validateSignature(spec, signingSecret); err != nil {
			return nil, fmt.Errorf("agent %s signature invalid: %w", spec.Name, err)
		}
		if err := cat.Register(spec); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

// ComputeChecksum returns a deterministic hash of the spec payload (excluding signature).
func ComputeChecksum(spec AgentSpec) (string, error) {
	payload := map[string]interface{}{
		"name":            spec.Name,
		"purpose":         spec.Purpose,
		"input_contract":  spec.InputContract,
		"output_contract": spec.OutputContract,
	}
	normalized, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:]), nil
}

// SignSpec computes an HMAC signature using the signing secret.
func SignSpec(spec AgentSpec, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing secret is empty")
	}
	checksum, err := ComputeChecksum(spec)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(checksum))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func validateSignature(spec AgentSpec, secret string) error {
	if secret == "" {
		return nil
	}
	expected, err := SignSpec(spec, secret)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(spec.Signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
