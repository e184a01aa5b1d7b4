package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Fingerprint identifies the inputs of a run. Two runs with the same
// CompositeHash read the same expression data, reference and parameters.
type Fingerprint struct {
	// InputHash is the SHA-256 of the expression file.
	InputHash string `json:"input_hash"`
	// ParameterHashes are sorted hashes of the key=value settings that
	// change the output.
	ParameterHashes []string `json:"parameter_hashes,omitempty"`
	CompositeHash   string   `json:"composite_hash"`
}

// HashFile computes the SHA-256 of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeFingerprint combines an input hash with the run settings.
func ComputeFingerprint(inputHash string, settings map[string]string) *Fingerprint {
	fp := &Fingerprint{InputHash: inputHash}
	for k, v := range settings {
		fp.ParameterHashes = append(fp.ParameterHashes, hashString(k+"="+v))
	}
	sort.Strings(fp.ParameterHashes)
	fp.CompositeHash = computeComposite(fp.InputHash, fp.ParameterHashes)
	return fp
}

// Same reports whether two fingerprints describe identical inputs.
func (fp *Fingerprint) Same(other *Fingerprint) bool {
	return fp != nil && other != nil && fp.CompositeHash != "" && fp.CompositeHash == other.CompositeHash
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func computeComposite(inputHash string, paramHashes []string) string {
	parts := make([]string, 0, 1+len(paramHashes))
	parts = append(parts, inputHash)
	parts = append(parts, paramHashes...)
	return hashString(strings.Join(parts, "|"))
}
