package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/danieljhkim/worldsync/internal/hash"
)

// Digest returns one digest covering the names and contents of members.
// Two copies of a world have the same digest only if every file matches.
func Digest(hasher hash.Hasher, members []string) (string, error) {
	if err := checkCount(members); err != nil {
		return "", err
	}

	h := sha256.New()
	for _, m := range members {
		sum, err := hasher.HashFile(m)
		if err != nil {
			return "", fmt.Errorf("failed to hash %s: %w", m, err)
		}
		fmt.Fprintf(h, "%s %s\n", filepath.Base(m), sum)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
