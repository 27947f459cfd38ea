package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random identifier, "prefix_<32 hex>" or bare hex when
// prefix is empty. IDs compare as plain strings, which breaks position ties.
func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return raw
	}
	return prefix + "_" + raw
}
