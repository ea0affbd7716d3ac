package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/scanforge/pkg/defaults"
)

func TestRegistry_AllNamesUnique(t *testing.T) {
	r := Registry()
	assert.Equal(t, []string{"bandit", "nuclei", "semgrep", "trivy", "trivy-image"}, r.Names())
}

// Every adapter must appear in the dedup priority order, otherwise its
// findings could never win a canonical election deterministically.
func TestRegistry_CoveredByDedupPriority(t *testing.T) {
	for _, a := range Adapters() {
		require.Contains(t, defaults.DedupScannerPriority, a.Name())
	}
}
