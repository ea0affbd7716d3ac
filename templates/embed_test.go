package templates

import (
	"io/fs"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoCTemplatesNamed(t *testing.T) {
	names, err := fs.Glob(FS, "poc/*.tmpl")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			out := strings.TrimSuffix(path.Base(name), ".tmpl")
			assert.NotEmpty(t, path.Ext(out), "output name %q needs an extension", out)

			data, err := FS.ReadFile(name)
			require.NoError(t, err)
			assert.Contains(t, string(data), "{{")
		})
	}
}
