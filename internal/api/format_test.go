package api

import (
	"go/format"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSourcesAreGofmted keeps the service packages in canonical gofmt layout.
func TestSourcesAreGofmted(t *testing.T) {
	for _, root := range []string{"..", filepath.Join("..", "..", "cmd")} {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".go") {
				return nil
			}
			src, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			got, err := format.Source(src)
			if !assert.NoError(t, err, path) {
				return nil
			}
			assert.Equal(t, string(got), string(src), "%s is not gofmt-formatted", path)
			return nil
		})
		require.NoError(t, err)
	}
}
