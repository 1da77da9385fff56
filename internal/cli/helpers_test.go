package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/askiada/go-looprelax/internal/cli"
	"github.com/askiada/go-looprelax/internal/fixture"
	"github.com/askiada/go-looprelax/internal/modelio"
)

const (
	regionsDoc   = "regions:\n  - {start: 4, stop: 8, cut: 6}\n"
	fragmentsDoc = "fragments:\n  - {name: frag9, length: 9, count: 200}\n  - {name: frag3, length: 3, count: 200}\n"
)

type result struct {
	code int
	out  string
	err  string
}

func execute(t *testing.T, args ...string) result {
	t.Helper()

	var out, errOut bytes.Buffer
	code := cli.NewApp(&out, &errOut).Run(context.Background(), args)

	return result{code: code, out: out.String(), err: errOut.String()}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

// workspace writes a 12 unit model, its regions and fragments to a temp dir.
func workspace(t *testing.T) (dir, modelPath, regionsPath, fragmentsPath string) {
	t.Helper()

	dir = t.TempDir()
	modelPath = filepath.Join(dir, "helix.yaml")
	require.NoError(t, modelio.WritePose(modelPath, fixture.Helix(12), nil))

	return dir, modelPath, writeFile(t, dir, "regions.yaml", regionsDoc), writeFile(t, dir, "fragments.yaml", fragmentsDoc)
}
