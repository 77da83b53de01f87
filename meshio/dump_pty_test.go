package meshio

/*------------------------------------------------------------------
 *
 * Purpose:	Verifies meshfile-dump's textual report is stable whether
 *		its stdout is a pipe or a terminal, since some formatting
 *		libraries change behaviour (color, width) when attached to
 *		a tty. A creack/pty session hosts the process exactly as an
 *		interactive shell would.
 *
 *------------------------------------------------------------------*/

import (
	"bufio"
	"io"
	"os/exec"
	"strings"
	"testing"

	"github.com/creack/pty"
	"github.com/stretchr/testify/require"
)

func TestMeshfileDumpReportIsStableUnderPty(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/round-trip.wav"

	b := makeTestBundle(10, 16, FormatPCM)
	require.NoError(t, WriteStemBundleFile(path, b))

	pipeOutput := runMeshfileDump(t, path, false)
	ttyOutput := runMeshfileDump(t, path, true)

	require.Equal(t, pipeOutput, ttyOutput)
	require.Contains(t, pipeOutput, "frames: 10")
	require.Contains(t, pipeOutput, "bpm: 128.00")
}

func runMeshfileDump(t *testing.T, bundlePath string, underTTY bool) string {
	t.Helper()
	cmd := exec.Command("go", "run", "mesh/cmd/meshfile-dump", bundlePath)

	if !underTTY {
		out, err := cmd.Output()
		require.NoError(t, err)
		return normalizeLineEndings(string(out))
	}

	f, err := pty.Start(cmd)
	require.NoError(t, err)
	defer f.Close()

	out, err := io.ReadAll(bufio.NewReader(f))
	if err != nil && err != io.EOF {
		t.Fatalf("reading pty output: %v", err)
	}
	require.NoError(t, cmd.Wait())
	return normalizeLineEndings(string(out))
}

// normalizeLineEndings strips the \r a pty adds to every \n, so the two
// output-mode captures compare equal on content alone.
func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
