package gcode

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, src Source) []string {
	r, err := src.Open()
	require.NoError(t, err)
	defer r.Close()

	var lines []string
	for {
		l, err := r.ReadLine()
		if err == io.EOF {
			return lines
		}
		require.NoError(t, err)
		lines = append(lines, l)
	}
}

func TestStringSource(t *testing.T) {
	src := NewStringSource("job", "G21\r\nG1 X1\n\nM103\n")
	assert.Equal(t, []string{"G21", "G1 X1", "", "M103"}, readAll(t, src))

	// restartable
	assert.Equal(t, []string{"G21", "G1 X1", "", "M103"}, readAll(t, src))

	n, err := CountLines(src)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.Empty(t, readAll(t, NewStringSource("empty", "")))
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part.gcode")
	require.NoError(t, os.WriteFile(path, []byte("G21\nG1 X1\n"), 0644))

	src := &FileSource{Path: path}
	assert.Equal(t, "part.gcode", src.Name())
	assert.Equal(t, []string{"G21", "G1 X1"}, readAll(t, src))
	assert.Equal(t, []string{"G21", "G1 X1"}, readAll(t, src))

	_, err := (&FileSource{Path: filepath.Join(t.TempDir(), "missing")}).Open()
	assert.Error(t, err)
}
