package gcode

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Source is a finite sequence of command lines that can be read any number
// of times. Each call to Open starts again from the first line.
type Source interface {
	Name() string
	Open() (LineReader, error)
}

// LineReader yields lines until io.EOF.
type LineReader interface {
	ReadLine() (string, error)
	io.Closer
}

// StringSource is an in-memory source.
type StringSource struct {
	Label string
	Lines []string
}

// NewStringSource splits text into lines.
func NewStringSource(label, text string) *StringSource {
	text = strings.TrimRight(text, "\n")
	var lines []string
	if text != "" {
		lines = strings.Split(text, "\n")
	}
	return &StringSource{Label: label, Lines: lines}
}

func (s *StringSource) Name() string { return s.Label }

func (s *StringSource) Open() (LineReader, error) {
	return &sliceReader{lines: s.Lines}, nil
}

type sliceReader struct {
	lines []string
	n     int
}

func (r *sliceReader) ReadLine() (string, error) {
	if r.n == len(r.lines) {
		return "", io.EOF
	}
	r.n++
	return strings.TrimRight(r.lines[r.n-1], "\r"), nil
}

func (r *sliceReader) Close() error { return nil }

// FileSource reads lines from a file, reopening it for every pass.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string { return filepath.Base(s.Path) }

func (s *FileSource) Open() (LineReader, error) {
	fd, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	sc := bufio.NewScanner(fd)
	sc.Buffer(make([]byte, 4096), 1<<20)
	return &fileReader{fd: fd, sc: sc}, nil
}

type fileReader struct {
	fd *os.File
	sc *bufio.Scanner
}

func (r *fileReader) ReadLine() (string, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(r.sc.Text(), "\r"), nil
}

func (r *fileReader) Close() error { return r.fd.Close() }

// CountLines reads a source once and returns its number of lines.
func CountLines(src Source) (int, error) {
	r, err := src.Open()
	if err != nil {
		return 0, err
	}
	defer r.Close()

	var n int
	for {
		_, err := r.ReadLine()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}
