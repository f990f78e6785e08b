package gcode

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Parser reads blocks from a stream of G-code text.
type Parser struct{ br *bufio.Reader }

func NewParser(r io.Reader) *Parser {
	if br, ok := r.(*bufio.Reader); ok {
		return &Parser{br: br}
	}

	return &Parser{br: bufio.NewReader(r)}
}

var (
	rx        = regexp.MustCompile(`^([A-Z][0-9.+\-]+)+$`)
	rxSplit   = regexp.MustCompile(`[A-Z][0-9.+\-]+`)
	rxComment = regexp.MustCompile(`\([^)]*\)`)
)

// ParseLine parses a single line. Comments, line numbers and checksums are
// dropped; a line with nothing left yields a nil block.
func ParseLine(s string) (Block, error) {
	s = strings.SplitN(s, ";", 2)[0]
	s = strings.SplitN(s, "*", 2)[0]
	s = rxComment.ReplaceAllString(s, "")
	s = strings.Replace(s, " ", "", -1)
	s = strings.Replace(s, "\t", "", -1)
	s = strings.TrimSpace(s)
	s = strings.ToUpper(s)

	if s == "" {
		return nil, nil
	}

	if !rx.MatchString(s) {
		return nil, errors.New("invalid or unhandled line: " + s)
	}

	codes := rxSplit.FindAllString(s, -1)
	res := make(Block, 0, len(codes))

	for _, c := range codes {
		var w Word
		_, err := fmt.Sscanf(c, "%c%f", &w.W, &w.Arg)
		if err != nil {
			return nil, err
		}
		if w.W == 'N' {
			continue
		}
		res = append(res, w)
	}
	if len(res) == 0 {
		return nil, nil
	}

	return res, nil
}

// Read returns the next non-empty block, or io.EOF.
func (p *Parser) Read() (Block, error) {
	for {
		s, err := p.br.ReadString('\n')
		if err == io.EOF && s != "" {
			err = nil
		}
		if err != nil {
			return nil, err
		}

		b, err := ParseLine(s)
		if err != nil {
			return nil, err
		}
		if b == nil {
			continue
		}
		return b, nil
	}
}

// Parse returns every non-empty block in data.
func Parse(data string) ([]Block, error) {
	p := NewParser(strings.NewReader(data))
	var res []Block
	for {
		b, err := p.Read()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
}

// MustParse is like Parse but panics on error. For tests and constants.
func MustParse(data string) []Block {
	b, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return b
}
