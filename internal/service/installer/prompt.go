package installer

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// prompter reads operator selections from an input stream, one line per question.
type prompter struct {
	reader *bufio.Reader
	out    io.Writer
}

// newPrompter creates a prompter over the provided streams.
func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// ask prints the question and returns the trimmed answer line.
// EOF or read failures yield an empty answer, which resolves to the default
// choice downstream.
func (p *prompter) ask(question string) string {
	_, _ = fmt.Fprint(p.out, question)

	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		return ""
	}

	return strings.TrimSpace(line)
}
