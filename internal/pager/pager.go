// Package pager prints record listings a page at a time on an interactive terminal.
package pager

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

const Prompt = "-- More -- (Enter to continue, q to quit)"

type Pager struct {
	out         io.Writer
	in          *bufio.Reader
	pageSize    int
	interactive bool
}

// New returns a pager writing to out. Prompts are only shown when in is a terminal and
// pageSize is positive.
func New(out io.Writer, in io.Reader, pageSize int) *Pager {
	return &Pager{
		out:         out,
		in:          bufio.NewReader(in),
		pageSize:    pageSize,
		interactive: IsTerminal(in),
	}
}

func IsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Print writes lines, pausing after every full page while more remain. It returns the number
// of lines written; quitting early is not an error.
func (p *Pager) Print(lines []string) (int, error) {
	paging := p.interactive && p.pageSize > 0
	for i, line := range lines {
		if _, err := fmt.Fprintln(p.out, line); err != nil {
			return i, err
		}
		if !paging || (i+1)%p.pageSize != 0 || i+1 == len(lines) {
			continue
		}
		if _, err := fmt.Fprint(p.out, Prompt); err != nil {
			return i + 1, err
		}
		answer, err := p.in.ReadString('\n')
		fmt.Fprintln(p.out)
		if err != nil && err != io.EOF {
			return i + 1, err
		}
		if strings.EqualFold(strings.TrimSpace(answer), "q") || err == io.EOF {
			return i + 1, nil
		}
	}
	return len(lines), nil
}
