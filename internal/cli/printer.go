package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/marktree/pkg/domain"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// TreePrinter renders a snapshot as an indented outline.
type TreePrinter struct {
	out     io.Writer
	profile termenv.Profile
	width   int
	showIDs bool
}

// NewTreePrinter writes to f, coloring and truncating only when f is a terminal.
func NewTreePrinter(f *os.File, showIDs bool) *TreePrinter {
	p := &TreePrinter{out: f, profile: termenv.Ascii, showIDs: showIDs}
	fd := int(f.Fd())
	if term.IsTerminal(fd) {
		p.profile = termenv.NewOutput(f).Profile
		if w, _, err := term.GetSize(fd); err == nil {
			p.width = w
		}
	}
	return p
}

// NewPlainTreePrinter writes uncolored, untruncated output to w.
func NewPlainTreePrinter(w io.Writer, showIDs bool) *TreePrinter {
	return &TreePrinter{out: w, profile: termenv.Ascii, showIDs: showIDs}
}

// Print writes the children of the root, or of the node rootID when it is set.
func (p *TreePrinter) Print(snap *domain.Snapshot, rootID string) error {
	var list []*domain.Node
	if rootID == "" {
		for _, r := range snap.Roots {
			list = append(list, r.Children...)
		}
	} else {
		n, ok := snap.Node(rootID)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, rootID)
		}
		list = []*domain.Node{n}
	}
	for _, n := range list {
		if err := p.print(n, 0); err != nil {
			return err
		}
	}
	return nil
}

func (p *TreePrinter) print(n *domain.Node, depth int) error {
	indent := strings.Repeat("  ", depth)
	var line string
	if n.IsFolder() {
		title := p.profile.String(n.Title + "/").Bold().Foreground(p.profile.Color("#818cf8"))
		line = indent + title.String()
	} else {
		url := p.profile.String(p.fit(n.URL, len(indent)+len(n.Title)+3)).Faint()
		line = fmt.Sprintf("%s%s  %s", indent, n.Title, url)
	}
	if p.showIDs {
		line += p.profile.String(fmt.Sprintf("  [%s]", n.ID)).Faint().String()
	}
	if _, err := fmt.Fprintln(p.out, line); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := p.print(c, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// fit shortens s so a line that already has used columns stays within the terminal width.
func (p *TreePrinter) fit(s string, used int) string {
	room := p.width - used
	if p.width == 0 || len(s) <= room {
		return s
	}
	if room <= 1 {
		return ""
	}
	return s[:room-1] + "…"
}
