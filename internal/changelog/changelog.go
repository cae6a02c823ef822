// Package changelog extracts the section for one version from a package's
// CHANGELOG.md and ranks it by the most significant kind of change it holds.
package changelog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/papapumpkin/comet/internal/fault"
)

// FileName is the changelog file looked up in each package directory.
const FileName = "CHANGELOG.md"

// ErrNoSection indicates the changelog exists but has no heading for the version.
var ErrNoSection = errors.New("no changelog section for version")

// Level ranks a section by the most significant change subsection it contains.
type Level int

const (
	LevelNone Level = iota
	LevelPatch
	LevelMinor
	LevelMajor
)

var levelHeadings = map[string]Level{
	"major changes": LevelMajor,
	"minor changes": LevelMinor,
	"patch changes": LevelPatch,
}

// Entry is one version's changelog section.
type Entry struct {
	Content      string
	HighestLevel Level
}

// Read loads dir/CHANGELOG.md and extracts the section for version.
// A missing file yields a fault.KindNotFound error wrapping fs.ErrNotExist;
// a missing section yields one wrapping ErrNoSection.
func Read(dir, version string) (Entry, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entry{}, fault.NotFound("read changelog", err)
		}
		return Entry{}, fmt.Errorf("read changelog: %w", err)
	}
	entry, err := Extract(data, version)
	if err != nil {
		return Entry{}, fmt.Errorf("%s: %w", path, err)
	}
	return entry, nil
}

type heading struct {
	level     int
	text      string
	lineStart int // offset of the first byte of the heading's first line
	bodyStart int // offset just past the heading's last line
}

// Extract returns the section whose heading text is exactly version. The
// section runs from the line after that heading up to, but excluding, the
// next heading of equal or shallower depth. Content is returned verbatim
// apart from surrounding blank lines.
func Extract(src []byte, version string) (Entry, error) {
	headings := scanHeadings(src)

	idx := -1
	for i, h := range headings {
		if h.text == version {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Entry{}, fault.NotFound("changelog section", fmt.Errorf("%w %s", ErrNoSection, version))
	}

	target := headings[idx]
	end := len(src)
	highest := LevelNone
	for _, h := range headings[idx+1:] {
		if h.level <= target.level {
			end = h.lineStart
			break
		}
		if h.level == target.level+1 {
			if lvl := levelHeadings[strings.ToLower(h.text)]; lvl > highest {
				highest = lvl
			}
		}
	}

	content := strings.Trim(string(src[target.bodyStart:end]), "\r\n")
	return Entry{Content: content, HighestLevel: highest}, nil
}

// scanHeadings walks the top-level blocks of a markdown document and
// returns its headings in document order. Headings inside code blocks or
// other containers are not section boundaries.
func scanHeadings(src []byte) []heading {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var out []heading
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok {
			continue
		}
		lines := h.Lines()
		if lines.Len() == 0 {
			continue // empty ATX heading, carries no text
		}

		var b strings.Builder
		inlineText(&b, h, src)

		first := lines.At(0)
		last := lines.At(lines.Len() - 1)
		start := lineStart(src, first.Start)
		bodyStart := lineEnd(src, max(last.Stop-1, last.Start))
		if !isATX(src[start:]) {
			// Setext heading: skip the underline.
			bodyStart = lineEnd(src, bodyStart)
		}
		out = append(out, heading{
			level:     h.Level,
			text:      strings.TrimSpace(b.String()),
			lineStart: start,
			bodyStart: bodyStart,
		})
	}
	return out
}

// inlineText writes the rendered text of n's inline children, so a heading
// written as a link or with emphasis yields just its words.
func inlineText(b *strings.Builder, n ast.Node, src []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			b.Write(c.Segment.Value(src))
			if c.SoftLineBreak() || c.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(c.Value)
		case *ast.AutoLink:
			b.Write(c.Label(src))
		case *ast.RawHTML:
		default:
			inlineText(b, c, src)
		}
	}
}

// lineStart returns the offset of the beginning of the line containing pos.
func lineStart(src []byte, pos int) int {
	for pos > 0 && src[pos-1] != '\n' {
		pos--
	}
	return pos
}

// lineEnd returns the offset just past the newline ending the line at pos.
func lineEnd(src []byte, pos int) int {
	for pos < len(src) && src[pos] != '\n' {
		pos++
	}
	if pos < len(src) {
		pos++
	}
	return pos
}

func isATX(line []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(line, " "), []byte("#"))
}
