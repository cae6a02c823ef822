package publish

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"

	"github.com/papapumpkin/comet/internal/fault"
	"github.com/papapumpkin/comet/internal/workspace"
)

// The publish tool announces tags on stdout, one per line:
//
//	line    = *any "New tag:" *any
//	tagged  = *any "New tag:" 1*space name "@" version *any
//	name    = "@" scope "/" pkg | pkg      ; pkg and scope contain no "/"
//	version = 1*non-space
//
// In a multi-package workspace every tagged line is an announcement. In a
// single-package workspace only the first line containing the marker
// counts, as a bare trigger.
const tagMarker = "New tag:"

var taggedLine = regexp.MustCompile(`New tag:\s+(@[^/]+/[^@]+|[^/]+)@(\S+)`)

// EventKind distinguishes the two announcement shapes.
type EventKind int

const (
	// EventTaggedPackage names the package and version that was tagged.
	EventTaggedPackage EventKind = iota + 1
	// EventTrigger only says that something was tagged.
	EventTrigger
)

// Event is one parsed announcement.
type Event struct {
	Kind    EventKind
	Line    int // 1-based line number in the tool output
	Name    string
	Version string
}

// ParseAnnouncements turns publish tool output into events, in line order.
// Multi-package mode yields one EventTaggedPackage per tagged line,
// duplicates included. Single-package mode yields at most one EventTrigger.
func ParseAnnouncements(output string, multi bool) []Event {
	var events []Event
	sc := bufio.NewScanner(strings.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := sc.Text()
		if !multi {
			if strings.Contains(line, tagMarker) {
				return []Event{{Kind: EventTrigger, Line: n}}
			}
			continue
		}
		if m := taggedLine.FindStringSubmatch(line); m != nil {
			events = append(events, Event{Kind: EventTaggedPackage, Line: n, Name: m[1], Version: m[2]})
		}
	}
	return events
}

// Correlate maps events to workspace packages, preserving order. A tagged
// name that is not a workspace package is a fault.KindInconsistency error.
// A trigger releases the workspace's sole package.
func Correlate(events []Event, pkgs *workspace.Packages) ([]workspace.Package, error) {
	byName := pkgs.ByName()
	var released []workspace.Package
	for _, ev := range events {
		switch ev.Kind {
		case EventTaggedPackage:
			pkg, ok := byName[ev.Name]
			if !ok {
				return nil, fault.Inconsistent("correlate tags",
					fmt.Errorf("publish output line %d tagged %s@%s, which is not a workspace package", ev.Line, ev.Name, ev.Version))
			}
			released = append(released, pkg)
		case EventTrigger:
			if len(pkgs.Packages) == 0 {
				return nil, fault.Inconsistent("correlate tags", fmt.Errorf("publish output line %d announced a tag but the workspace has no package", ev.Line))
			}
			return []workspace.Package{pkgs.Packages[0]}, nil
		}
	}
	return released, nil
}

// TagName returns the release tag for pkg: name@version in a multi-package
// workspace, v<version> otherwise.
func TagName(pkg workspace.Package, multi bool) string {
	if multi {
		return pkg.Name + "@" + pkg.Version
	}
	return "v" + pkg.Version
}

// IsPrerelease reports whether version carries a pre-release identifier.
func IsPrerelease(version string) bool {
	return strings.Contains(version, "-")
}
