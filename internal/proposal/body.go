package proposal

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/papapumpkin/comet/internal/changelog"
	"github.com/papapumpkin/comet/internal/changeset"
)

// DefaultMaxBodySize keeps proposal bodies under the hosting platform's
// payload ceiling.
const DefaultMaxBodySize = 60000

// Fixed body text.
const (
	releasesHeading = "# Releases"

	contentOmittedNotice = "> The changelog content of each package was omitted from this message because it exceeds the size limit.\n"
	allOmittedNotice     = "> All release information was omitted from this message because it exceeds the size limit."

	headerWithPublish = "This pull request is maintained by comet. When you are ready to release, " +
		"merge it and the packages below will be published automatically. " +
		"If you are not ready yet, that's fine: whenever more changesets land on `%s`, this pull request is regenerated."
	headerWithoutPublish = "This pull request is maintained by comet. When you are ready to release, " +
		"merge it and publish the packages below yourself, or configure a publish command to have comet publish them. " +
		"If you are not ready yet, that's fine: whenever more changesets land on `%s`, this pull request is regenerated."

	preModeWarning = "> [!WARNING]\n" +
		"> `%s` is in **pre mode**, so this branch carries prereleases instead of normal releases. " +
		"To leave pre mode, run `changeset pre exit` on `%s`."
)

// PackageEntry is the changelog excerpt of one changed package.
type PackageEntry struct {
	HighestLevel changelog.Level
	Private      bool
	Content      string
	Header       string
}

// BodyInput is everything ComposeBody depends on.
type BodyInput struct {
	HasPublish bool
	PreState   *changeset.PreState
	Entries    []PackageEntry
	MaxChars   int
	Branch     string
}

// ComposeBody builds the proposal body. While the text is longer than
// MaxChars it degrades in two steps: first every package's changelog
// content is dropped (headers stay), then all package information is
// replaced by a single notice. If that is still too long it is returned as
// is. Length is counted in characters. A non-positive MaxChars means
// DefaultMaxBodySize.
func ComposeBody(in BodyInput) string {
	limit := in.MaxChars
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}

	full := composeFull(in)
	if length(full) <= limit {
		return full
	}
	if headers := composeHeadersOnly(in); length(headers) <= limit {
		return headers
	}
	return composeNoReleases(in)
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}

// preamble returns the fixed header and, in pre mode, the warning block.
func preamble(in BodyInput) []string {
	format := headerWithoutPublish
	if in.HasPublish {
		format = headerWithPublish
	}
	parts := []string{fmt.Sprintf(format, in.Branch) + "\n"}
	if in.PreState.InPreMode() {
		parts = append(parts, fmt.Sprintf(preModeWarning, in.Branch, in.Branch)+"\n")
	}
	return parts
}

func composeFull(in BodyInput) string {
	parts := append(preamble(in), releasesHeading)
	for _, e := range in.Entries {
		parts = append(parts, e.Header+"\n\n"+e.Content)
	}
	return strings.Join(parts, "\n")
}

func composeHeadersOnly(in BodyInput) string {
	parts := append(preamble(in), contentOmittedNotice, releasesHeading)
	for _, e := range in.Entries {
		parts = append(parts, e.Header+"\n")
	}
	return strings.Join(parts, "\n")
}

func composeNoReleases(in BodyInput) string {
	return strings.Join(append(preamble(in), allOmittedNotice), "\n")
}
