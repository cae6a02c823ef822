package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/papapumpkin/comet/internal/changelog"
	"github.com/papapumpkin/comet/internal/host"
	"github.com/papapumpkin/comet/internal/metrics"
	"github.com/papapumpkin/comet/internal/telemetry"
	"github.com/papapumpkin/comet/internal/workspace"
)

// ReleaseCreator creates one hosted release per published package.
type ReleaseCreator struct {
	Host    host.Client
	Logger  *slog.Logger
	Events  *telemetry.Emitter
	Metrics *metrics.Recorder
}

func (c *ReleaseCreator) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Create makes the release for pkg under tagName, using the package's
// changelog section for its current version as the body.
//
// A package without a changelog file has changelogs turned off, so nothing
// is created and created is false with a nil error. A changelog that exists
// but has no section for the version is an error.
func (c *ReleaseCreator) Create(ctx context.Context, pkg workspace.Package, tagName string) (created bool, err error) {
	entry, err := changelog.Read(pkg.Dir, pkg.Version)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.skipped(pkg, tagName, "no changelog file")
			return false, nil
		}
		return false, fmt.Errorf("release %s: %w", tagName, err)
	}

	rel, err := c.Host.CreateRelease(ctx, host.NewRelease{
		Name:       tagName,
		TagName:    tagName,
		Body:       entry.Content,
		Prerelease: IsPrerelease(pkg.Version),
	})
	if err != nil {
		c.Metrics.Release("error")
		return false, fmt.Errorf("release %s: %w", tagName, err)
	}

	c.Metrics.Release("created")
	_ = c.Events.Emit(telemetry.Event{
		Kind:    telemetry.KindReleaseCreated,
		Package: pkg.Name,
		Data:    map[string]any{"tag": tagName, "id": rel.ID, "prerelease": rel.Prerelease},
	})
	c.logger().Info("release created", slog.String("tag", tagName), slog.String("url", rel.HTMLURL))
	return true, nil
}

func (c *ReleaseCreator) skipped(pkg workspace.Package, tagName, reason string) {
	c.Metrics.Release("skipped")
	_ = c.Events.Emit(telemetry.Event{
		Kind:    telemetry.KindReleaseSkipped,
		Package: pkg.Name,
		Data:    map[string]any{"tag": tagName, "reason": reason},
	})
	c.logger().Debug("release skipped", slog.String("tag", tagName), slog.String("reason", reason))
}
