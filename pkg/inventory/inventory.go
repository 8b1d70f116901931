// Package inventory records the core and plugin update state of a site.
package inventory

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	log "github.com/sirupsen/logrus"
	"github.com/wp-updater/wp-updater/pkg/report"
	"github.com/wp-updater/wp-updater/pkg/types"
	"github.com/wp-updater/wp-updater/pkg/wpcli"
)

// Update kinds returned by ClassifyUpdate.
const (
	UpdateMajor   = "major"
	UpdateMinor   = "minor"
	UpdatePatch   = "patch"
	UpdateUnknown = "unknown"
)

var urlPattern = regexp.MustCompile(`https?://[^\s'"<>]+`)

// Inventory is what Collect learned about one site.
type Inventory struct {
	Installation types.Installation
	SiteURL      string
	Core         types.UpdateCheckResult
	Plugins      []types.PluginRecord
	// PluginUpdates maps plugin name to the kind of its pending update.
	PluginUpdates map[string]string
}

// PendingUpdates counts core entries and plugins with an update available.
func (i *Inventory) PendingUpdates() int {
	n := len(i.Core.Updates)
	for _, p := range i.Plugins {
		if p.UpdateAvailable {
			n++
		}
	}
	return n
}

// Collector queries a site and appends its rows to the report.
type Collector struct {
	sink report.Sink
}

func NewCollector(sink report.Sink) *Collector {
	return &Collector{sink: sink}
}

// Collect resolves the site name, checks core, then lists plugins. Rows are
// appended as soon as each query returns, so a later failure leaves the rows
// already written in place. inst.Site is filled once the name is known.
func (c *Collector) Collect(ctx context.Context, inst *types.Installation, sess wpcli.Session) (*Inventory, error) {
	entry := log.WithField("path", inst.Path)

	raw, err := sess.SiteURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read siteurl: %w", err)
	}
	site, err := NormalizeSiteName(raw)
	if err != nil {
		return nil, err
	}
	inst.Site = site
	entry = entry.WithField("site", site)

	if err := c.sink.AppendSite(site); err != nil {
		return nil, err
	}
	inv := &Inventory{Installation: *inst, SiteURL: raw, PluginUpdates: map[string]string{}}

	core, err := sess.CoreCheckUpdate(ctx)
	if err != nil {
		return inv, fmt.Errorf("failed to check core updates for %s: %w", site, err)
	}
	inv.Core = core
	switch core.Kind {
	case types.ResultInformational:
		entry.Info(core.Message)
	case types.ResultStructured:
		for _, u := range core.Updates {
			entry.Infof("%s is a %s upgrade", u.Version, u.UpdateType)
			if err := c.sink.AppendComponent(types.CoreComponent, u.Version, u.UpdateType); err != nil {
				return inv, err
			}
		}
	}

	plugins, err := sess.PluginList(ctx)
	if err != nil {
		return inv, fmt.Errorf("failed to list plugins for %s: %w", site, err)
	}
	inv.Plugins = plugins
	for _, p := range plugins {
		if p.UpdateAvailable {
			kind := ClassifyUpdate(p.Version, p.UpdateVersion)
			inv.PluginUpdates[p.Name] = kind
			entry.Infof("%s is version %s and a %s update to %s is available", p.Name, p.Version, kind, p.UpdateVersion)
		} else {
			entry.Debugf("%s is version %s and up to date", p.Name, p.Version)
		}
		if err := c.sink.AppendComponent(p.Name, p.Version, strconv.FormatBool(p.UpdateAvailable)); err != nil {
			return inv, err
		}
	}

	return inv, nil
}

// NormalizeSiteName extracts the bare hostname from a siteurl value: the first
// http(s) URL in raw, without scheme, port, path or a leading "www.".
func NormalizeSiteName(raw string) (string, error) {
	candidate := urlPattern.FindString(raw)
	if candidate == "" {
		candidate = strings.TrimSpace(raw)
		if candidate == "" {
			return "", types.ErrNoSiteName
		}
		candidate = "http://" + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrNoSiteName, err)
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", fmt.Errorf("%w: %q", types.ErrNoSiteName, raw)
	}
	return host, nil
}

// ClassifyUpdate names the semver component that changes between current and
// available. Versions that do not parse are UpdateUnknown.
func ClassifyUpdate(current, available string) string {
	from, err := semver.NewVersion(current)
	if err != nil {
		return UpdateUnknown
	}
	to, err := semver.NewVersion(available)
	if err != nil {
		return UpdateUnknown
	}

	switch {
	case to.Major() != from.Major():
		return UpdateMajor
	case to.Minor() != from.Minor():
		return UpdateMinor
	case to.Patch() != from.Patch():
		return UpdatePatch
	default:
		return UpdateUnknown
	}
}
