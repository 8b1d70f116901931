// Package wpcli drives wp-cli for a single WordPress installation.
package wpcli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/wp-updater/wp-updater/pkg/types"
)

// latestVersionMessage is reported when check-update returns an empty list.
const latestVersionMessage = "WordPress is at the latest version."

// Session is a management session scoped to one installation directory.
type Session interface {
	SiteURL(ctx context.Context) (string, error)
	CoreCheckUpdate(ctx context.Context) (types.UpdateCheckResult, error)
	PluginList(ctx context.Context) ([]types.PluginRecord, error)
	ExportDB(ctx context.Context, dest string) error
	UpdatePlugins(ctx context.Context) error
	UpdateCore(ctx context.Context) error
	UpdateCoreDB(ctx context.Context) error
	VerifyCoreChecksums(ctx context.Context) error
}

// Client implements Session on top of a Runner. Every call carries --path and
// --allow-root so commands act on the installation with the invoking user's
// privileges and without interactive prompts.
type Client struct {
	path   string
	runner Runner
}

// Option configures a Client.
type Option func(*Client)

// WithRunner replaces the subprocess runner.
func WithRunner(r Runner) Option {
	return func(c *Client) { c.runner = r }
}

// WithBinary sets the wp-cli binary used by the default runner.
func WithBinary(binary string) Option {
	return func(c *Client) { c.runner = &ExecRunner{Binary: binary} }
}

// Open returns a Client scoped to the installation at path.
func Open(path string, opts ...Option) *Client {
	c := &Client{path: path, runner: &ExecRunner{}}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	full := make([]string, 0, len(args)+2)
	full = append(full, "--path="+c.path, "--allow-root")
	full = append(full, args...)
	return c.runner.Run(ctx, full...)
}

// SiteURL returns the configured siteurl option verbatim.
func (c *Client) SiteURL(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "option", "get", "siteurl")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// CoreCheckUpdate asks for available core updates.
func (c *Client) CoreCheckUpdate(ctx context.Context) (types.UpdateCheckResult, error) {
	out, err := c.run(ctx, "core", "check-update", "--format=json")
	if err != nil {
		return types.UpdateCheckResult{}, err
	}
	return ParseCoreCheckUpdate(out)
}

// PluginList returns every installed plugin with its update status.
func (c *Client) PluginList(ctx context.Context) ([]types.PluginRecord, error) {
	out, err := c.run(ctx, "plugin", "list", "--format=json", "--fields=name,status,update,version,update_version")
	if err != nil {
		return nil, err
	}
	return ParsePluginList(out)
}

// ExportDB dumps the site database to dest, which should be an absolute path.
func (c *Client) ExportDB(ctx context.Context, dest string) error {
	_, err := c.run(ctx, "db", "export", dest)
	return err
}

func (c *Client) UpdatePlugins(ctx context.Context) error {
	_, err := c.run(ctx, "plugin", "update", "--all")
	return err
}

func (c *Client) UpdateCore(ctx context.Context) error {
	_, err := c.run(ctx, "core", "update")
	return err
}

func (c *Client) UpdateCoreDB(ctx context.Context) error {
	_, err := c.run(ctx, "core", "update-db")
	return err
}

func (c *Client) VerifyCoreChecksums(ctx context.Context) error {
	_, err := c.run(ctx, "core", "verify-checksums")
	return err
}

type coreUpdateEntry struct {
	Version    string `json:"version"`
	UpdateType string `json:"update_type"`
	PackageURL string `json:"package_url"`
}

// ParseCoreCheckUpdate turns check-update output into a tagged result. A JSON
// list is structured; anything else is an informational message.
func ParseCoreCheckUpdate(out []byte) (types.UpdateCheckResult, error) {
	trimmed := bytes.TrimSpace(out)
	if !bytes.HasPrefix(trimmed, []byte("[")) {
		msg := strings.TrimSpace(strings.TrimPrefix(string(trimmed), "Success:"))
		if msg == "" {
			msg = latestVersionMessage
		}
		return types.Informational(msg), nil
	}

	var entries []coreUpdateEntry
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return types.UpdateCheckResult{}, errors.Wrap(err, "failed to parse core check-update output")
	}
	if len(entries) == 0 {
		return types.Informational(latestVersionMessage), nil
	}

	updates := make([]types.ComponentUpdate, 0, len(entries))
	for _, e := range entries {
		updates = append(updates, types.ComponentUpdate{
			Name:       types.CoreComponent,
			Version:    e.Version,
			UpdateType: e.UpdateType,
		})
	}
	return types.Structured(updates), nil
}

type pluginEntry struct {
	Name          string `json:"name"`
	Status        string `json:"status"`
	Update        string `json:"update"`
	Version       string `json:"version"`
	UpdateVersion string `json:"update_version"`
}

// ParsePluginList decodes plugin list JSON output.
func ParsePluginList(out []byte) ([]types.PluginRecord, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return []types.PluginRecord{}, nil
	}

	var entries []pluginEntry
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, errors.Wrap(err, "failed to parse plugin list output")
	}

	plugins := make([]types.PluginRecord, 0, len(entries))
	for _, e := range entries {
		plugins = append(plugins, types.PluginRecord{
			Name:            e.Name,
			Status:          e.Status,
			Version:         e.Version,
			UpdateVersion:   e.UpdateVersion,
			UpdateAvailable: e.Update == "available",
		})
	}
	return plugins, nil
}
