// Package locator finds WordPress installations under a directory tree.
package locator

import (
	"io/fs"
	"iter"
	"path/filepath"
	"regexp"

	log "github.com/sirupsen/logrus"
	"github.com/wp-updater/wp-updater/pkg/types"
)

// markerFiles identify a WordPress root.
var markerFiles = map[string]struct{}{
	"wp-config.php":    {},
	"local-config.php": {},
}

// denylist matches paths that usually hold non-canonical copies of a site:
// backups, archives, repositories, safe copies, database dumps and alternate
// document roots (html_old, html.bak, ...). It is a substring heuristic and
// can both reject real sites and accept copies.
var denylist = regexp.MustCompile(`(bak|repo|archive|backup|safe|db|html\w|html\.)`)

// Locator walks a root directory looking for installation markers.
type Locator struct {
	root    string
	skipped []string
	log     *log.Entry
}

// New returns a Locator rooted at root. A relative root is resolved against the
// current directory once, here.
func New(root string) (*Locator, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Locator{
		root: abs,
		log:  log.WithField("component", "locator"),
	}, nil
}

// Root returns the absolute scan root.
func (l *Locator) Root() string {
	return l.root
}

// Skipped returns the paths that could not be read during the last walk.
func (l *Locator) Skipped() []string {
	return l.skipped
}

// Excluded reports whether a path matches the denylist. The whole path counts,
// including the scan root.
func Excluded(path string) bool {
	return denylist.MatchString(filepath.ToSlash(path))
}

// Candidates yields every marker file under the root in traversal order.
// Unreadable directories are skipped and recorded; the walk continues.
func (l *Locator) Candidates() iter.Seq[string] {
	return func(yield func(string) bool) {
		l.skipped = nil
		_ = filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				l.log.Warnf("Skipping unreadable path %s: %v", path, err)
				l.skipped = append(l.skipped, path)
				if d != nil && d.IsDir() && path != l.root {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if _, ok := markerFiles[d.Name()]; !ok {
				return nil
			}
			if !yield(path) {
				return fs.SkipAll
			}
			return nil
		})
	}
}

// Installations yields accepted installations. Candidates matching the denylist
// are dropped, and a directory holding both markers is yielded once.
func (l *Locator) Installations() iter.Seq[types.Installation] {
	return func(yield func(types.Installation) bool) {
		seen := make(map[string]struct{})
		for path := range l.Candidates() {
			if Excluded(path) {
				l.log.Debugf("Excluding %s", path)
				continue
			}

			dir := filepath.Dir(path)
			if _, dup := seen[dir]; dup {
				l.log.Debugf("Already found an installation in %s, ignoring %s", dir, filepath.Base(path))
				continue
			}
			seen[dir] = struct{}{}

			if !yield(types.Installation{Path: dir, ConfigFile: path}) {
				return
			}
		}
	}
}
