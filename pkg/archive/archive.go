// Package archive backs up a site's database and files into one tarball.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/wp-updater/wp-updater/pkg/types"
	"github.com/wp-updater/wp-updater/pkg/utils"
)

// Exporter dumps a site database to an absolute path.
type Exporter interface {
	ExportDB(ctx context.Context, dest string) error
}

// Archiver runs the export, move, package and verify steps for one site.
type Archiver struct {
	dest          string
	workingFolder string
	codec         types.Codec
	packager      Packager
}

// New builds an Archiver from validated options.
func New(opts *types.Options) *Archiver {
	var p Packager = &TarCommand{Verbose: opts.Verbose}
	if opts.Packager == types.PackagerNative {
		p = Native{}
	}
	return &Archiver{
		dest:          opts.ReportDir,
		workingFolder: opts.WorkingFolder,
		codec:         opts.Codec,
		packager:      p,
	}
}

// WithPackager replaces the packager.
func (a *Archiver) WithPackager(p Packager) *Archiver {
	a.packager = p
	return a
}

// Archive backs up inst under the name site. Each step must succeed before the
// next one runs. The returned artifact records both postconditions even when
// verification fails.
func (a *Archiver) Archive(ctx context.Context, site string, inst types.Installation, exp Exporter) (*types.BackupArtifact, error) {
	entry := log.WithFields(log.Fields{"component": "archive", "site": site})

	base, err := a.freeName(site)
	if err != nil {
		return &types.BackupArtifact{Site: site, Codec: a.codec}, err
	}
	dumpName := base + ".sql"
	staged := filepath.Join(a.workingFolder, dumpName)
	artifact := &types.BackupArtifact{
		Site:        site,
		DumpPath:    filepath.Join(a.dest, dumpName),
		ArchivePath: a.archivePath(base),
		Codec:       a.codec,
	}
	if base != site {
		entry.Warnf("An archive for %s already exists, writing %s", site, artifact.ArchivePath)
	}

	entry.Infof("Exporting database to %s", staged)
	if err := exp.ExportDB(ctx, staged); err != nil {
		return artifact, cleanup(fmt.Errorf("failed to export database for %s: %w", site, err), staged)
	}
	if !utils.IsNonEmptyFile(a.workingFolder, dumpName) {
		return artifact, cleanup(fmt.Errorf("database export for %s did not create %s", site, staged), staged)
	}

	if staged != artifact.DumpPath {
		entry.Debugf("Moving %s to %s", staged, artifact.DumpPath)
		if err := utils.MoveFile(staged, artifact.DumpPath); err != nil {
			return artifact, cleanup(fmt.Errorf("failed to move database dump: %w", err), staged, artifact.DumpPath)
		}
	}
	if !utils.FileExists(artifact.DumpPath) {
		return artifact, fmt.Errorf("database dump %s is missing after move", artifact.DumpPath)
	}

	entries := []Entry{
		{Dir: a.dest, Name: dumpName},
		{Dir: filepath.Dir(inst.Path), Name: filepath.Base(inst.Path)},
	}
	entry.Infof("Compressing %s with %s", artifact.ArchivePath, a.codec)
	if err := a.packager.Package(ctx, artifact.ArchivePath, a.codec, entries); err != nil {
		return artifact, cleanup(fmt.Errorf("failed to package %s: %w", artifact.ArchivePath, err), artifact.DumpPath)
	}

	entry.Debugf("Removing %s", artifact.DumpPath)
	removeErr := os.Remove(artifact.DumpPath)

	artifact.DumpAbsent = !utils.FileExists(artifact.DumpPath)
	if fi, err := os.Stat(artifact.ArchivePath); err == nil && !fi.IsDir() {
		artifact.ArchivePresent = true
		artifact.Size = fi.Size()
	}
	entry.Infof("The existence of %s is %t", artifact.DumpPath, !artifact.DumpAbsent)
	entry.Infof("The existence of %s is %t", artifact.ArchivePath, artifact.ArchivePresent)

	if !artifact.Verified() {
		var result *multierror.Error
		result = multierror.Append(result, &types.ArchiveVerificationError{
			Site:           site,
			ArchivePath:    artifact.ArchivePath,
			DumpPath:       artifact.DumpPath,
			ArchivePresent: artifact.ArchivePresent,
			DumpAbsent:     artifact.DumpAbsent,
		})
		if removeErr != nil && !os.IsNotExist(removeErr) {
			result = multierror.Append(result, removeErr)
		}
		return artifact, result.ErrorOrNil()
	}
	return artifact, nil
}

// maxCollisions bounds the numbered names tried for one site.
const maxCollisions = 100

func (a *Archiver) archivePath(base string) string {
	return filepath.Join(a.dest, fmt.Sprintf("%s.tar.%s", base, a.codec.Extension()))
}

// freeName returns site, or site-N when an archive or dump by that name is
// already in the destination. Existing backups are never overwritten.
func (a *Archiver) freeName(site string) (string, error) {
	for i := 0; i <= maxCollisions; i++ {
		base := site
		if i > 0 {
			base = fmt.Sprintf("%s-%d", site, i)
		}
		if !utils.FileExists(a.archivePath(base)) && !utils.FileExists(filepath.Join(a.dest, base+".sql")) {
			return base, nil
		}
	}
	return "", fmt.Errorf("no free archive name for %s in %s", site, a.dest)
}

// cleanup removes leftover dumps after a failed step and folds any removal
// errors into err.
func cleanup(err error, paths ...string) error {
	result := multierror.Append(nil, err)
	for _, p := range paths {
		if rerr := os.Remove(p); rerr != nil && !os.IsNotExist(rerr) {
			result = multierror.Append(result, rerr)
		}
	}
	if len(result.Errors) == 1 {
		return err
	}
	return result
}
