package archive

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"github.com/wp-updater/wp-updater/pkg/types"
)

type fakeExporter struct {
	err   error
	skip  bool
	calls []string
}

func (f *fakeExporter) ExportDB(_ context.Context, dest string) error {
	f.calls = append(f.calls, dest)
	if f.err != nil {
		return f.err
	}
	if f.skip {
		return nil
	}
	return os.WriteFile(dest, []byte("-- dump\nCREATE TABLE wp_posts;\n"), 0o600)
}

type fakePackager struct {
	err   error
	noop  bool
	calls [][]Entry
}

func (f *fakePackager) Package(_ context.Context, path string, _ types.Codec, entries []Entry) error {
	f.calls = append(f.calls, entries)
	if f.err != nil {
		return f.err
	}
	if f.noop {
		return nil
	}
	return os.WriteFile(path, []byte("archive"), 0o600)
}

type fixture struct {
	dest    string
	work    string
	inst    types.Installation
	archive *Archiver
}

func newFixture(t *testing.T, codec types.Codec) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		dest: filepath.Join(root, "dest"),
		work: filepath.Join(root, "work"),
		inst: types.Installation{Path: filepath.Join(root, "www", "example")},
	}
	for _, d := range []string{f.dest, f.work, filepath.Join(f.inst.Path, "wp-content")} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(f.inst.Path, "wp-config.php"), []byte("<?php\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.inst.Path, "wp-content", "index.php"), []byte("<?php\n"), 0o644))

	f.archive = New(&types.Options{
		ReportDir:     f.dest,
		WorkingFolder: f.work,
		Codec:         codec,
		Packager:      types.PackagerNative,
	})
	return f
}

func TestArchiveNative(t *testing.T) {
	f := newFixture(t, types.CodecGzip)
	exp := &fakeExporter{}

	artifact, err := f.archive.Archive(context.Background(), "example.com", f.inst, exp)
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(f.work, "example.com.sql")}, exp.calls)
	assert.True(t, artifact.Verified())
	assert.Equal(t, filepath.Join(f.dest, "example.com.tar.gz"), artifact.ArchivePath)
	assert.Positive(t, artifact.Size)
	assert.NoFileExists(t, artifact.DumpPath)
	assert.NoFileExists(t, filepath.Join(f.work, "example.com.sql"))
	assert.FileExists(t, artifact.ArchivePath)

	assert.Equal(t, []string{
		"example.com.sql",
		"example/",
		"example/wp-config.php",
		"example/wp-content/",
		"example/wp-content/index.php",
	}, members(t, artifact.ArchivePath, types.CodecGzip))
}

func TestArchiveNeverOverwritesBackup(t *testing.T) {
	f := newFixture(t, types.CodecGzip)
	p := &fakePackager{}
	f.archive.WithPackager(p)

	first, err := f.archive.Archive(context.Background(), "example.com", f.inst, &fakeExporter{})
	require.NoError(t, err)
	before, err := os.ReadFile(first.ArchivePath)
	require.NoError(t, err)

	// A second installation reporting the same site URL.
	exp := &fakeExporter{}
	second, err := f.archive.Archive(context.Background(), "example.com", f.inst, exp)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(f.dest, "example.com.tar.gz"), first.ArchivePath)
	assert.Equal(t, filepath.Join(f.dest, "example.com-1.tar.gz"), second.ArchivePath)
	assert.Equal(t, "example.com", second.Site)
	assert.Equal(t, []string{filepath.Join(f.work, "example.com-1.sql")}, exp.calls)
	require.Len(t, p.calls, 2)
	assert.Equal(t, Entry{Dir: f.dest, Name: "example.com-1.sql"}, p.calls[1][0])

	after, err := os.ReadFile(first.ArchivePath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.True(t, second.Verified())
}

func TestArchiveExportFailure(t *testing.T) {
	f := newFixture(t, types.CodecGzip)
	p := &fakePackager{}
	f.archive.WithPackager(p)
	boom := errors.New("mysqldump: access denied")

	artifact, err := f.archive.Archive(context.Background(), "example.com", f.inst, &fakeExporter{err: boom})
	assert.ErrorIs(t, err, boom)
	assert.False(t, artifact.Verified())
	assert.Empty(t, p.calls)
}

func TestArchiveExportCreatedNothing(t *testing.T) {
	f := newFixture(t, types.CodecGzip)
	p := &fakePackager{}
	f.archive.WithPackager(p)

	_, err := f.archive.Archive(context.Background(), "example.com", f.inst, &fakeExporter{skip: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not create")
	assert.Empty(t, p.calls)
}

func TestArchivePackageFailureRemovesDump(t *testing.T) {
	f := newFixture(t, types.CodecBzip2)
	boom := errors.New("tar: disk full")
	p := &fakePackager{err: boom}
	f.archive.WithPackager(p)

	artifact, err := f.archive.Archive(context.Background(), "example.com", f.inst, &fakeExporter{})
	assert.ErrorIs(t, err, boom)
	assert.False(t, artifact.Verified())
	assert.NoFileExists(t, artifact.DumpPath)

	require.Len(t, p.calls, 1)
	assert.Equal(t, []Entry{
		{Dir: f.dest, Name: "example.com.sql"},
		{Dir: filepath.Dir(f.inst.Path), Name: "example"},
	}, p.calls[0])
}

func TestArchiveVerificationFailure(t *testing.T) {
	f := newFixture(t, types.CodecXZ)
	f.archive.WithPackager(&fakePackager{noop: true})

	artifact, err := f.archive.Archive(context.Background(), "example.com", f.inst, &fakeExporter{})
	require.Error(t, err)

	var verr *types.ArchiveVerificationError
	require.True(t, errors.As(err, &verr))
	assert.False(t, verr.ArchivePresent)
	assert.True(t, verr.DumpAbsent)
	assert.False(t, artifact.Verified())
	assert.Equal(t, filepath.Join(f.dest, "example.com.tar.xz"), artifact.ArchivePath)
}

func TestNativeCodecs(t *testing.T) {
	for _, codec := range []types.Codec{types.CodecGzip, types.CodecBzip2, types.CodecXZ} {
		t.Run(codec.String(), func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.MkdirAll(filepath.Join(dir, "site"), 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "site", "a.txt"), []byte("a"), 0o644))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "site.sql"), []byte("sql"), 0o644))
			require.NoError(t, os.Symlink("a.txt", filepath.Join(dir, "site", "link")))

			out := filepath.Join(dir, "out.tar."+codec.Extension())
			err := Native{}.Package(context.Background(), out, codec, []Entry{
				{Dir: dir, Name: "site.sql"},
				{Dir: dir, Name: "site"},
			})
			require.NoError(t, err)

			assert.Equal(t, []string{"site.sql", "site/", "site/a.txt", "site/link"}, members(t, out, codec))
		})
	}
}

func TestNativeMissingEntryRemovesArchive(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.tar.gz")

	err := Native{}.Package(context.Background(), out, types.CodecGzip, []Entry{{Dir: dir, Name: "missing"}})
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NoFileExists(t, out)
}

func TestTarCommandArgs(t *testing.T) {
	entries := []Entry{
		{Dir: "/tmp", Name: "example.com.sql"},
		{Dir: "/var/www", Name: "example"},
	}

	tests := []struct {
		codec   types.Codec
		verbose bool
		mode    string
	}{
		{types.CodecGzip, false, "-czf"},
		{types.CodecBzip2, false, "-cjf"},
		{types.CodecXZ, true, "-cJvf"},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			tc := &TarCommand{Verbose: tt.verbose}
			assert.Equal(t, []string{
				tt.mode, "/tmp/example.com.tar." + tt.codec.Extension(),
				"-C", "/tmp", "example.com.sql",
				"-C", "/var/www", "example",
			}, tc.Args("/tmp/example.com.tar."+tt.codec.Extension(), tt.codec, entries))
		})
	}
}

func TestTarCommandPackage(t *testing.T) {
	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar not available")
	}

	f := newFixture(t, types.CodecGzip)
	f.archive.WithPackager(&TarCommand{Verbose: true})

	artifact, err := f.archive.Archive(context.Background(), "example.com", f.inst, &fakeExporter{})
	require.NoError(t, err)
	assert.True(t, artifact.Verified())
	assert.Contains(t, members(t, artifact.ArchivePath, types.CodecGzip), "example/wp-config.php")
}

func TestTarCommandFailure(t *testing.T) {
	tc := &TarCommand{Binary: filepath.Join(t.TempDir(), "no-such-tar")}
	err := tc.Package(context.Background(), "/tmp/x.tar.gz", types.CodecGzip, nil)
	assert.Error(t, err)
}

func members(t *testing.T, path string, codec types.Codec) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var r io.Reader
	switch codec {
	case types.CodecGzip:
		gz, err := gzip.NewReader(f)
		require.NoError(t, err)
		r = gz
	case types.CodecBzip2:
		bz, err := bzip2.NewReader(f, nil)
		require.NoError(t, err)
		r = bz
	case types.CodecXZ:
		xr, err := xz.NewReader(f)
		require.NoError(t, err)
		r = xr
	}

	var names []string
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	sort.Strings(names)
	return names
}
