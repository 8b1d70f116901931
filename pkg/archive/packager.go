package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/dsnet/compress/bzip2"
	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
	"github.com/wp-updater/wp-updater/pkg/types"
	"github.com/wp-updater/wp-updater/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// Entry is one archive member: Name is stored relative to Dir.
type Entry struct {
	Dir  string
	Name string
}

// Packager writes entries into a compressed tarball at path.
type Packager interface {
	Package(ctx context.Context, path string, codec types.Codec, entries []Entry) error
}

// TarCommand packages with an external tar binary.
type TarCommand struct {
	Binary  string
	Verbose bool
}

// Args returns the tar arguments for the given archive.
func (t *TarCommand) Args(path string, codec types.Codec, entries []Entry) []string {
	mode := "-c" + codec.TarFlag()
	if t.Verbose {
		mode += "v"
	}
	args := []string{mode + "f", path}
	for _, e := range entries {
		args = append(args, "-C", e.Dir, e.Name)
	}
	return args
}

func (t *TarCommand) Package(ctx context.Context, path string, codec types.Codec, entries []Entry) error {
	binary := t.Binary
	if binary == "" {
		binary = "tar"
	}
	args := t.Args(path, codec, entries)
	entry := log.WithField("cmd", binary)
	entry.Debugf("Running %s %v", binary, args)

	cmd := exec.CommandContext(ctx, binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", binary, err)
	}

	var eg errgroup.Group
	eg.Go(func() error { return utils.LogPipe(stdout, entry, log.DebugLevel) })
	eg.Go(func() error { return utils.LogPipe(stderr, entry, log.WarnLevel) })
	readErr := eg.Wait()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s failed: %w", binary, err)
	}
	return readErr
}

// Native packages in process with archive/tar and a codec writer.
type Native struct{}

func (Native) Package(_ context.Context, path string, codec types.Codec, entries []Entry) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	cw, err := compressor(f, codec)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(cw)

	for _, e := range entries {
		if err := addTree(tw, e); err != nil {
			return multierror.Append(err, tw.Close(), cw.Close()).ErrorOrNil()
		}
	}
	if err := tw.Close(); err != nil {
		return multierror.Append(err, cw.Close()).ErrorOrNil()
	}
	return cw.Close()
}

func compressor(w io.Writer, codec types.Codec) (io.WriteCloser, error) {
	switch codec {
	case types.CodecGzip:
		return gzip.NewWriter(w), nil
	case types.CodecBzip2:
		return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	case types.CodecXZ:
		return xz.NewWriter(w)
	default:
		return nil, fmt.Errorf("unsupported codec %q", codec)
	}
}

func addTree(tw *tar.Writer, e Entry) error {
	root := filepath.Join(e.Dir, e.Name)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(e.Dir, path)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
}
