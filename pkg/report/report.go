// Package report writes and reads the per-run inventory report.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// TimestampLayout is the time suffix appended to report file names.
const TimestampLayout = "20060102-150405"

// Header is the first record of every report.
var Header = []string{"Site name", "Plugin", "Version", "Upgradeable"}

// ErrNoReport is returned by Latest when no report matches.
var ErrNoReport = errors.New("no report found")

// Row is one report record. An identity row carries only Site; component
// rows leave Site empty and fill the remaining columns.
type Row struct {
	Site        string
	Component   string
	Version     string
	Upgradeable string
}

// IsIdentity reports whether the row opens a new site block.
func (r Row) IsIdentity() bool {
	return r.Component == "" && r.Site != ""
}

// UpdateAvailable parses the Upgradeable column. Core rows carry an update
// type instead of a boolean and report false.
func (r Row) UpdateAvailable() bool {
	ok, err := strconv.ParseBool(r.Upgradeable)
	return err == nil && ok
}

// Record returns the CSV fields for the row.
func (r Row) Record() []string {
	if r.IsIdentity() {
		return []string{r.Site}
	}
	return []string{r.Site, r.Component, r.Version, r.Upgradeable}
}

// Sink accepts report rows as soon as they are known.
type Sink interface {
	AppendSite(site string) error
	AppendComponent(component, version, upgradeable string) error
}

// Writer is an append-only report owned by a single run.
type Writer struct {
	mu   sync.Mutex
	path string
	file *os.File
	csv  *csv.Writer
}

// FileName returns the report file name for a run started at now.
func FileName(name string, now time.Time) string {
	return fmt.Sprintf("%s-%s.csv", name, now.Format(TimestampLayout))
}

// maxCollisions bounds the numbered names tried when runs share a timestamp.
const maxCollisions = 100

// Create opens a new report in dir and writes the header. An existing report is
// never reused: when the timestamped name is taken, a numbered suffix is added.
func Create(dir, name string, now time.Time) (*Writer, error) {
	base := FileName(name, now)
	path := filepath.Join(dir, base)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	for i := 1; os.IsExist(err) && i <= maxCollisions; i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s-%d.csv", base[:len(base)-len(".csv")], i))
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create report")
	}

	w := &Writer{path: path, file: f, csv: csv.NewWriter(f)}
	if err := w.write(Header); err != nil {
		f.Close()
		return nil, err
	}
	log.Debugf("Created report %s", path)
	return w, nil
}

// Path returns the absolute report path.
func (w *Writer) Path() string {
	return w.path
}

func (w *Writer) write(record []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.csv.Write(record); err != nil {
		return errors.Wrapf(err, "failed to write to %s", w.path)
	}
	w.csv.Flush()
	return w.csv.Error()
}

// Append writes a row and flushes it.
func (w *Writer) Append(r Row) error {
	return w.write(r.Record())
}

func (w *Writer) AppendSite(site string) error {
	return w.Append(Row{Site: site})
}

func (w *Writer) AppendComponent(component, version, upgradeable string) error {
	return w.Append(Row{Component: component, Version: version, Upgradeable: upgradeable})
}

// Close flushes and closes the report file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// Read returns the data rows of a report, skipping the header.
func Read(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var rows []Row
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", path)
		}
		if first {
			first = false
			if len(rec) > 0 && rec[0] == Header[0] {
				continue
			}
		}
		for len(rec) < len(Header) {
			rec = append(rec, "")
		}
		rows = append(rows, Row{Site: rec[0], Component: rec[1], Version: rec[2], Upgradeable: rec[3]})
	}
	return rows, nil
}

// Latest returns the most recently modified report named name in dir.
func Latest(dir, name string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, name+"*.csv"))
	if err != nil {
		return "", err
	}

	var (
		latest string
		mtime  time.Time
	)
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil || fi.IsDir() {
			continue
		}
		if latest == "" || fi.ModTime().After(mtime) {
			latest, mtime = m, fi.ModTime()
		}
	}
	if latest == "" {
		return "", errors.Wrapf(ErrNoReport, "%s in %s", name, dir)
	}
	return latest, nil
}
