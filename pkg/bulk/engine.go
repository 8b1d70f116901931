// Package bulk runs the locate, collect, archive and upgrade pipeline over
// every installation under a target directory.
package bulk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/wp-updater/wp-updater/pkg/archive"
	"github.com/wp-updater/wp-updater/pkg/confirm"
	"github.com/wp-updater/wp-updater/pkg/inventory"
	"github.com/wp-updater/wp-updater/pkg/locator"
	"github.com/wp-updater/wp-updater/pkg/notify"
	"github.com/wp-updater/wp-updater/pkg/report"
	"github.com/wp-updater/wp-updater/pkg/types"
	"github.com/wp-updater/wp-updater/pkg/upgrade"
	"github.com/wp-updater/wp-updater/pkg/utils"
	"github.com/wp-updater/wp-updater/pkg/wpcli"
	"golang.org/x/term"
)

// Locator yields accepted installations.
type Locator interface {
	Installations() iter.Seq[types.Installation]
	Skipped() []string
}

type Collector interface {
	Collect(ctx context.Context, inst *types.Installation, sess wpcli.Session) (*inventory.Inventory, error)
}

type Archiver interface {
	Archive(ctx context.Context, site string, inst types.Installation, exp archive.Exporter) (*types.BackupArtifact, error)
}

type Upgrader interface {
	Upgrade(ctx context.Context, site string, sess wpcli.Session) ([]upgrade.Result, error)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Locator   Locator
	Open      func(path string) wpcli.Session
	Collector Collector
	Archiver  Archiver
	Upgrader  Upgrader
	Confirmer confirm.Confirmer
}

// Engine processes installations one at a time.
type Engine struct {
	opts *types.Options
	deps Deps

	// ReportPath is recorded in the run summary.
	ReportPath string

	state   State
	results []SiteResult
	now     func() time.Time
}

func NewEngine(opts *types.Options, deps Deps) *Engine {
	return &Engine{opts: opts, deps: deps, now: time.Now}
}

// State returns the current pipeline state.
func (e *Engine) State() State {
	return e.state
}

// Results returns the per-site outcomes of the last run.
func (e *Engine) Results() []SiteResult {
	return e.results
}

// Run processes every installation, prints a summary and returns the failed
// sites as one aggregated error. A failure at one site never stops the next.
func (e *Engine) Run(ctx context.Context) error {
	started := e.now()
	e.results = nil
	e.state = Locating
	log.Infof("Hello, %s shall be searched to find WP installations...", e.opts.Target)

	for inst := range e.deps.Locator.Installations() {
		if ctx.Err() != nil {
			break
		}
		e.results = append(e.results, e.processSite(ctx, inst))
		e.state = Locating
	}
	e.state = Done

	printSummary(e.results)

	var multiErr *multierror.Error
	if err := ctx.Err(); err != nil {
		multiErr = multierror.Append(multiErr, err)
	}
	for _, res := range e.results {
		if res.Status == StatusFailed {
			name := res.Site
			if name == "" {
				name = res.Path
			}
			multiErr = multierror.Append(multiErr, fmt.Errorf("%s: %w", name, res.Err))
		}
	}

	if e.opts.SummaryFile != "" {
		summary := &RunSummary{
			APIVersion: "wp-updater/v1",
			Kind:       "RunSummary",
			Started:    started,
			Finished:   e.now(),
			Target:     e.opts.Target,
			Report:     e.ReportPath,
			UpdateMode: e.opts.Update,
			Skipped:    e.deps.Locator.Skipped(),
			Sites:      e.results,
		}
		if err := writeSummary(e.opts.SummaryFile, summary); err != nil {
			multiErr = multierror.Append(multiErr, err)
		}
	}

	log.Infof("Processed %d installation(s).", len(e.results))
	return multiErr.ErrorOrNil()
}

func (e *Engine) processSite(ctx context.Context, inst types.Installation) SiteResult {
	res := SiteResult{Path: inst.Path}
	entry := log.WithField("path", inst.Path)
	fail := func(err error) SiteResult {
		res.State = e.state
		res.Status = StatusFailed
		res.Err = err
		res.Details = err.Error()
		entry.Errorf("%s failed: %v", e.state, err)
		return res
	}
	skip := func(reason string) SiteResult {
		res.State = e.state
		res.Status = StatusSkipped
		res.Details = reason
		entry.Warnf("Skipping remaining steps for %s: %s", res.Site, reason)
		return res
	}

	sess := e.deps.Open(inst.Path)

	e.state = Collecting
	entry.Info("Getting plugins...")
	inv, err := e.deps.Collector.Collect(ctx, &inst, sess)
	res.Site = inst.Site
	if inv != nil {
		res.PendingUpdates = inv.PendingUpdates()
	}
	if err != nil {
		return fail(err)
	}
	if !e.opts.Update {
		res.State = e.state
		res.Status = StatusCollected
		return res
	}

	e.state = ConfirmArchive
	if reason, ok := e.confirm(confirm.ArchivePrompt); !ok {
		return skip(reason)
	}

	e.state = Archiving
	artifact, err := e.deps.Archiver.Archive(ctx, inst.Site, inst, sess)
	if artifact != nil {
		res.Archive = artifact.ArchivePath
	}
	if err != nil {
		return fail(err)
	}
	if !artifact.Verified() {
		return fail(&types.ArchiveVerificationError{
			Site:           inst.Site,
			ArchivePath:    artifact.ArchivePath,
			DumpPath:       artifact.DumpPath,
			ArchivePresent: artifact.ArchivePresent,
			DumpAbsent:     artifact.DumpAbsent,
		})
	}
	res.Status = StatusArchived

	e.state = ConfirmUpgrade
	if reason, ok := e.confirm(confirm.UpgradePrompt); !ok {
		return skip(reason)
	}

	e.state = Upgrading
	steps, err := e.deps.Upgrader.Upgrade(ctx, inst.Site, sess)
	var failed []string
	for _, step := range steps {
		sr := StepResult{Step: step.Step}
		if step.Err != nil {
			sr.Error = step.Err.Error()
			failed = append(failed, step.Step)
		}
		res.Steps = append(res.Steps, sr)
	}
	if err != nil {
		out := fail(err)
		if len(failed) > 0 {
			out.Details = fmt.Sprintf("%d of %d steps failed: %s", len(failed), len(steps), strings.Join(failed, ", "))
		}
		return out
	}
	res.State = e.state
	res.Status = StatusUpgraded
	return res
}

// confirm returns false with a reason when the operator declines or cannot
// be asked.
func (e *Engine) confirm(message string) (string, bool) {
	ok, err := e.deps.Confirmer.Confirm(message)
	switch {
	case errors.Is(err, confirm.ErrNotInteractive):
		return "not running in a terminal", false
	case err != nil:
		return err.Error(), false
	case !ok:
		return types.ErrConfirmationDeclined.Error(), false
	}
	return "", true
}

var statusColors = map[string]func(format string, a ...interface{}) string{
	StatusCollected: color.CyanString,
	StatusArchived:  color.YellowString,
	StatusUpgraded:  color.GreenString,
	StatusSkipped:   color.YellowString,
	StatusFailed:    color.RedString,
}

func printSummary(results []SiteResult) {
	if len(results) == 0 {
		log.Warn("No WordPress installations found.")
		return
	}

	var buf bytes.Buffer
	if err := WriteSummary(&buf, results, logColor()); err != nil {
		log.Warnf("Failed to render summary: %v", err)
		return
	}
	log.Infof("\n\n--- Update Summary ---\n%s", buf.String())
}

// logColor reports whether the log output is a terminal that takes colour.
func logColor() bool {
	if color.NoColor {
		return false
	}
	f, ok := log.StandardLogger().Out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// WriteSummary renders results as an aligned table. The status leads each row
// so colour can be applied after alignment without shifting the columns.
func WriteSummary(out io.Writer, results []SiteResult, colorize bool) error {
	var buf bytes.Buffer
	writer := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintln(writer, "STATUS\tSITE\tPATH\tSTATE\tUPDATES\tDETAILS")
	for _, res := range results {
		details := "OK"
		if res.Details != "" {
			details = res.Details
		} else if res.Archive != "" {
			details = res.Archive
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%d\t%s\n", res.Status, res.Site, res.Path, res.State, res.PendingUpdates, details)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	lines := strings.SplitAfter(buf.String(), "\n")
	for i, line := range lines {
		if colorize && i > 0 && i <= len(results) {
			status := results[i-1].Status
			if paint, ok := statusColors[status]; ok && strings.HasPrefix(line, status) {
				line = paint("%s", status) + line[len(status):]
			}
		}
		if _, err := io.WriteString(out, line); err != nil {
			return err
		}
	}
	return nil
}

// Run wires the production collaborators for opts and processes the target.
// The report created here is the one mailed when opts.SendMail is set.
func Run(ctx context.Context, opts *types.Options) error {
	loc, err := locator.New(opts.Target)
	if err != nil {
		return err
	}
	log.Debugf("Searching %s", loc.Root())

	for _, dir := range []string{opts.ReportDir, opts.WorkingFolder} {
		if created, err := utils.EnsureDir(dir, 0o755); err != nil {
			return fmt.Errorf("failed to prepare %s: %w", dir, err)
		} else if created {
			log.Debugf("Created %s", dir)
		}
	}

	w, err := report.Create(opts.ReportDir, opts.ReportName, time.Now())
	if err != nil {
		return err
	}
	log.Debugf("Writing report to %s", w.Path())

	engine := NewEngine(opts, Deps{
		Locator: loc,
		Open: func(path string) wpcli.Session {
			return wpcli.Open(path, wpcli.WithBinary(opts.WPCLI))
		},
		Collector: inventory.NewCollector(w),
		Archiver:  archive.New(opts),
		Upgrader:  upgrade.NewExecutor(),
		Confirmer: confirm.NewSurvey(),
	})
	engine.ReportPath = w.Path()

	var multiErr *multierror.Error
	if err := engine.Run(ctx); err != nil {
		multiErr = multierror.Append(multiErr, err)
	}
	if err := w.Close(); err != nil {
		multiErr = multierror.Append(multiErr, err)
	}

	if opts.SendMail {
		mailer := notify.NewMailer(opts.SMTPHost, opts.SMTPPort, opts.MailRetries)
		if err := mailer.SendReport(ctx, opts.MailTo, w.Path()); err != nil {
			multiErr = multierror.Append(multiErr, err)
		}
	}
	return multiErr.ErrorOrNil()
}
