// Package upgrade applies core and plugin updates to one site.
package upgrade

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/wp-updater/wp-updater/pkg/wpcli"
)

// Step names, in execution order.
const (
	StepPlugins   = "plugin update --all"
	StepCore      = "core update"
	StepCoreDB    = "core update-db"
	StepChecksums = "core verify-checksums"
)

// Result is the outcome of one upgrade step.
type Result struct {
	Step string
	Err  error
}

type step struct {
	name string
	run  func(context.Context) error
}

// Executor runs the upgrade sequence. It never rolls back.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

// Upgrade runs every step in order, even after a failure, and returns each
// outcome with the aggregated error.
func (e *Executor) Upgrade(ctx context.Context, site string, sess wpcli.Session) ([]Result, error) {
	entry := log.WithFields(log.Fields{"component": "upgrade", "site": site})
	steps := []step{
		{StepPlugins, sess.UpdatePlugins},
		{StepCore, sess.UpdateCore},
		{StepCoreDB, sess.UpdateCoreDB},
		{StepChecksums, sess.VerifyCoreChecksums},
	}

	var errs *multierror.Error
	results := make([]Result, 0, len(steps))
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			results = append(results, Result{Step: s.name, Err: err})
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}

		entry.Infof("Running %s", s.name)
		err := s.run(ctx)
		results = append(results, Result{Step: s.name, Err: err})
		if err != nil {
			entry.Errorf("%s failed: %v", s.name, err)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return results, errs.ErrorOrNil()
}
