package types

import (
	"errors"
	"fmt"
)

// ErrConfirmationDeclined indicates the operator answered no to a prompt.
var ErrConfirmationDeclined = errors.New("confirmation declined")

// ErrNoSiteName indicates the live configuration did not yield a usable hostname.
var ErrNoSiteName = errors.New("site URL did not resolve to a hostname")

// ConfigurationError is an invalid option value. It is fatal at startup.
// Field is empty for command line usage errors such as an unknown flag.
type ConfigurationError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	if e.Value == "" {
		return fmt.Sprintf("invalid --%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid --%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ArchiveVerificationError reports that an archive postcondition did not hold.
type ArchiveVerificationError struct {
	Site           string
	ArchivePath    string
	DumpPath       string
	ArchivePresent bool
	DumpAbsent     bool
}

func (e *ArchiveVerificationError) Error() string {
	return fmt.Sprintf("archive verification failed for %s: archive %s present=%t, dump %s absent=%t",
		e.Site, e.ArchivePath, e.ArchivePresent, e.DumpPath, e.DumpAbsent)
}
