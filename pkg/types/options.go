package types

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Packager names accepted by --packager.
const (
	PackagerTar    = "tar"
	PackagerNative = "native"
)

// Options contains the settings for one wp-updater run.
type Options struct {
	// Discovery and report
	Target     string
	ReportDir  string
	ReportName string

	// Update mode
	Update        bool
	Codec         Codec
	Packager      string
	WorkingFolder string
	WPCLI         string

	// Mail delivery
	SendMail    bool
	MailTo      string
	SMTPHost    string
	SMTPPort    int
	MailRetries uint64

	// Output
	SummaryFile string
	Verbose     bool
}

// Validate checks the option values and resolves paths to absolute form.
func (o *Options) Validate() error {
	if o.Target == "" {
		return &ConfigurationError{Field: "target", Err: errors.New("a target directory is required")}
	}
	target, err := filepath.Abs(o.Target)
	if err != nil {
		return &ConfigurationError{Field: "target", Value: o.Target, Err: err}
	}
	st, err := os.Stat(target)
	if err != nil {
		return &ConfigurationError{Field: "target", Value: o.Target, Err: err}
	}
	if !st.IsDir() {
		return &ConfigurationError{Field: "target", Value: o.Target, Err: errors.New("not a directory")}
	}
	o.Target = target

	if o.ReportDir == "" {
		return &ConfigurationError{Field: "dest", Err: errors.New("a destination directory is required")}
	}
	if o.ReportDir, err = filepath.Abs(o.ReportDir); err != nil {
		return &ConfigurationError{Field: "dest", Value: o.ReportDir, Err: err}
	}
	if o.ReportName == "" {
		return &ConfigurationError{Field: "name", Err: errors.New("a report name is required")}
	}

	if o.Codec == "" {
		o.Codec = CodecGzip
	}
	codec, err := ParseCodec(string(o.Codec))
	if err != nil {
		return err
	}
	o.Codec = codec

	switch o.Packager {
	case "":
		o.Packager = PackagerTar
	case PackagerTar, PackagerNative:
	default:
		return &ConfigurationError{
			Field: "packager",
			Value: o.Packager,
			Err:   fmt.Errorf("must be %q or %q", PackagerTar, PackagerNative),
		}
	}

	if o.WorkingFolder == "" {
		o.WorkingFolder = os.TempDir()
	}
	if o.WorkingFolder, err = filepath.Abs(o.WorkingFolder); err != nil {
		return &ConfigurationError{Field: "working-folder", Value: o.WorkingFolder, Err: err}
	}
	if o.WPCLI == "" {
		o.WPCLI = "wp"
	}

	if o.SendMail {
		if o.MailTo == "" {
			return &ConfigurationError{Field: "mailto", Err: errors.New("a recipient is required when --mail is set")}
		}
		if o.SMTPPort <= 0 || o.SMTPPort > 65535 {
			return &ConfigurationError{Field: "smtp-port", Value: fmt.Sprint(o.SMTPPort), Err: errors.New("out of range")}
		}
	}
	return nil
}
