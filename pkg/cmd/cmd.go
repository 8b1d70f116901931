package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wp-updater/wp-updater/pkg/bulk"
	"github.com/wp-updater/wp-updater/pkg/locator"
	"github.com/wp-updater/wp-updater/pkg/notify"
	"github.com/wp-updater/wp-updater/pkg/report"
	"github.com/wp-updater/wp-updater/pkg/types"
)

const envPrefix = "wpupdater"

// RunFunc processes a validated run.
type RunFunc func(ctx context.Context, opts *types.Options) error

// NewRootCmd returns the wp-updater command with its locate and mail subcommands.
func NewRootCmd(version string) *cobra.Command {
	return newRootCmd(version, bulk.Run)
}

func newRootCmd(version string, run RunFunc) *cobra.Command {
	if version == "" {
		version = "dev"
	}
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "wp-updater",
		Short: "Find, inventory and update WordPress installations",
		Long: `wp-updater searches a directory tree for WordPress installations, records the
core and plugin update status of each site in a CSV report and, with
--update-all, backs up and upgrades every site after confirmation.`,
		Example: `  wp-updater -t /var/www -d /srv/reports/
  wp-updater -t /var/www -u -c xz --mail -m ops@example.com`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(v, cmd.Flags()); err != nil {
				return err
			}
			if v.GetBool("verbose") {
				log.SetLevel(log.DebugLevel)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := optionsFrom(v)
			if err != nil {
				return err
			}
			if opts.Update {
				log.Info("Starting in update mode...")
			}
			return run(cmd.Context(), opts)
		},
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("target", "t", "./", "Directory to search for WordPress installations")
	flags.StringP("dest", "d", "/tmp/", "Destination for the CSV report and site archives")
	flags.StringP("name", "n", "wp_updates", "Base name of the CSV report")
	flags.StringP("mailto", "m", "root", "Recipient of the report mail")
	flags.Bool("mail", false, "Mail the report after the run")
	flags.BoolP("update-all", "u", false, "Back up and upgrade every site after confirmation")
	flags.StringP("code", "c", "gz", "Archive compression: "+strings.Join(types.CodecNames(), ", "))
	flags.BoolP("verbose", "v", false, "Enable debug level logging and verbose tar output")
	flags.StringP("working-folder", "w", "", "Folder for database exports, defaults to system temp folder")
	flags.String("packager", types.PackagerTar, "Archive packager: 'tar' runs the tar binary, 'native' packages in process")
	flags.String("wp-cli", "wp", "wp-cli binary")
	flags.String("smtp-host", "localhost", "SMTP relay host")
	flags.Int("smtp-port", 25, "SMTP relay port")
	flags.Uint64("mail-retries", 2, "Retries for a failed mail delivery")
	flags.String("summary", "", "Write a YAML run summary to this file")
	flags.String("config", "", "YAML config file with flag values")

	rootCmd.Flags().BoolP("version", "V", false, "Print the version and exit")

	rootCmd.SetFlagErrorFunc(usageError)
	rootCmd.AddCommand(newLocateCmd(v), newMailCmd(v), newSummaryCmd())
	return rootCmd
}

func newLocateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "locate",
		Short: "List the WordPress installations that would be processed",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := locator.New(v.GetString("target"))
			if err != nil {
				return &types.ConfigurationError{Field: "target", Value: v.GetString("target"), Err: err}
			}
			log.Debugf("Searching %s", loc.Root())

			out := cmd.OutOrStdout()
			for inst := range loc.Installations() {
				fmt.Fprintf(out, "%s\t%s\n", inst.Path, inst.ConfigFile)
			}
			for _, p := range loc.Skipped() {
				log.Warnf("Could not read %s", p)
			}
			return nil
		},
	}
}

func newMailCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "mail",
		Short: "Mail the most recent report",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			v.Set("mail", true)
			opts, err := optionsFrom(v)
			if err != nil {
				return err
			}

			path, err := report.Latest(opts.ReportDir, opts.ReportName)
			if err != nil {
				return err
			}
			log.Infof("Mailing %s", path)
			return notify.NewMailer(opts.SMTPHost, opts.SMTPPort, opts.MailRetries).SendReport(cmd.Context(), opts.MailTo, path)
		},
	}
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary FILE",
		Short: "Print the site table of a run summary written with --summary",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := bulk.ReadSummary(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run of %s from %s to %s\n", s.Target, s.Started.Format(time.RFC3339), s.Finished.Format(time.RFC3339))
			if s.Report != "" {
				fmt.Fprintf(out, "Report: %s\n", s.Report)
			}
			for _, p := range s.Skipped {
				fmt.Fprintf(out, "Unreadable: %s\n", p)
			}
			if len(s.Sites) == 0 {
				fmt.Fprintln(out, "No WordPress installations found.")
				return nil
			}
			return bulk.WriteSummary(out, s.Sites, !color.NoColor && out == io.Writer(os.Stdout))
		},
	}
}

// loadConfig binds flags, the environment and an optional config file into v.
// Flags set on the command line win over the environment, which wins over the file.
func loadConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return &types.ConfigurationError{Field: "config", Value: path, Err: err}
		}
		log.Debugf("Loaded configuration from %s", path)
	}
	return nil
}

func optionsFrom(v *viper.Viper) (*types.Options, error) {
	opts := &types.Options{
		Target:        v.GetString("target"),
		ReportDir:     v.GetString("dest"),
		ReportName:    v.GetString("name"),
		Update:        v.GetBool("update-all"),
		Codec:         types.Codec(v.GetString("code")),
		Packager:      v.GetString("packager"),
		WorkingFolder: v.GetString("working-folder"),
		WPCLI:         v.GetString("wp-cli"),
		SendMail:      v.GetBool("mail"),
		MailTo:        v.GetString("mailto"),
		SMTPHost:      v.GetString("smtp-host"),
		SMTPPort:      v.GetInt("smtp-port"),
		MailRetries:   v.GetUint64("mail-retries"),
		SummaryFile:   v.GetString("summary"),
		Verbose:       v.GetBool("verbose"),
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// ExitCode maps an error returned by the root command to a process exit code.
func ExitCode(err error) int {
	var cfgErr *types.ConfigurationError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &cfgErr):
		return 2
	default:
		return 1
	}
}

// usageError marks bad flags and arguments as configuration errors.
func usageError(_ *cobra.Command, err error) error {
	return &types.ConfigurationError{Err: err}
}

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError(cmd, err)
		}
		return nil
	}
}
