package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/saworbit/vmdebug/internal/logging"
	"github.com/saworbit/vmdebug/internal/metrics"
	"github.com/saworbit/vmdebug/internal/version"
	"github.com/saworbit/vmdebug/pkg/config"
	"github.com/saworbit/vmdebug/pkg/journal"
	"github.com/saworbit/vmdebug/pkg/narrative"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.LoadFromEnv(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:          "vmdebug",
		Short:        "Print the VM creation / root volume timing race scenario",
		Version:      version.Version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runNarrative(cmd.OutOrStdout(), time.Now())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.StateDir, "state-dir", a.cfg.StateDir, "Directory for the run journal (disabled when empty)")
	flags.StringVar(&a.cfg.MetricsFile, "metrics-file", a.cfg.MetricsFile, "Write Prometheus textfile metrics here after the run")
	flags.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "Log level for stderr output")
	flags.BoolVar(&a.cfg.LogJSON, "log-json", a.cfg.LogJSON, "Log as JSON")

	root.AddCommand(newHistoryCmd(a))
	return root
}

func (a *app) setup(stderr io.Writer) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	level, err := a.cfg.Level()
	if err != nil {
		return err
	}

	a.logger = logging.New(stderr, level, a.cfg.LogJSON)
	// The API base is reported only. Nothing in vmdebug dials it.
	a.logger.Named("cli").Debug("configuration loaded",
		zap.String("api_base", a.cfg.APIBase),
		zap.String("state_dir", a.cfg.StateDir),
		zap.String("metrics_file", a.cfg.MetricsFile),
	)
	metrics.SetInfo(version.Version)
	return nil
}

// runNarrative prints the scenario, then performs the opt-in side effects.
// A side-effect failure is returned after the narrative is already out.
func (a *app) runNarrative(out io.Writer, now time.Time) error {
	log := a.logger.Named("cli")

	res, err := narrative.Run(out, now)
	jobUnix, _ := narrative.JobUnix(res.Request.FailoverJobID)
	metrics.ObserveRun(now, res.Lines, jobUnix, err)
	if err != nil {
		return err
	}
	log.Debug("narrative printed", zap.String("job_id", res.Request.FailoverJobID), zap.Int("lines", res.Lines))

	var errs []error
	if a.cfg.JournalEnabled() {
		err := a.record(res, jobUnix)
		metrics.ObserveJournal(err)
		if err != nil {
			log.Error("journal write failed", zap.Error(err))
			errs = append(errs, err)
		}
	}

	if a.cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
			log.Error("metrics textfile failed", zap.Error(err))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (a *app) record(res narrative.Result, jobUnix int64) error {
	fp, err := narrative.Fingerprint()
	if err != nil {
		return err
	}

	j, err := journal.Open(a.cfg.StateDir, a.logger.Named("journal"))
	if err != nil {
		return err
	}

	appendErr := j.Append(journal.RunRecord{
		JobID:       res.Request.FailoverJobID,
		Unix:        jobUnix,
		Fingerprint: fp,
		Lines:       res.Lines,
		Transcript:  res.Transcript,
	})
	if err := j.Close(); err != nil && appendErr == nil {
		appendErr = err
	}
	return appendErr
}

func (a *app) openJournal() (*journal.Journal, error) {
	if !a.cfg.JournalEnabled() {
		return nil, fmt.Errorf("state-dir is required")
	}
	return journal.Open(a.cfg.StateDir, a.logger.Named("journal"))
}
