package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/saworbit/vmdebug/pkg/journal"
	"github.com/saworbit/vmdebug/pkg/narrative"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect runs recorded with --state-dir",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List recorded runs in recording order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runHistoryList(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "show <job-id>",
			Short: "Replay the transcript of the latest run with a job id",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runHistoryShow(cmd.OutOrStdout(), args[0])
			},
		},
		&cobra.Command{
			Use:   "verify",
			Short: "Check recorded runs share the current narrative and ordered job ids",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runHistoryVerify(cmd.OutOrStdout())
			},
		},
		newHistoryExportCmd(a),
	)
	return cmd
}

func newHistoryExportCmd(a *app) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export --out <file.jsonl.xz>",
		Short: "Write all run records as xz-compressed JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return fmt.Errorf("out path is required")
			}
			return a.runHistoryExport(cmd.OutOrStdout(), outPath)
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "Destination file")
	return cmd
}

func (a *app) runHistoryList(out io.Writer) error {
	j, err := a.openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.List()
	if err != nil {
		return err
	}

	for _, rec := range runs {
		recorded := time.Unix(0, rec.RecordedAt).UTC().Format(time.RFC3339)
		if _, err := fmt.Fprintf(out, "%s\t%s\t%d lines\t%s\n", rec.JobID, recorded, rec.Lines, rec.Fingerprint); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) runHistoryShow(out io.Writer, jobID string) error {
	j, err := a.openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.Latest(jobID)
	if err != nil {
		return err
	}

	_, err = out.Write(rec.Transcript)
	return err
}

func (a *app) runHistoryVerify(out io.Writer) error {
	fp, err := narrative.Fingerprint()
	if err != nil {
		return err
	}

	j, err := a.openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.List()
	if err != nil {
		return err
	}

	problems := verifyRuns(runs, fp)
	for _, p := range problems {
		a.logger.Named("cli").Warn("history check failed", zap.String("detail", p))
		if _, err := fmt.Fprintln(out, p); err != nil {
			return err
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%d of %d recorded runs failed verification", len(problems), len(runs))
	}

	_, err = fmt.Fprintf(out, "verified %d runs\n", len(runs))
	return err
}

// verifyRuns returns one message per run that carries a different narrative
// or whose job id is earlier than the run recorded before it.
func verifyRuns(runs []journal.RunRecord, fingerprint string) []string {
	var problems []string
	var prev int64

	for i, rec := range runs {
		if rec.Fingerprint != fingerprint {
			problems = append(problems, fmt.Sprintf("%s: narrative fingerprint %s, want %s", rec.JobID, rec.Fingerprint, fingerprint))
			continue
		}

		secs, err := narrative.JobUnix(rec.JobID)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if secs != rec.Unix {
			problems = append(problems, fmt.Sprintf("%s: recorded unix %d does not match job id", rec.JobID, rec.Unix))
			continue
		}
		if i > 0 && secs < prev {
			problems = append(problems, fmt.Sprintf("%s: job id earlier than previous run (%d < %d)", rec.JobID, secs, prev))
		}
		prev = secs
	}
	return problems
}

func (a *app) runHistoryExport(out io.Writer, outPath string) error {
	j, err := a.openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}

	n, err := j.Export(f)
	if closeErr := f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", outPath, err)
	}

	_, err = fmt.Fprintf(out, "exported %d runs to %s\n", n, outPath)
	return err
}
