package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"FinSense/internal/domain/models"
	"FinSense/internal/services/learner"
	"FinSense/internal/usecase"
)

type learnerAPI interface {
	Setup(ctx context.Context, p models.RetrainParams, force bool, progress learner.ProgressFunc) (*models.SetupRecord, *models.RetrainResult, error)
	ExecuteRetraining(ctx context.Context, p models.RetrainParams, progress learner.ProgressFunc) *models.RetrainResult
	CheckAndRetrain(ctx context.Context) *models.RetrainResult
	ShouldRetrain(ctx context.Context) models.RetrainDecision
	LearningStats(ctx context.Context) models.LearningStats
}

type modelAPI interface {
	ListVersions() ([]models.ModelVersion, error)
	ActiveVersion() string
	Activate(version string) error
}

type trackerAPI interface {
	Verify(ctx context.Context, symbol string, price float64, lookback time.Duration) models.VerificationSummary
	RecentAccuracy(ctx context.Context, symbol string, days int) models.AccuracyWindow
}

type enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

type deps struct {
	learner learnerAPI
	models  modelAPI
	tracker trackerAPI
	jobs    enqueuer
}

type opener func(configPath string) (*deps, func(), error)

var errQueueDisabled = errors.New("queue is disabled, enable redis and queue in config")

type cli struct {
	open       opener
	configPath string
	d          *deps
	cleanup    func()
}

// newRootCmd builds the command tree. The returned func releases whatever
// the opener acquired and is safe to call when nothing was opened.
func newRootCmd(open opener) (*cobra.Command, func()) {
	c := &cli{open: open}
	root := &cobra.Command{
		Use:           "finsensectl",
		Short:         "Train, inspect and verify FinSense sentiment models",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			d, cleanup, err := c.open(c.configPath)
			if err != nil {
				return err
			}
			c.d, c.cleanup = d, cleanup
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "config/config.yaml", "config file path")

	root.AddCommand(
		c.setupCmd(),
		c.trainCmd(),
		c.retrainCmd(),
		c.checkCmd(),
		c.decisionCmd(),
		c.statsCmd(),
		c.versionsCmd(),
		c.activateCmd(),
		c.verifyCmd(),
		c.accuracyCmd(),
	)
	return root, func() {
		if c.cleanup != nil {
			c.cleanup()
		}
	}
}

type trainFlags struct {
	symbol    string
	timeframe string
	bars      int
	tuning    bool
}

func (f *trainFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.symbol, "symbol", "", "instrument (default from config)")
	cmd.Flags().StringVar(&f.timeframe, "timeframe", "", "timeframe (default from config)")
	cmd.Flags().IntVar(&f.bars, "bars", 0, "number of bars to train on (default from config)")
	cmd.Flags().BoolVar(&f.tuning, "tuning", false, "search hyperparameters before the final fit")
}

func (f *trainFlags) params(trigger models.RetrainTrigger) models.RetrainParams {
	return models.RetrainParams{
		Symbol:    f.symbol,
		Timeframe: f.timeframe,
		Bars:      f.bars,
		Tuning:    f.tuning,
		Trigger:   trigger,
	}
}

func (c *cli) setupCmd() *cobra.Command {
	var f trainFlags
	var force bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Run the one-time initial training",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, res, err := c.d.learner.Setup(cmd.Context(), f.params(models.TriggerSetup), force, progressPrinter(cmd.ErrOrStderr()))
			if err != nil {
				if res != nil {
					_ = printJSON(cmd.OutOrStdout(), res)
				}
				return err
			}
			if res == nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "setup already completed, use --force to retrain")
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	f.bind(cmd)
	cmd.Flags().BoolVar(&force, "force", false, "train again even when setup was already completed")
	return cmd
}

func (c *cli) trainCmd() *cobra.Command {
	var f trainFlags
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Retrain the model now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := c.d.learner.ExecuteRetraining(cmd.Context(), f.params(models.TriggerManual), progressPrinter(cmd.ErrOrStderr()))
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("retraining failed: %s", res.Error)
			}
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

func (c *cli) retrainCmd() *cobra.Command {
	var f trainFlags
	var async bool
	cmd := &cobra.Command{
		Use:   "retrain",
		Short: "Retrain the model, optionally through the job queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := f.params(models.TriggerManual)
			if !async {
				res := c.d.learner.ExecuteRetraining(cmd.Context(), p, progressPrinter(cmd.ErrOrStderr()))
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("retraining failed: %s", res.Error)
				}
				return nil
			}
			if c.d.jobs == nil {
				return errQueueDisabled
			}
			if err := c.d.jobs.Enqueue(cmd.Context(), usecase.RetrainJobType, p); err != nil {
				return fmt.Errorf("enqueue retrain: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "retrain job queued")
			return nil
		},
	}
	f.bind(cmd)
	cmd.Flags().BoolVar(&async, "async", false, "enqueue onto the Redis job queue instead of training here")
	return cmd
}

func (c *cli) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Evaluate the retrain decision and retrain when needed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d := c.d.learner.ShouldRetrain(cmd.Context())
			if err := printJSON(cmd.OutOrStdout(), d); err != nil {
				return err
			}
			if !d.ShouldRetrain {
				return nil
			}
			res := c.d.learner.CheckAndRetrain(cmd.Context())
			if res == nil {
				return nil
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func (c *cli) decisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decision",
		Short: "Show whether the model should be retrained and why",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), c.d.learner.ShouldRetrain(cmd.Context()))
		},
	}
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show learning statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), c.d.learner.LearningStats(cmd.Context()))
		},
	}
}

func (c *cli) versionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List saved model versions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vs, err := c.d.models.ListVersions()
			if err != nil {
				return fmt.Errorf("list versions: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(vs) == 0 {
				fmt.Fprintln(out, "no model versions")
				return nil
			}
			for _, v := range vs {
				mark := " "
				if v.Active {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %-32s acc=%.4f cv=%.4f %s\n",
					mark, v.Version, v.TestAccuracy, v.CVMean, v.TrainingDate.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func (c *cli) activateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <version>",
		Short: "Make a saved version the active model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.d.models.Activate(args[0]); err != nil {
				return fmt.Errorf("activate %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "active model: %s\n", c.d.models.ActiveVersion())
			return nil
		},
	}
}

func (c *cli) verifyCmd() *cobra.Command {
	var (
		symbol   string
		price    float64
		lookback time.Duration
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify due predictions against a price",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if symbol == "" || price <= 0 {
				return errors.New("--symbol and a positive --price are required")
			}
			return printJSON(cmd.OutOrStdout(), c.d.tracker.Verify(cmd.Context(), symbol, price, lookback))
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "instrument")
	cmd.Flags().Float64Var(&price, "price", 0, "current price")
	cmd.Flags().DurationVar(&lookback, "lookback", 192*time.Hour, "only consider predictions created within this window, 0 for all")
	return cmd
}

func (c *cli) accuracyCmd() *cobra.Command {
	var (
		symbol string
		days   int
	)
	cmd := &cobra.Command{
		Use:   "accuracy",
		Short: "Show accuracy of verified predictions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days <= 0 {
				return errors.New("--days must be positive")
			}
			return printJSON(cmd.OutOrStdout(), c.d.tracker.RecentAccuracy(cmd.Context(), symbol, days))
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "instrument, empty for all")
	cmd.Flags().IntVar(&days, "days", 7, "window in days")
	return cmd
}

func progressPrinter(w io.Writer) learner.ProgressFunc {
	return func(stage string, progress float64) {
		fmt.Fprintf(w, "%-24s %3.0f%%\n", stage, progress*100)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
