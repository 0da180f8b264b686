package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phobologic/testlink/internal/coverage"
	"github.com/phobologic/testlink/internal/model"
	"github.com/phobologic/testlink/internal/modifier"
	"github.com/phobologic/testlink/internal/resolver"
	"github.com/phobologic/testlink/internal/validator"
	"github.com/phobologic/testlink/internal/watch"
)

func newValidateCmd(o *options) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that every link is declared on both sides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.load(cmd.Context())
			if err != nil {
				return err
			}
			report := s.validate()
			if err := o.render(report); err != nil {
				return err
			}
			return checkReport(report, strict)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on warnings too")
	return cmd
}

func checkReport(r *model.Report, strict bool) error {
	if !r.Valid {
		return fmt.Errorf("%w: %d error(s)", errValidationFailed, r.ErrorCount())
	}
	if strict && r.WarningCount() > 0 {
		return fmt.Errorf("%w: %d warning(s) in strict mode", errValidationFailed, r.WarningCount())
	}
	return nil
}

// resolveOutput is what resolve prints: the plan and what applying it did.
type resolveOutput struct {
	Resolution *model.Resolution  `json:"resolution"`
	Result     *model.ApplyResult `json:"result"`
}

func newResolveCmd(o *options) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "resolve [marker]",
		Short: "Replace @placeholder markers with concrete references",
		Long: `Pairs every production occurrence of a marker with every test occurrence
and rewrites each occurrence in place. With a marker argument only that marker
is resolved.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.load(cmd.Context())
			if err != nil {
				return err
			}

			var res *model.Resolution
			if len(args) == 1 {
				res, err = resolver.ResolveMarker(s.placeholders, args[0])
				if err != nil {
					return err
				}
			} else {
				res = resolver.Resolve(s.placeholders)
			}

			applied, err := modifier.New(s.root, o.logger).Apply(res.Actions, dryRun)
			if err != nil {
				return err
			}
			if err := o.render(resolveOutput{Resolution: res, Result: applied}); err != nil {
				return err
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("%w: %d error(s)", errResolutionFailed, len(res.Errors))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "report changes without writing files")
	return cmd
}

func newSyncCmd(o *options) *cobra.Command {
	var opts modifier.SyncOptions
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Add missing #[TestedBy] declarations to production methods",
		Long: `Adds a #[TestedBy] attribute for every test that covers a method without
one. With --prune it also removes #[TestedBy] attributes no test links back to;
pruning requires --force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.load(cmd.Context())
			if err != nil {
				return err
			}
			plan := validator.PlanSync(s.links, s.project)
			o.logger.Debug("sync plan", zap.Int("actions", len(plan)))

			res, err := modifier.New(s.root, o.logger).Sync(plan, opts)
			if err != nil {
				return err
			}
			return o.render(res)
		},
	}
	cmd.Flags().BoolVarP(&opts.DryRun, "dry-run", "n", false, "report changes without writing files")
	cmd.Flags().BoolVar(&opts.Prune, "prune", false, "remove #[TestedBy] declarations without a linking test")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "confirm --prune")
	return cmd
}

func newReportCmd(o *options) *cobra.Command {
	var (
		filter    string
		top       int
		uncovered bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "List production methods with the tests linked to them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.load(cmd.Context())
			if err != nil {
				return err
			}
			rows := coverage.Build(s.links, s.project.ProductionMethods())
			if filter != "" {
				rows = coverage.FilterByMethod(rows, filter)
			}
			if uncovered {
				rows = coverage.Uncovered(rows)
			}
			rows = coverage.SelectTop(rows, top)
			if rows == nil {
				rows = []model.MethodCoverage{}
			}
			return o.render(rows)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "only methods whose identifier contains this text")
	cmd.Flags().IntVarP(&top, "top", "n", 0, "limit to the first n methods")
	cmd.Flags().BoolVar(&uncovered, "uncovered", false, "only methods without a covering test")
	return cmd
}

func newWatchCmd(o *options) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-validate whenever a PHP file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := o.load(ctx)
			if err != nil {
				return err
			}
			if err := o.render(s.validate()); err != nil {
				return err
			}

			dirs := append(append([]string(nil), s.cfg.Production...), s.cfg.Tests...)
			w, err := watch.New(watch.Config{Root: s.root, Dirs: dirs, Debounce: debounce, Logger: o.logger})
			if err != nil {
				return err
			}
			o.logger.Info("watching for changes", zap.String("root", s.root), zap.Strings("dirs", dirs))
			return w.Run(ctx, func(ctx context.Context) error {
				if err := s.scan(ctx, o.logger); err != nil {
					return err
				}
				return o.render(s.validate())
			})
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "wait this long for more changes before re-validating")
	return cmd
}
