// testlink keeps production PHP methods and the tests that verify them linked
// in both directions.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/phobologic/testlink/internal/config"
	"github.com/phobologic/testlink/internal/model"
	"github.com/phobologic/testlink/internal/registry"
	"github.com/phobologic/testlink/internal/scanner"
	"github.com/phobologic/testlink/internal/validator"
)

var version = "dev"

var (
	errValidationFailed = errors.New("validation failed")
	errResolutionFailed = errors.New("placeholder resolution incomplete")
)

const (
	formatText = "text"
	formatJSON = "json"
	formatTOON = "toon"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts := &options{stdout: stdout, stderr: stderr}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if opts.logger != nil {
		_ = opts.logger.Sync()
	}
	return err
}

// options holds the persistent flags and the values derived from them.
type options struct {
	root       string
	configPath string
	format     string
	verbose    bool

	stdout io.Writer
	stderr io.Writer
	logger *zap.Logger
}

func newRootCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "testlink",
		Short: "Keep PHP methods and their tests linked in both directions",
		Long: `testlink reads #[TestedBy], #[LinksAndCovers], #[Links], ->linksAndCovers()
and @see declarations from a PHP project, checks that every link is declared on
both sides, and rewrites @placeholder markers into concrete references.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return opts.setup()
		},
	}
	cmd.SetVersionTemplate("testlink {{.Version}}\n")
	cmd.SetOut(opts.stdout)
	cmd.SetErr(opts.stderr)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.root, "root", "C", ".", "project root")
	flags.StringVar(&opts.configPath, "config", "", "config file (default <root>/"+config.FileName+")")
	flags.StringVarP(&opts.format, "format", "f", formatText, "output format: text, json or toon")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newValidateCmd(opts),
		newResolveCmd(opts),
		newSyncCmd(opts),
		newReportCmd(opts),
		newInitCmd(opts),
		newWatchCmd(opts),
	)
	return cmd
}

func (o *options) setup() error {
	switch o.format {
	case formatText, formatJSON, formatTOON:
	default:
		return fmt.Errorf("unsupported format %q (want text, json or toon)", o.format)
	}
	o.logger = newLogger(o.stderr, o.verbose)
	return nil
}

func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(zapcore.AddSync(w)), level)
	return zap.New(core)
}

func (o *options) resolveRoot() (string, error) {
	root, err := filepath.Abs(o.root)
	if err != nil {
		return "", fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: not a directory", root)
	}
	return root, nil
}

// session is one scanned project with its populated registries.
type session struct {
	root         string
	cfg          *config.Config
	project      *scanner.Project
	links        *registry.Links
	tags         *registry.Tags
	placeholders *registry.Placeholders
}

func (o *options) load(ctx context.Context) (*session, error) {
	root, err := o.resolveRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root, o.configPath)
	if err != nil {
		return nil, err
	}
	s := &session{root: root, cfg: cfg, links: registry.NewLinks()}
	if err := s.scan(ctx, o.logger); err != nil {
		return nil, err
	}
	return s, nil
}

// scan (re)parses the project and repopulates every registry.
func (s *session) scan(ctx context.Context, logger *zap.Logger) error {
	project, err := scanner.Load(ctx, s.root, s.cfg, logger)
	if err != nil {
		return err
	}
	s.project = project
	s.links.Clear()
	s.tags = registry.NewTags()
	s.placeholders = registry.NewPlaceholders()

	scanner.NewLinkScanner(project, logger).Scan(s.links)
	scanner.NewTagScanner(project).Scan(s.tags)
	scanner.NewPlaceholderScanner(project, logger).Scan(s.placeholders)

	logger.Debug("project scanned",
		zap.Int("files", len(project.Files)),
		zap.Int("links", s.links.Count()),
		zap.Int("tags", s.tags.Count()),
		zap.Int("placeholders", s.placeholders.Count()))
	return nil
}

func (s *session) validate() *model.Report {
	return validator.Validate(s.links, s.tags, s.placeholders, s.project)
}
