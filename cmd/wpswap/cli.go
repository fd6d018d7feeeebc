package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/wpswap/internal/config"
	"github.com/hpungsan/wpswap/internal/db"
	"github.com/hpungsan/wpswap/internal/errors"
	"github.com/hpungsan/wpswap/internal/logging"
	"github.com/hpungsan/wpswap/internal/ops"
	"github.com/hpungsan/wpswap/internal/rewrite"
	"github.com/hpungsan/wpswap/internal/wordpress"
)

// siteClient is the part of the WordPress client the commands use.
type siteClient interface {
	ops.MediaLibrary
	ops.ContentStore
	Ping(ctx context.Context) (*wordpress.User, error)
	Diagnose(ctx context.Context) *wordpress.Diagnostics
}

// newSiteClient builds the client for a validated config.
var newSiteClient = func(cfg *config.Config, logger *slog.Logger) siteClient {
	return wordpress.New(cfg, wordpress.WithLogger(logger))
}

// newCLIApp creates the CLI application with all commands.
// baseDir holds the ledger, the run lock and the reports directory.
func newCLIApp(database *sql.DB, cfg *config.Config, baseDir string) *cli.App {
	app := &cli.App{
		Name:    "wpswap",
		Usage:   "Replace WordPress media with local WebP files and rewrite every reference",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print machine-readable JSON instead of tables"},
			&cli.StringFlag{Name: "site", Usage: "WordPress site URL (overrides config)"},
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "Log level: debug|info|warn|error", EnvVars: []string{"WPSWAP_LOG_LEVEL"}},
			&cli.StringFlag{Name: "log-format", Value: "text", Usage: "Log format: text|json"},
		},
		Commands: []*cli.Command{
			diagnoseCmd(cfg),
			planCmd(cfg),
			runCmd(database, cfg, baseDir),
			rewriteCmd(database, cfg, baseDir),
			runsCmd(database),
			showCmd(database, cfg),
			reportCmd(database, cfg, baseDir),
			configCmd(cfg, baseDir),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// diagnoseCmd creates the diagnose command.
func diagnoseCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "diagnose",
		Usage: "Check REST API availability, HTTPS and authentication",
		Action: func(c *cli.Context) error {
			siteCfg, err := siteConfig(c, cfg, false)
			if err != nil {
				return outputError(err)
			}
			logger, err := newLogger(c)
			if err != nil {
				return outputError(err)
			}
			client := newSiteClient(siteCfg, logger)

			user, pingErr := client.Ping(c.Context)
			diag := client.Diagnose(c.Context)

			if c.Bool("json") {
				out := map[string]any{"site": siteCfg.WordPressURL, "diagnostics": diag}
				if user != nil {
					out["user"] = user
				}
				if pingErr != nil {
					out["ping_error"] = pingErr.Error()
				}
				if err := outputJSON(c.App.Writer, out); err != nil {
					return err
				}
			} else {
				w := c.App.Writer
				fmt.Fprintf(w, "Site: %s\n", siteCfg.WordPressURL)
				if user != nil {
					fmt.Fprintf(w, "Authenticated as %s (%s)\n", user.Name, user.Slug)
				}
				rows := make([][]string, 0, len(diag.Tests))
				for _, t := range diag.Tests {
					rows = append(rows, []string{t.Name, t.Status, t.Message})
				}
				printTable(w, []column{col("Check"), col("Status"), col("Message")}, rows)
				fmt.Fprintf(w, "Overall: %s\n", diag.OverallStatus)
				for _, rec := range diag.Recommendations {
					fmt.Fprintf(w, "  - %s\n", rec)
				}
			}

			if diag.OverallStatus == wordpress.StatusFail {
				return outputError(errors.NewRemote("diagnose", 0, "one or more checks failed"))
			}
			return nil
		},
	}
}

// planCmd creates the plan command.
func planCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Preview which local files replace which media records (no changes)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Usage: "Folder of replacement files (overrides config)"},
		},
		Action: func(c *cli.Context) error {
			siteCfg, err := siteConfig(c, cfg, true)
			if err != nil {
				return outputError(err)
			}
			logger, err := newLogger(c)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Plan(c.Context, newSiteClient(siteCfg, logger), siteCfg, ops.PlanInput{})
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, output)
			}
			printPlan(c, output)
			return nil
		},
	}
}

func printPlan(c *cli.Context, p *ops.PlanOutput) {
	w := c.App.Writer
	fmt.Fprintf(w, "Matched %d of %d local files in %s (%d replaceable media records)\n",
		len(p.Matches), p.LocalCount, p.Folder, p.RemoteCount)

	rows := make([][]string, 0, len(p.Matches))
	for _, m := range p.Matches {
		rows = append(rows, []string{m.Local.Name, fmt.Sprintf("%d", m.Remote.ID), m.Remote.URL})
	}
	printTable(w, []column{col("Local file"), num("Media ID"), col("Replaces")}, rows)

	issues := make([][]string, 0, len(p.Issues))
	for _, issue := range p.Issues {
		issues = append(issues, []string{string(issue.Code), filepath.Base(issue.Path), issue.Message})
	}
	printTable(w, []column{col("Issue"), col("File"), col("Detail")}, issues)
}

// runCmd creates the run command.
func runCmd(database *sql.DB, cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Upload replacements and rewrite every post and page that references the old media",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Usage: "Folder of replacement files (overrides config)"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Do not print progress"},
		},
		Action: func(c *cli.Context) error {
			siteCfg, err := siteConfig(c, cfg, true)
			if err != nil {
				return outputError(err)
			}
			logger, err := newLogger(c)
			if err != nil {
				return outputError(err)
			}
			client := newSiteClient(siteCfg, logger)

			// Ctrl-C stops before the next upload or document save
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			output, runErr := ops.Run(ctx, database, client, client, siteCfg, ops.RunInput{
				StateDir: baseDir,
				Progress: progress(c),
				Logger:   logger,
			})
			if output == nil {
				return outputError(runErr)
			}

			if c.Bool("json") {
				if err := outputJSON(c.App.Writer, output); err != nil {
					return err
				}
			} else {
				printRunSummary(c, output.Run)
				printUploadFailures(c, output)
			}
			if runErr != nil {
				return outputError(runErr)
			}
			return nil
		},
	}
}

func printRunSummary(c *cli.Context, r *db.Run) {
	w := c.App.Writer
	fmt.Fprintf(w, "Run %s %s\n", r.ID, r.Status)
	rows := [][]string{
		{"Matched files", itoa(r.Matched)},
		{"Uploaded", itoa(r.Uploaded)},
		{"Reused uploads", itoa(r.Reused)},
		{"Upload failures", itoa(r.UploadFailures)},
		{"Documents scanned", itoa(r.DocumentsScanned)},
		{"Documents changed", itoa(r.DocumentsChanged)},
		{"URL replacements", itoa(r.Replacements)},
	}
	printTable(w, []column{col("Metric"), num("Count")}, rows)
}

func printUploadFailures(c *cli.Context, out *ops.RunOutput) {
	var rows [][]string
	for _, u := range out.Uploads {
		if u.Status == db.UploadFailed {
			rows = append(rows, []string{filepath.Base(u.LocalPath), u.Error})
		}
	}
	for _, d := range out.Documents {
		if d.Status == db.RewriteFailed {
			rows = append(rows, []string{d.Kind + "/" + d.DocumentID, d.Error})
		}
	}
	printTable(c.App.Writer, []column{col("Failed"), col("Error")}, rows)
}

// rewriteCmd creates the rewrite command.
func rewriteCmd(database *sql.DB, cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "rewrite",
		Usage: "Rewrite posts and pages from an earlier run's uploads or an explicit mapping file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "run", Aliases: []string{"r"}, Usage: "Replay the uploads of this run ID"},
			&cli.StringFlag{Name: "mapping", Aliases: []string{"m"}, Usage: "JSON file with [{\"old\": ..., \"new\": ...}] pairs"},
			&cli.BoolFlag{Name: "revert", Usage: "Swap every pair to restore the old URLs (with --run, size-variant links come back as the full-size URL)"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Do not print progress"},
		},
		Action: func(c *cli.Context) error {
			input := ops.RewriteInput{
				RunID:    c.String("run"),
				Revert:   c.Bool("revert"),
				StateDir: baseDir,
				Progress: progress(c),
			}
			if path := c.String("mapping"); path != "" {
				mapping, err := readMapping(path)
				if err != nil {
					return outputError(err)
				}
				input.Mapping = mapping
			}

			siteCfg, err := siteConfig(c, cfg, false)
			if err != nil {
				return outputError(err)
			}
			logger, err := newLogger(c)
			if err != nil {
				return outputError(err)
			}
			input.Logger = logger

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			output, runErr := ops.Rewrite(ctx, database, newSiteClient(siteCfg, logger), siteCfg, input)
			if output == nil {
				return outputError(runErr)
			}
			if c.Bool("json") {
				if err := outputJSON(c.App.Writer, output); err != nil {
					return err
				}
			} else {
				printRunSummary(c, output.Run)
				printUploadFailures(c, &ops.RunOutput{Documents: output.Documents})
			}
			if runErr != nil {
				return outputError(runErr)
			}
			return nil
		},
	}
}

// readMapping loads a JSON mapping file.
func readMapping(path string) (rewrite.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("mapping file", path)
		}
		return nil, errors.NewInvalidRequest(fmt.Sprintf("read mapping: %v", err))
	}
	var mapping rewrite.Mapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("parse mapping %s: %v", path, err))
	}
	if len(mapping) == 0 {
		return nil, errors.NewInvalidRequest("mapping file has no pairs")
	}
	return mapping, nil
}

// runsCmd creates the runs command.
func runsCmd(database *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recorded runs, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Filter by kind: run|rewrite"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum number of runs"},
			&cli.IntFlag{Name: "offset", Usage: "Number of runs to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Runs(database, ops.RunsInput{
				Site:   c.String("site"),
				Kind:   c.String("kind"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, output)
			}

			w := c.App.Writer
			if len(output.Runs) == 0 {
				fmt.Fprintln(w, "No runs recorded.")
				return nil
			}
			rows := make([][]string, 0, len(output.Runs))
			for _, r := range output.Runs {
				rows = append(rows, []string{
					r.ID, r.Kind, r.Status, r.Site, formatUnix(r.StartedAt),
					itoa(r.Uploaded + r.Reused), itoa(r.DocumentsChanged), itoa(r.Replacements),
				})
			}
			printTable(w, []column{
				col("ID"), col("Kind"), col("Status"), col("Site"), col("Started"),
				num("Uploads"), num("Docs"), num("Replacements"),
			}, rows)
			if output.Pagination.HasMore {
				fmt.Fprintf(w, "Showing %d of %d (use --offset %d for more)\n",
					len(output.Runs), output.Pagination.Total, output.Pagination.Offset+len(output.Runs))
			}
			return nil
		},
	}
}

// showCmd creates the show command.
func showCmd(database *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a run with its uploads and document rewrites (default: latest run for the site)",
		ArgsUsage: "[run-id]",
		Action: func(c *cli.Context) error {
			output, err := ops.ShowRun(database, ops.ShowRunInput{ID: c.Args().First(), Site: siteOf(c, cfg)})
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, output)
			}

			w := c.App.Writer
			r := output.Run
			printRunSummary(c, r)
			fmt.Fprintf(w, "Kind: %s\nSite: %s\nStarted: %s\n", r.Kind, r.Site, formatUnix(r.StartedAt))
			if r.SourceRunID != "" {
				fmt.Fprintf(w, "Replayed from: %s\n", r.SourceRunID)
			}
			if r.Error != "" {
				fmt.Fprintf(w, "Error: %s\n", r.Error)
			}

			uploads := make([][]string, 0, len(output.Uploads))
			for _, u := range output.Uploads {
				target := u.NewURL
				if u.Status == db.UploadFailed {
					target = u.Error
				}
				uploads = append(uploads, []string{filepath.Base(u.LocalPath), fmt.Sprintf("%d", u.OldMediaID), target, u.Status})
			}
			printTable(w, []column{col("Local file"), num("Media ID"), col("New URL"), col("Status")}, uploads)

			docs := make([][]string, 0, len(output.Rewrites))
			for _, d := range output.Rewrites {
				docs = append(docs, []string{d.Kind + "/" + d.DocumentID, d.Title, itoa(d.Replacements), d.Status})
			}
			printTable(w, []column{col("Document"), col("Title"), num("Replacements"), col("Status")}, docs)
			return nil
		},
	}
}

// reportCmd creates the report command.
func reportCmd(database *sql.DB, cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Render a run report as Markdown or HTML (default: latest run for the site)",
		ArgsUsage: "[run-id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Value: ops.FormatMarkdown, Usage: "Report format: markdown|html"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the report to this file"},
			&cli.BoolFlag{Name: "write", Aliases: []string{"w"}, Usage: "Write the report to the reports directory"},
		},
		Action: func(c *cli.Context) error {
			path := c.String("output")
			output, err := ops.Report(database, ops.ReportInput{
				ID:          c.Args().First(),
				Site:        siteOf(c, cfg),
				Format:      c.String("format"),
				Write:       c.Bool("write"),
				Path:        path,
				ReportsDir:  db.ReportsDir(baseDir),
				AllowAnyDir: path != "",
			})
			if err != nil {
				return outputError(err)
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, output)
			}
			if output.Path != "" {
				fmt.Fprintf(c.App.Writer, "Wrote %s\n", output.Path)
				return nil
			}
			fmt.Fprint(c.App.Writer, output.Content)
			return nil
		},
	}
}

// configCmd creates the config command and its subcommands.
func configCmd(cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or initialize settings",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the effective settings (password masked)",
				Action: func(c *cli.Context) error {
					if c.Bool("json") {
						return outputJSON(c.App.Writer, cfg.Redacted())
					}
					fmt.Fprintln(c.App.Writer, cfg.Summary())
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "Write connection settings to the global config file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Usage: "WordPress site URL"},
					&cli.StringFlag{Name: "username", Usage: "WordPress username (not the email address)"},
					&cli.StringFlag{Name: "app-password", Usage: "Application password from Users → Profile"},
					&cli.StringFlag{Name: "folder", Usage: "Folder of replacement files"},
				},
				Action: func(c *cli.Context) error {
					if baseDir == "" {
						return outputError(errors.NewInvalidRequest("state directory is not available"))
					}
					saved, err := config.LoadFile(baseDir)
					if err != nil {
						return outputError(errors.NewInvalidConfig([]string{err.Error()}))
					}
					for flag, field := range map[string]*string{
						"url":          &saved.WordPressURL,
						"username":     &saved.Username,
						"app-password": &saved.AppPassword,
						"folder":       &saved.WebPFolder,
					} {
						if v := strings.TrimSpace(c.String(flag)); v != "" {
							*field = v
						}
					}
					if err := config.Save(baseDir, saved); err != nil {
						return outputError(errors.NewInternal(err))
					}

					w := c.App.Writer
					fmt.Fprintf(w, "Saved %s\n", filepath.Join(baseDir, "config.json"))
					if _, err := saved.Validate(); err != nil {
						if e, ok := errors.As(err); ok {
							fmt.Fprintf(c.App.ErrWriter, "Still incomplete: %s\n", e.Message)
						}
					}
					return nil
				},
			},
		},
	}
}

// siteConfig applies command-line overrides and validates the result.
func siteConfig(c *cli.Context, cfg *config.Config, requireFolder bool) (*config.Config, error) {
	out := *cfg
	if site := c.String("site"); site != "" {
		out.WordPressURL = site
	}
	if folder := c.String("folder"); folder != "" {
		out.WebPFolder = folder
	}
	if requireFolder {
		return out.Validate()
	}
	return out.ValidateSite()
}

// siteOf returns the site used to select the latest run.
func siteOf(c *cli.Context, cfg *config.Config) string {
	if site := c.String("site"); site != "" {
		return site
	}
	return cfg.WordPressURL
}

func newLogger(c *cli.Context) (*slog.Logger, error) {
	logger, err := logging.New(logging.Options{
		Level:  c.String("log-level"),
		Format: c.String("log-format"),
		Writer: c.App.ErrWriter,
	})
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	return logger, nil
}

func progress(c *cli.Context) ops.Progress {
	if c.Bool("quiet") {
		return nil
	}
	return progressPrinter(c.App.ErrWriter, shouldColorize(c.App.ErrWriter))
}
