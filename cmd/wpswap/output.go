package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/wpswap/internal/errors"
	"github.com/hpungsan/wpswap/internal/ops"
	"github.com/hpungsan/wpswap/internal/wordpress"
)

// column is one table column; numeric columns are right-aligned.
type column struct {
	title   string
	numeric bool
}

func col(title string) column { return column{title: title} }
func num(title string) column { return column{title: title, numeric: true} }

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

// exitCanceled is the conventional status for a run stopped by SIGINT.
const exitCanceled = 130

// printTable writes rows under cols as a rounded table. Short rows are padded
// with blank cells; a table without rows prints nothing.
func printTable(w io.Writer, cols []column, rows [][]string) {
	if len(cols) == 0 || len(rows) == 0 {
		return
	}

	style := table.StyleRounded
	style.Format.Header = text.FormatDefault

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(style)

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		header[i] = c.title
		configs[i] = table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft}
		if c.numeric {
			configs[i].Align = text.AlignRight
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(cols))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}
	tw.Render()
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// progressPrinter renders run events one per line.
func progressPrinter(w io.Writer, colorize bool) ops.Progress {
	return func(e ops.Event) {
		if e.Kind == ops.EventPlanned || e.Kind == ops.EventScanned {
			fmt.Fprintln(w, e.Message)
			return
		}
		line := fmt.Sprintf("[%d/%d] %-8s %s", e.Done, e.Total, eventLabel(e.Kind), e.Subject)
		if e.Message != "" {
			line += ": " + e.Message
		}
		if colorize {
			if color := eventColor(e.Kind); color != "" {
				line = color + line + ansiReset
			}
		}
		fmt.Fprintln(w, line)
	}
}

func eventLabel(kind ops.EventKind) string {
	switch kind {
	case ops.EventUploaded:
		return "uploaded"
	case ops.EventReused:
		return "reused"
	case ops.EventDocumentSaved:
		return "saved"
	case ops.EventUploadFailed, ops.EventDocumentFailed:
		return "FAILED"
	default:
		return string(kind)
	}
}

func eventColor(kind ops.EventKind) string {
	switch kind {
	case ops.EventUploaded, ops.EventDocumentSaved:
		return ansiGreen
	case ops.EventReused:
		return ansiYellow
	case ops.EventUploadFailed, ops.EventDocumentFailed:
		return ansiRed
	default:
		return ""
	}
}

// outputJSON marshals result to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	code := 1
	if wordpress.IsCanceled(err) {
		code = exitCanceled
	}
	if e, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", e.Code, e.Message), code)
	}
	return cli.Exit(err.Error(), code)
}

// exitCode returns the process status for an error returned by the app.
func exitCode(err error) int {
	if coder, ok := err.(cli.ExitCoder); ok && coder.ExitCode() != 0 {
		return coder.ExitCode()
	}
	return 1
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).Local().Format("2006-01-02 15:04:05")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
