package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/smartdoc-agent/internal/config"
	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
	"github.com/kirillkom/smartdoc-agent/internal/core/usecase"
)

// SessionService is the slice of the session use case the CLI needs.
type SessionService interface {
	Start(ctx context.Context, credential string) (*domain.Session, usecase.AnalyzerStatus, error)
	ProcessUploads(ctx context.Context, sessionID string, uploads []usecase.Upload) ([]usecase.UploadOutcome, error)
	Analyze(ctx context.Context, sessionID, documentName string, mode domain.AnalysisMode, question string, includeMetadata bool) (domain.AnalysisResult, error)
	RunBatch(ctx context.Context, sessionID string, mode domain.AnalysisMode, question string, reporter ports.ProgressReporter) (domain.BatchResult, error)
	End(ctx context.Context, sessionID string) error
}

type BatchExporter interface {
	WriteBatch(w io.Writer, result domain.BatchResult) error
}

// ProgressWatcher streams batch progress published by other processes.
type ProgressWatcher interface {
	Watch(ctx context.Context, fn func(domain.BatchProgress)) error
}

type Deps struct {
	Sessions          SessionService
	Ingestor          ports.DocumentIngestor
	Exporter          BatchExporter
	Watcher           ProgressWatcher
	Catalog           config.Catalog
	DefaultCredential string
	IncludeMetadata   bool
}

var errAnalysisFailed = errors.New("one or more analyses failed")

func NewRootCommand(deps Deps) *cobra.Command {
	root := &cobra.Command{
		Use:           "smartdoc",
		Short:         "Analyze PDF documents with a hosted language model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newAnalyzeCommand(deps),
		newInspectCommand(deps),
		newModesCommand(deps),
	)
	if deps.Watcher != nil {
		root.AddCommand(newWatchCommand(deps))
	}
	return root
}

func newAnalyzeCommand(deps Deps) *cobra.Command {
	var (
		mode            string
		question        string
		apiKey          string
		includeMetadata bool
		xlsxPath        string
	)
	cmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Extract and analyze one or more PDF files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("include-metadata") {
				includeMetadata = deps.IncludeMetadata
			}
			if apiKey == "" {
				apiKey = deps.DefaultCredential
			}
			return runAnalyze(cmd, deps, args, analyzeOptions{
				mode:            domain.ParseMode(mode),
				question:        question,
				credential:      apiKey,
				includeMetadata: includeMetadata,
				xlsxPath:        xlsxPath,
			})
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(domain.ModeSummary), "analysis mode: summary, comprehensive, insights, technical, custom")
	cmd.Flags().StringVarP(&question, "question", "q", "", "question for custom mode")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "provider API key (defaults to GEMINI_API_KEY)")
	cmd.Flags().BoolVar(&includeMetadata, "include-metadata", true, "append an analysis timestamp footer")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also write results to this .xlsx file")
	return cmd
}

type analyzeOptions struct {
	mode            domain.AnalysisMode
	question        string
	credential      string
	includeMetadata bool
	xlsxPath        string
}

func runAnalyze(cmd *cobra.Command, deps Deps, paths []string, opts analyzeOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	uploads, err := readUploads(paths)
	if err != nil {
		return err
	}

	session, status, err := deps.Sessions.Start(ctx, opts.credential)
	if err != nil {
		return err
	}
	defer func() { _ = deps.Sessions.End(context.WithoutCancel(ctx), session.ID) }()
	if status.State != usecase.StateReady {
		return fmt.Errorf("analyzer not ready: %s", status.Message)
	}

	outcomes, err := deps.Sessions.ProcessUploads(ctx, session.ID, uploads)
	if err != nil {
		return err
	}
	accepted := 0
	for _, outcome := range outcomes {
		if outcome.Record == nil {
			fmt.Fprintf(errOut, "skipped %s: %s\n", outcome.Name, outcome.Error)
			continue
		}
		accepted++
		fmt.Fprintf(errOut, "loaded %s: %d/%d pages, %d words\n",
			outcome.Name, outcome.Record.ProcessedPages, outcome.Record.TotalPages, outcome.Record.WordCount)
	}
	if accepted == 0 {
		return fmt.Errorf("no documents could be processed")
	}

	var result domain.BatchResult
	if accepted == 1 {
		var single domain.AnalysisResult
		var name string
		for _, outcome := range outcomes {
			if outcome.Record != nil {
				name = outcome.Name
			}
		}
		single, err = deps.Sessions.Analyze(ctx, session.ID, name, opts.mode, opts.question, opts.includeMetadata)
		if err != nil {
			return err
		}
		result = domain.BatchResult{Mode: single.Mode, Items: []domain.BatchItem{{Name: name, Result: single}}}
	} else {
		result, err = deps.Sessions.RunBatch(ctx, session.ID, opts.mode, opts.question, NewProgressPrinter(errOut))
		if err != nil {
			return err
		}
	}

	printResults(out, result)

	if opts.xlsxPath != "" {
		if err := writeWorkbook(deps.Exporter, opts.xlsxPath, result); err != nil {
			return err
		}
		fmt.Fprintf(errOut, "wrote %s\n", opts.xlsxPath)
	}
	if result.Failed() > 0 {
		return errAnalysisFailed
	}
	return nil
}

func printResults(w io.Writer, result domain.BatchResult) {
	for i, item := range result.Items {
		if len(result.Items) > 1 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "## %s\n\n", item.Name)
		}
		fmt.Fprintln(w, item.Result.Text)
	}
}

func writeWorkbook(exporter BatchExporter, path string, result domain.BatchResult) error {
	if exporter == nil {
		return fmt.Errorf("xlsx export is not available")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := exporter.WriteBatch(f, result); err != nil {
		_ = f.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	return f.Close()
}

func readUploads(paths []string) ([]usecase.Upload, error) {
	uploads := make([]usecase.Upload, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		uploads = append(uploads, usecase.Upload{Name: filepath.Base(path), Data: data})
	}
	return uploads, nil
}

func newInspectCommand(deps Deps) *cobra.Command {
	var withText bool
	cmd := &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Extract text and metadata without calling the provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uploads, err := readUploads(args)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			var failed bool
			for _, upload := range uploads {
				record, err := deps.Ingestor.Ingest(cmd.Context(), upload.Data, upload.Name)
				if err != nil {
					failed = true
					kind := domain.KindOf(err)
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", upload.Name, usecase.UserMessage(kind, err.Error()))
					continue
				}
				if !withText {
					record.Text = ""
				}
				if err := enc.Encode(record); err != nil {
					return fmt.Errorf("encode %s: %w", upload.Name, err)
				}
			}
			if failed {
				return fmt.Errorf("one or more files could not be processed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withText, "text", false, "include the extracted text")
	return cmd
}

func newModesCommand(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List analysis modes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if len(deps.Catalog.Modes) == 0 {
				for _, mode := range domain.AnalysisModes {
					fmt.Fprintln(out, mode)
				}
				return nil
			}
			for _, mode := range deps.Catalog.Modes {
				fmt.Fprintf(out, "%-14s %s\n", mode.ID, strings.TrimSpace(mode.Description))
			}
			return nil
		},
	}
}

func newWatchCommand(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print batch progress published by running servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printer := NewProgressPrinter(cmd.OutOrStdout())
			return deps.Watcher.Watch(cmd.Context(), func(progress domain.BatchProgress) {
				printer.ReportProgress(cmd.Context(), progress)
			})
		},
	}
}
