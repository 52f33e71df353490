package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/kirillkom/biomed-literature-assistant/internal/bootstrap"
	"github.com/kirillkom/biomed-literature-assistant/internal/config"
	"github.com/kirillkom/biomed-literature-assistant/internal/core/domain"
	"github.com/kirillkom/biomed-literature-assistant/internal/observability/logging"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "litctl:", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:    "litctl",
		Usage:   "query and maintain the biomedical literature index",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				EnvVars: []string{"LOG_LEVEL"},
				Usage:   "debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "retrieve",
				Usage:     "print ranked passages for a query as JSON",
				ArgsUsage: "QUERY",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "global", Usage: "search all body passages without abstract narrowing"},
				},
				Action: func(cCtx *cli.Context) error {
					query, err := joinedArgs(cCtx)
					if err != nil {
						return err
					}
					return runWithApp(cCtx, func(app *bootstrap.App) error {
						result, err := app.AnswerUC.Search(cCtx.Context, query, cCtx.Bool("global"))
						if err != nil {
							return err
						}
						return writeJSON(out, result)
					})
				},
			},
			{
				Name:      "ask",
				Usage:     "answer a question with PMID citations",
				ArgsUsage: "QUESTION",
				Action: func(cCtx *cli.Context) error {
					question, err := joinedArgs(cCtx)
					if err != nil {
						return err
					}
					return runWithApp(cCtx, func(app *bootstrap.App) error {
						answer, err := app.AnswerUC.Answer(cCtx.Context, question)
						if err != nil {
							return err
						}
						printAnswer(out, answer)
						return nil
					})
				},
			},
			{
				Name:  "ingest",
				Usage: "queue PubMed articles for indexing",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "pmid", Usage: "PubMed ID to ingest (repeatable)"},
					&cli.StringSliceFlag{Name: "keyword", Usage: "keyword for a free-full-text PubMed search (repeatable)"},
					&cli.StringFlag{Name: "topics", Usage: "YAML file listing topics to ingest"},
					&cli.IntFlag{Name: "limit", Value: 0, Usage: "articles per keyword search (default from INGEST_SEARCH_LIMIT)"},
					&cli.BoolFlag{Name: "dry-run", Usage: "only report PubMed hit counts"},
				},
				Action: func(cCtx *cli.Context) error {
					requests, err := ingestRequests(cCtx, config.Load().IngestSearchLimit)
					if err != nil {
						return err
					}
					return runWithApp(cCtx, func(app *bootstrap.App) error {
						for _, req := range requests {
							if cCtx.Bool("dry-run") {
								if err := reportHits(cCtx.Context, out, app, req); err != nil {
									return err
								}
								continue
							}
							receipt, err := app.IngestUC.Submit(cCtx.Context, req)
							if err != nil {
								return err
							}
							fmt.Fprintf(out, "queued %d, skipped %d already indexed\n", len(receipt.Queued), len(receipt.Skipped))
						}
						return nil
					})
				},
			},
			{
				Name:      "status",
				Usage:     "show the ingestion state of one article",
				ArgsUsage: "PMID",
				Action: func(cCtx *cli.Context) error {
					pmid := strings.TrimSpace(cCtx.Args().First())
					if pmid == "" {
						return cli.Exit("pmid is required", 2)
					}
					return runWithApp(cCtx, func(app *bootstrap.App) error {
						article, err := app.Articles.GetByPMID(cCtx.Context, pmid)
						if err != nil {
							return err
						}
						return writeJSON(out, article)
					})
				},
			},
		},
	}
}

func runWithApp(cCtx *cli.Context, fn func(*bootstrap.App) error) error {
	logger := logging.NewCLILogger("litctl", cCtx.String("log-level"))
	slog.SetDefault(logger)

	app, err := bootstrap.New(cCtx.Context, config.Load(), bootstrap.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()
	return fn(app)
}

func reportHits(ctx context.Context, out io.Writer, app *bootstrap.App, req domain.IngestRequest) error {
	if len(req.Keywords) == 0 {
		fmt.Fprintf(out, "pmids: %d\n", len(req.PMIDs))
		return nil
	}
	total, err := app.Source.TotalHits(ctx, req.Keywords)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d free full-text hits (limit %d)\n", strings.Join(req.Keywords, ", "), total, req.Limit)
	return nil
}

func joinedArgs(cCtx *cli.Context) (string, error) {
	text := strings.TrimSpace(strings.Join(cCtx.Args().Slice(), " "))
	if text == "" {
		return "", cli.Exit("query text is required", 2)
	}
	return text, nil
}

// ingestRequests merges flag input and topic files into one request per
// topic. Flags form their own request.
func ingestRequests(cCtx *cli.Context, defaultLimit int) ([]domain.IngestRequest, error) {
	limit := cCtx.Int("limit")
	if limit <= 0 {
		limit = defaultLimit
	}

	var out []domain.IngestRequest
	pmids, keywords := cCtx.StringSlice("pmid"), cCtx.StringSlice("keyword")
	if len(pmids) > 0 || len(keywords) > 0 {
		out = append(out, domain.IngestRequest{PMIDs: pmids, Keywords: keywords, Limit: limit})
	}

	if path := cCtx.String("topics"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open topics file: %w", err)
		}
		defer f.Close()
		topics, err := parseTopics(f)
		if err != nil {
			return nil, err
		}
		out = append(out, topics.requests(limit)...)
	}

	if len(out) == 0 {
		return nil, cli.Exit("one of --pmid, --keyword or --topics is required", 2)
	}
	return out, nil
}

func printAnswer(w io.Writer, answer *domain.Answer) {
	fmt.Fprintln(w, answer.Text)
	if len(answer.Sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	if answer.UsedGlobal {
		fmt.Fprintln(w, "Sources (global search):")
	} else {
		fmt.Fprintln(w, "Sources:")
	}
	for i, sp := range answer.Sources {
		meta := sp.Passage.Metadata
		fmt.Fprintf(w, "[%d] PMID: %s  %s (%d)  score=%.3f\n", i+1, sp.Passage.PMID, meta.Title, meta.PubYear, sp.RerankScore)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
