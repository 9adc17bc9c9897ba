package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/budgetdb/internal/searcher"
	"github.com/dshills/budgetdb/internal/storage"
	"github.com/dshills/budgetdb/pkg/types"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		limit   int
		scope   string
		filters storage.SearchFilters
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Full-text search over budget lines and PDF pages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if !cmd.Flags().Changed("limit") {
				limit = a.cfg.Search.DefaultLimit
			}
			req := searcher.SearchRequest{
				Query: strings.Join(args, " "),
				Limit: limit,
				Scope: searcher.Scope(scope),
			}
			if filters != (storage.SearchFilters{}) {
				req.Filters = &filters
			}

			resp, err := searcher.NewSearcher(store, a.cfg.Search.CacheSize).Search(ctx, req)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			w := a.out
			if len(resp.Results) == 0 {
				warning(w, fmt.Sprintf("no matches for %q", req.Query))
				return nil
			}
			for _, r := range resp.Results {
				printResult(a, r)
			}
			_, _ = dim.Fprintf(w, "%d results (%d lines, %d pages) in %s\n",
				resp.TotalResults, resp.LineResults, resp.PageResults, resp.Duration)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&limit, "limit", "n", searcher.DefaultLimit, "maximum results")
	fl.StringVar(&scope, "scope", string(searcher.ScopeAll), "all, lines or pages")
	fl.StringVar(&filters.FiscalYear, "fy", "", "fiscal year filter, e.g. \"FY 2026\"")
	fl.StringVar(&filters.ExhibitType, "exhibit", "", "exhibit type filter, e.g. p1")
	fl.StringVar(&filters.Organization, "org", "", "organization filter (budget lines only)")
	fl.StringVar(&filters.SourceFile, "source", "", "source path substring filter")
	fl.BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printResult(a *app, r types.SearchResult) {
	w := a.out
	_, _ = bold.Fprintf(w, "%3d. ", r.Rank)
	if r.Kind == types.ResultPdfPage {
		_, _ = cyan.Fprintf(w, "%s p.%d", r.SourceFile, r.PageNumber)
	} else {
		_, _ = cyan.Fprintf(w, "%s", r.Title)
		_, _ = dim.Fprintf(w, "  %s", r.SourceFile)
	}
	_, _ = fmt.Fprintf(w, "  [%s %s %s] %.3f\n", r.FiscalYear, r.ExhibitType, r.Organization, r.Score)
	if r.Snippet != "" {
		_, _ = fmt.Fprintf(w, "     %s\n", r.Snippet)
	}
}
