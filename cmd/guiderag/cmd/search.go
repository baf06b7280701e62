package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/questline/guiderag/internal/query"
	"github.com/questline/guiderag/internal/search"
	"github.com/questline/guiderag/internal/service"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	format string // "text", "json"

	job         string
	jobEN       string
	fame        int
	weapon      string
	epicCount   int
	originality int
	setItem     string
	setRarity   string
	title       string
	creature    string
	aura        string
}

func (o searchOptions) characterContext() *query.CharacterContext {
	cc := &query.CharacterContext{
		Job:              o.job,
		JobEN:            o.jobEN,
		Fame:             o.fame,
		Weapon:           o.weapon,
		EpicCount:        o.epicCount,
		OriginalityCount: o.originality,
		SetItemName:      o.setItem,
		SetItemRarity:    o.setRarity,
		Title:            o.title,
		Creature:         o.creature,
		Aura:             o.aura,
	}
	if cc.IsEmpty() {
		return nil
	}
	return cc
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Query the knowledge base",
		Long: `Run the hybrid retrieval pipeline for a question.

Character flags personalize retrieval: the job biases document scoring
toward matching class guides, and job/fame feed the cache key so cached
answers are not shared across different characters.

Examples:
  guiderag search "스킬 트리 추천" --job 엘븐나이트 --fame 41000
  guiderag search "최신 패치 내용"
  guiderag search "세팅 가이드" --job 버서커 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.job, "job", "", "Character job/class name")
	cmd.Flags().StringVar(&opts.jobEN, "job-en", "", "English job alias")
	cmd.Flags().IntVar(&opts.fame, "fame", 0, "Character fame value")
	cmd.Flags().StringVar(&opts.weapon, "weapon", "", "Equipped weapon")
	cmd.Flags().IntVar(&opts.epicCount, "epic-count", 0, "Equipped epic item count")
	cmd.Flags().IntVar(&opts.originality, "originality-count", 0, "Equipped originality item count")
	cmd.Flags().StringVar(&opts.setItem, "set-item", "", "Equipped set item name")
	cmd.Flags().StringVar(&opts.setRarity, "set-rarity", "", "Set item rarity")
	cmd.Flags().StringVar(&opts.title, "title", "", "Equipped title")
	cmd.Flags().StringVar(&opts.creature, "creature", "", "Equipped creature")
	cmd.Flags().StringVar(&opts.aura, "aura", "", "Equipped aura")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, q string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svc, err := service.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.GetAnswerInputs(ctx, q, opts.characterContext())
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "text":
		printResult(cmd, result)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text or json)", opts.format)
	}
}

func printResult(cmd *cobra.Command, r *search.Result) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Query:    %s\n", r.Query)
	fmt.Fprintf(out, "Enhanced: %s\n", r.EnhancedQuery)
	fmt.Fprintf(out, "Weights:  dense=%.1f lexical=%.1f\n", r.Weights.Dense, r.Weights.Lexical)
	if r.Cached {
		fmt.Fprintln(out, "Served from cache")
	}
	fmt.Fprintln(out)

	if len(r.InternalDocs) == 0 {
		fmt.Fprintln(out, "No internal documents matched.")
	}
	for i, d := range r.InternalDocs {
		title := d.Metadata.Title
		if title == "" {
			title = d.ID
		}
		fmt.Fprintf(out, "%d. %s", i+1, title)
		if d.Metadata.ClassName != "" {
			fmt.Fprintf(out, " [%s]", d.Metadata.ClassName)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "   %s\n", snippet(d.Content, 120))
	}

	if r.UsedWebSearch {
		fmt.Fprintf(out, "\nWeb sources: %d\n", len(r.WebDocs))
	}

	if len(r.TimingsMs) > 0 {
		fmt.Fprint(out, "\nTimings:")
		for stage, ms := range r.TimingsMs {
			fmt.Fprintf(out, " %s=%.0fms", stage, ms)
		}
		fmt.Fprintln(out)
	}
}

// snippet returns the first line of content, truncated to max runes.
func snippet(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max]) + "…"
	}
	return s
}
