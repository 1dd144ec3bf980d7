package main

import (
	"encoding/json"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/answer-router/internal/router"
)

var (
	askModels    []string
	askNoSearch  bool
	askSynthesis bool
	askMaxTokens int
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Route one question and print the answer as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("cli"); err != nil {
			return err
		}
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}

		req := askRequest(strings.Join(args, " "), cmd.Flags().Changed("synthesis"))
		resp, err := a.router.RouteAndAnswer(ctx, req)
		if resp != nil {
			if werr := printJSON(cmd.OutOrStdout(), resp); werr != nil {
				return werr
			}
		}
		return err
	},
}

// askRequest builds the answer request from the ask flags. synthesisSet
// says whether --synthesis was passed explicitly.
func askRequest(question string, synthesisSet bool) router.AnswerRequest {
	req := router.AnswerRequest{
		Question:       question,
		MaxTokens:      askMaxTokens,
		OverrideModels: askModels,
	}
	if askNoSearch {
		off := false
		req.EnableSearch = &off
	}
	if synthesisSet {
		v := askSynthesis
		req.ForceSynthesis = &v
	}
	return req
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode output")
	}
	return nil
}

func init() {
	askCmd.Flags().StringSliceVar(&askModels, "models", nil, "override the routed models")
	askCmd.Flags().BoolVar(&askNoSearch, "no-search", false, "skip web search for time-sensitive questions")
	askCmd.Flags().BoolVar(&askSynthesis, "synthesis", false, "force synthesis on or off (--synthesis=false)")
	askCmd.Flags().IntVar(&askMaxTokens, "max-tokens", 0, "max output tokens per model (default 2000)")
	rootCmd.AddCommand(askCmd)
}
