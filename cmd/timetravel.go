package main

import (
	"encoding/json"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/answer-router/internal/model"
)

var (
	ttForce  bool
	ttStream bool
)

var timeTravelCmd = &cobra.Command{
	Use:   "timetravel <question>",
	Short: "Show how the answer to a question changed over time",
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

		req := timeTravelRequest{Question: strings.Join(args, " "), Force: ttForce}
		if err := req.validate(); err != nil {
			return err
		}

		if ttStream {
			return streamEvents(cmd.OutOrStdout(), a.timeTravel.Stream(ctx, req.Question, req.Force))
		}
		res, err := a.timeTravel.Run(ctx, req.Question, req.Force)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

// streamEvents writes one JSON line per event. A terminal error event is
// returned as an error after it is printed.
func streamEvents(w io.Writer, events <-chan model.Event) error {
	enc := json.NewEncoder(w)
	var last model.Event
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return eris.Wrap(err, "encode event")
		}
		last = ev
	}
	if last.Type == model.EventError {
		msg, _ := last.Data["error"].(string)
		return eris.Errorf("time travel failed: %s", msg)
	}
	return nil
}

func init() {
	timeTravelCmd.Flags().BoolVar(&ttForce, "force", false, "run even when the question is not time-sensitive")
	timeTravelCmd.Flags().BoolVar(&ttStream, "stream", false, "print events as JSON lines while they arrive")
	rootCmd.AddCommand(timeTravelCmd)
}
