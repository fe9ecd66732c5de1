package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/xqflow/internal/message"
	"github.com/roach88/xqflow/internal/store"
)

// DrainOptions holds flags for the drain command.
type DrainOptions struct {
	*RootOptions
	Store  string
	Max    int
	Wait   time.Duration
	Pretty bool
}

// DrainedMessage is the JSON form of a message removed from the store.
type DrainedMessage struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Headers   message.Headers `json:"headers,omitempty"`
	Payload   any             `json:"payload"`
}

// NewDrainCommand creates the drain command.
func NewDrainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DrainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "drain <channel>",
		Short: "Remove and print the messages waiting on a store channel",
		Long: `Remove messages from a channel of the SQLite message store, oldest
first, and print them.

Without --wait drain stops as soon as the channel is empty. With --wait it
keeps receiving until no message arrived for that long.

Example:
  xqflow drain orders.premium --store messages.db
  xqflow drain orders.premium --store messages.db --max 1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrain(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Store, "store", "", "path to SQLite message store (required)")
	cmd.Flags().IntVarP(&opts.Max, "max", "n", 0, "stop after this many messages (0 = all)")
	cmd.Flags().DurationVar(&opts.Wait, "wait", 0, "keep receiving until idle for this long")
	cmd.Flags().BoolVar(&opts.Pretty, "pretty", false, "indent XML payloads")
	_ = cmd.MarkFlagRequired("store")

	return cmd
}

func runDrain(opts *DrainOptions, name string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := store.Open(opts.Store)
	if err != nil {
		return formatter.Fail("failed to open store", storeError(err))
	}
	defer st.Close()

	msgs, err := drain(commandContext(cmd), st.Channel(name), opts.Max, opts.Wait)
	if err != nil {
		return formatter.Fail("drain failed", storeError(err))
	}
	formatter.VerboseLog("drained %d message(s) from %s", len(msgs), name)

	if formatter.Format == "json" {
		out := make([]DrainedMessage, len(msgs))
		for i, m := range msgs {
			out[i] = DrainedMessage{
				ID:        m.ID.String(),
				Timestamp: m.Timestamp,
				Headers:   m.Headers,
				Payload:   jsonValue(m.Payload, opts.Pretty),
			}
		}
		return formatter.Success(out)
	}

	for _, m := range msgs {
		fmt.Fprintf(formatter.Writer, "--- %s\n", m.ID)
		keys := make([]string, 0, len(m.Headers))
		for k := range m.Headers {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(formatter.Writer, "%s: %v\n", k, m.Headers[k])
		}
		renderPayload(formatter.Writer, m.Payload, opts.Pretty)
	}
	return nil
}

func drain(ctx context.Context, ch *store.MessageChannel, limit int, wait time.Duration) ([]*message.Message, error) {
	var msgs []*message.Message
	for limit <= 0 || len(msgs) < limit {
		if wait <= 0 {
			msg, ok, err := ch.Poll(ctx)
			if err != nil {
				return msgs, err
			}
			if !ok {
				break
			}
			msgs = append(msgs, msg)
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, wait)
		msg, err := ch.Receive(waitCtx)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			break
		}
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
