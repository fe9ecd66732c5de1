package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/xqflow/internal/channel"
	"github.com/roach88/xqflow/internal/config"
	"github.com/roach88/xqflow/internal/message"
	"github.com/roach88/xqflow/internal/store"
)

// TransformOptions holds flags for the transform command.
type TransformOptions struct {
	*RootOptions
	Config        string
	Store         string
	OutputChannel string
	Headers       []string
}

// TransformResult is the JSON output of the transform command.
type TransformResult struct {
	Payload any             `json:"payload"`
	Headers message.Headers `json:"headers,omitempty"`
	Channel string          `json:"channel,omitempty"`
}

// NewTransformCommand creates the transform command.
func NewTransformCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransformOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "transform <xml-file|->",
		Short: "Transform an XML message with a definition",
		Long: `Evaluate the definition's query against an XML message and print the
new payload. A single result becomes the payload itself; several results
are printed one per line.

With --output-channel the transformed message is also sent to that channel
of the message store.

Example:
  xqflow transform order.xml --config summary.toml
  xqflow transform order.xml --config summary.toml --store messages.db --output-channel summaries`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransform(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "definition file (required)")
	cmd.Flags().StringVar(&opts.Store, "store", "", "SQLite message store for --output-channel")
	cmd.Flags().StringVarP(&opts.OutputChannel, "output-channel", "o", "", "store channel receiving the transformed message")
	cmd.Flags().StringArrayVarP(&opts.Headers, "header", "H", nil, "message header (name=value, repeatable)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runTransform(opts *TransformOptions, input string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	def, err := config.Load(opts.Config)
	if err != nil {
		return formatter.Fail("failed to load definition", err)
	}
	logger, err := opts.logger(def.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	storePath := opts.Store
	if storePath == "" {
		storePath = def.StorePath()
	}
	if opts.OutputChannel != "" && storePath == "" {
		return NewExitError(ExitCommandError, "--output-channel requires --store")
	}

	payload, err := readPayload(input, cmd.InOrStdin())
	if err != nil {
		return err
	}
	headers, err := parseHeaders(opts.Headers)
	if err != nil {
		return err
	}

	out, err := transformMessage(commandContext(cmd), def, message.New(payload, headers), logger)
	if err != nil {
		return formatter.Fail("transform failed", err)
	}
	if out == nil {
		formatter.VerboseLog("payload held nothing to query; no reply")
		return nil
	}

	if opts.OutputChannel != "" {
		if err := deliver(commandContext(cmd), storePath, opts.OutputChannel, out, logger); err != nil {
			return formatter.Fail("delivery failed", err)
		}
		formatter.VerboseLog("delivered %s to %s", out.ID, opts.OutputChannel)
	}

	if formatter.Format == "json" {
		return formatter.Success(TransformResult{
			Payload: jsonValue(out.Payload, def.FormatOutput),
			Headers: out.Headers,
			Channel: opts.OutputChannel,
		})
	}
	renderPayload(formatter.Writer, out.Payload, def.FormatOutput)
	return nil
}

// transformMessage runs def's transformer on msg. The reply is sent to an
// in-memory channel so the transformer's handler path is the one exercised.
func transformMessage(ctx context.Context, def *config.Definition, msg *message.Message, logger *zap.Logger) (*message.Message, error) {
	t, err := def.NewTransformer(logger)
	if err != nil {
		return nil, err
	}

	replies := channel.NewQueue("replies")
	defer replies.Close()

	if err := t.Handler(replies)(ctx, msg); err != nil {
		return nil, err
	}
	out, ok, err := replies.Poll(ctx)
	if err != nil || !ok {
		return nil, err
	}
	return out, nil
}

func deliver(ctx context.Context, storePath, name string, msg *message.Message, logger *zap.Logger) error {
	st, err := store.Open(storePath)
	if err != nil {
		return storeError(err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("close store failed", zap.Error(err))
		}
	}()

	if err := st.Channel(name).Send(ctx, msg); err != nil {
		return storeError(err)
	}
	return nil
}
