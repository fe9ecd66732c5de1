package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/xqflow/internal/channel"
	"github.com/roach88/xqflow/internal/config"
	"github.com/roach88/xqflow/internal/message"
	"github.com/roach88/xqflow/internal/store"
)

// RouteOptions holds flags for the route command.
type RouteOptions struct {
	*RootOptions
	Config  string
	Store   string
	Headers []string
}

// RouteResult is the JSON output of the route command.
type RouteResult struct {
	Channels []string `json:"channels"`
	Store    string   `json:"store,omitempty"`
}

// NewRouteCommand creates the route command.
func NewRouteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RouteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "route <xml-file|->",
		Short: "Route an XML message with a definition",
		Long: `Evaluate the definition's query against an XML message and print the
channels the message is routed to.

With --store (or store.path in the definition) the message is delivered to
those channels in the SQLite message store; use drain to read them back.

Example:
  xqflow route order.xml --config route.yaml
  xqflow route order.xml --config route.yaml --store messages.db -H region=us`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoute(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "definition file (required)")
	cmd.Flags().StringVar(&opts.Store, "store", "", "SQLite message store to deliver into")
	cmd.Flags().StringArrayVarP(&opts.Headers, "header", "H", nil, "message header (name=value, repeatable)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runRoute(opts *RouteOptions, input string, cmd *cobra.Command) error {
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

	payload, err := readPayload(input, cmd.InOrStdin())
	if err != nil {
		return err
	}
	headers, err := parseHeaders(opts.Headers)
	if err != nil {
		return err
	}

	storePath := opts.Store
	if storePath == "" {
		storePath = def.StorePath()
	}

	names, err := routeMessage(commandContext(cmd), def, storePath, message.New(payload, headers), logger)
	if err != nil {
		return formatter.Fail("routing failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(RouteResult{Channels: names, Store: storePath})
	}
	for _, name := range names {
		fmt.Fprintln(formatter.Writer, name)
	}
	if storePath != "" {
		formatter.VerboseLog("delivered to %d channel(s) in %s", len(names), storePath)
	}
	return nil
}

// routeMessage routes msg with def and returns the names of the channels it
// was sent to. Without a store path the channels are in-memory queues that
// are discarded afterwards.
func routeMessage(ctx context.Context, def *config.Definition, storePath string, msg *message.Message, logger *zap.Logger) ([]string, error) {
	factory := channel.QueueFactory
	if storePath != "" {
		st, err := store.Open(storePath)
		if err != nil {
			return nil, storeError(err)
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Error("close store failed", zap.Error(err))
			}
		}()
		factory = st.Factory()
	}

	reg := channel.NewRegistry(channel.WithAutoCreate(factory))
	defer reg.Close()

	r, err := def.NewRouter(reg, logger)
	if err != nil {
		return nil, err
	}
	if err := r.Handle(ctx, msg); err != nil {
		return nil, err
	}
	return reg.Names(), nil
}
