package router

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/xqflow/internal/channel"
	"github.com/roach88/xqflow/internal/message"
	"github.com/roach88/xqflow/internal/store"
	"github.com/roach88/xqflow/internal/xquery"
)

const order = `<order tier="gold"><channel>audit</channel><channel>billing</channel></order>`

func executor(t *testing.T, query string, params ...xquery.Parameter) *xquery.Executor {
	t.Helper()
	opts := []xquery.Option{xquery.WithQuery(query)}
	if len(params) > 0 {
		opts = append(opts, xquery.WithParameters(params...))
	}
	e, err := xquery.NewExecutor(opts...)
	require.NoError(t, err)
	return e
}

func names(channels []channel.Channel) []string {
	out := make([]string, len(channels))
	for i, ch := range channels {
		out[i] = ch.Name()
	}
	return out
}

func TestRouter_RoutesByQueryResult(t *testing.T) {
	reg := channel.NewRegistry(channel.WithAutoCreate(channel.QueueFactory))
	r, err := New(executor(t, "//channel/text()"), reg)
	require.NoError(t, err)

	ctx := context.Background()
	msg := message.New(order, nil)

	keys, err := r.ChannelKeys(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, []string{"audit", "billing"}, keys)

	require.NoError(t, r.Handle(ctx, msg))
	for _, name := range []string{"audit", "billing"} {
		ch, err := reg.ResolveChannel(name)
		require.NoError(t, err)
		got, ok, err := ch.(channel.PollableChannel).Poll(ctx)
		require.NoError(t, err)
		require.True(t, ok, name)
		assert.Equal(t, msg.ID, got.ID)
	}
}

func TestRouter_ElementResultsRouteOnMarkup(t *testing.T) {
	reg := channel.NewRegistry(channel.WithAutoCreate(channel.QueueFactory))
	r, err := New(executor(t, "//channel"), reg,
		WithChannelMapping("<channel>audit</channel>", "audit"),
	)
	require.NoError(t, err)

	ctx := context.Background()
	msg := message.New(order, nil)

	keys, err := r.ChannelKeys(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, []string{"<channel>audit</channel>", "<channel>billing</channel>"}, keys)

	channels, err := r.Route(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, []string{"audit", "<channel>billing</channel>"}, names(channels))
}

func TestRouter_MappingsPrefixSuffix(t *testing.T) {
	reg := channel.NewRegistry(channel.WithAutoCreate(channel.QueueFactory))
	r, err := New(executor(t, "string(/order/@tier)"), reg,
		WithChannelMapping("gold", "priority"),
		WithPrefix("orders."),
		WithSuffix(".in"),
	)
	require.NoError(t, err)

	channels, err := r.Route(context.Background(), message.New(order, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"orders.priority.in"}, names(channels))

	r, err = New(executor(t, "string(/order/@tier)"), reg, WithPrefix("orders."))
	require.NoError(t, err)
	channels, err = r.Route(context.Background(), message.New(order, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"orders.gold"}, names(channels))
}

func TestRouter_CommaSeparatedKeys(t *testing.T) {
	reg := channel.NewRegistry(channel.WithAutoCreate(channel.QueueFactory))
	r, err := New(executor(t, `"a, b,,a"`), reg)
	require.NoError(t, err)

	channels, err := r.Route(context.Background(), message.New("<x/>", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names(channels))
}

func TestRouter_Resolution(t *testing.T) {
	ctx := context.Background()
	reg := channel.NewRegistry()
	require.NoError(t, reg.Register(channel.NewQueue("billing"), channel.NewQueue("fallback")))

	strict, err := New(executor(t, "//channel/text()"), reg)
	require.NoError(t, err)
	_, err = strict.Route(ctx, message.New(order, nil))
	require.Error(t, err)
	assert.True(t, message.IsExecutionError(err))
	assert.ErrorIs(t, err, channel.ErrNotFound)

	lenient, err := New(executor(t, "//channel/text()"), reg, WithResolutionRequired(false))
	require.NoError(t, err)
	channels, err := lenient.Route(ctx, message.New(order, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"billing"}, names(channels))

	none, err := New(executor(t, "//missing"), reg)
	require.NoError(t, err)
	_, err = none.Route(ctx, message.New(order, nil))
	assert.ErrorContains(t, err, "no channel resolved by router and no default output channel defined")

	withDefault, err := New(executor(t, "//missing"), reg, WithDefaultOutputChannel("fallback"))
	require.NoError(t, err)
	channels, err = withDefault.Route(ctx, message.New(order, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"fallback"}, names(channels))
}

func TestRouter_Parameters(t *testing.T) {
	reg := channel.NewRegistry(channel.WithAutoCreate(channel.QueueFactory))
	region, err := xquery.NewExpressionParameter("region", `headers.region ?? "eu"`)
	require.NoError(t, err)

	e := executor(t, "declare variable $region external;\nconcat(/order/@tier, '-', $region)", region)
	r, err := New(e, reg)
	require.NoError(t, err)

	ctx := context.Background()
	channels, err := r.Route(ctx, message.New(order, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"gold-eu"}, names(channels))

	channels, err = r.Route(ctx, message.New(order, message.Headers{"region": "us"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"gold-us"}, names(channels))
}

func TestRouter_ApplySequence(t *testing.T) {
	ctx := context.Background()
	reg := channel.NewRegistry(channel.WithAutoCreate(channel.QueueFactory))
	r, err := New(executor(t, "//channel/text()"), reg, WithApplySequence(true))
	require.NoError(t, err)

	msg := message.New(order, message.Headers{"source": "test"})
	require.NoError(t, r.Handle(ctx, msg))

	for i, name := range []string{"audit", "billing"} {
		ch, err := reg.ResolveChannel(name)
		require.NoError(t, err)
		got, ok, err := ch.(channel.PollableChannel).Poll(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		assert.NotEqual(t, msg.ID, got.ID)
		assert.Equal(t, msg.ID.String(), got.Headers[message.HeaderCorrelationID])
		assert.Equal(t, i+1, got.Headers[message.HeaderSequenceNumber])
		assert.Equal(t, 2, got.Headers[message.HeaderSequenceSize])
		assert.Equal(t, "test", got.Headers["source"])
	}
}

func TestRouter_SendFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	billing := channel.NewQueue("billing")
	reg := channel.NewRegistry()
	require.NoError(t, reg.Register(
		channel.NewDirect("audit", func(context.Context, *message.Message) error { return boom }),
		billing,
	))

	strict, err := New(executor(t, "//channel/text()"), reg)
	require.NoError(t, err)
	err = strict.Handle(ctx, message.New(order, nil))
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, `failed to send message to channel "audit"`)
	assert.Zero(t, billing.Len())

	core, logs := observer.New(zapcore.WarnLevel)
	lenient, err := New(executor(t, "//channel/text()"), reg,
		WithIgnoreSendFailures(true),
		WithLogger(zap.New(core)),
	)
	require.NoError(t, err)
	require.NoError(t, lenient.Handle(ctx, message.New(order, nil)))
	assert.Equal(t, 1, billing.Len())
	assert.Equal(t, 1, logs.FilterMessage("ignoring send failure").Len())
}

func TestRouter_FanOutToStore(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "messages.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := channel.NewRegistry(channel.WithAutoCreate(st.Factory()))
	r, err := New(executor(t, `"gold,audit"`), reg)
	require.NoError(t, err)

	msg := message.New(order, nil)
	require.NoError(t, r.Handle(ctx, msg))

	for _, name := range []string{"gold", "audit"} {
		got, ok, err := st.PollMessage(ctx, name)
		require.NoError(t, err)
		require.True(t, ok, "no copy on %s", name)
		assert.Equal(t, msg.ID, got.ID)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, channel.NewRegistry())
	assert.True(t, message.IsConfigError(err))

	_, err = New(executor(t, "1"), nil)
	assert.True(t, message.IsConfigError(err))
}
