package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/models"
	"github.com/ternarybob/venator/internal/services/metrics"
	"github.com/ternarybob/venator/internal/services/workerpool"
)

func newTestDispatcher(t *testing.T, balance int) *Dispatcher {
	t.Helper()
	pool := workerpool.New(common.WorkersConfig{PoolSize: 2, QueueSize: 16}, arbor.NewLogger())
	t.Cleanup(pool.Close)
	ledger := NewLedger(common.CreditsConfig{Balance: balance, Costs: map[string]int{"expensive": 10}})
	return NewDispatcher(ledger, pool, metrics.New(), arbor.NewLogger())
}

func TestDispatchSuccess(t *testing.T) {
	d := newTestDispatcher(t, 100)
	d.Register("echo", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		return map[string]string{"ok": "yes"}, nil
	})

	env := d.Dispatch(context.Background(), "echo", json.RawMessage(`{}`))
	assert.True(t, env.Success)
	assert.Nil(t, env.Error)
	assert.Equal(t, 99, env.Credits)
}

func TestDispatchUnknownTool(t *testing.T) {
	d := newTestDispatcher(t, 100)

	env := d.Dispatch(context.Background(), "nope", json.RawMessage(`{}`))
	require.False(t, env.Success)
	assert.Equal(t, models.KindInvalidArgument, env.Error.Kind)
	assert.Equal(t, 100, env.Credits, "no charge for unknown tools")
}

func TestDispatchCreditExhaustion(t *testing.T) {
	d := newTestDispatcher(t, 5)
	d.Register("expensive", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		return nil, nil
	})

	env := d.Dispatch(context.Background(), "expensive", json.RawMessage(`{}`))
	require.False(t, env.Success)
	assert.Equal(t, models.KindCreditExhausted, env.Error.Kind)
	assert.Equal(t, 5, env.Credits, "balance untouched on refusal")
}

func TestDispatchRefundsInternalFailures(t *testing.T) {
	d := newTestDispatcher(t, 100)
	d.Register("crash", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		return nil, models.NewError(models.KindInternal, "database exploded: secret details")
	})
	d.Register("reject", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		return nil, models.NewError(models.KindRobotsDisallowed, "robots.txt disallows")
	})

	env := d.Dispatch(context.Background(), "crash", json.RawMessage(`{}`))
	require.False(t, env.Success)
	assert.Equal(t, 100, env.Credits, "internal failure refunded")
	assert.Equal(t, "internal error", env.Error.Message, "internals sanitized")
	assert.NotEmpty(t, env.Error.CorrelationID)

	env = d.Dispatch(context.Background(), "reject", json.RawMessage(`{}`))
	require.False(t, env.Success)
	assert.Equal(t, 99, env.Credits, "policy rejection is not refunded")
	assert.Equal(t, models.KindRobotsDisallowed, env.Error.Kind)
	assert.Empty(t, env.Error.CorrelationID)
}

type truncatedResult struct {
	Items []string `json:"items"`
}

func (truncatedResult) WasTruncated() bool { return true }

func TestDispatchTruncatedFlag(t *testing.T) {
	d := newTestDispatcher(t, 100)
	d.Register("partial", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		return truncatedResult{Items: []string{"a"}}, nil
	})

	env := d.Dispatch(context.Background(), "partial", json.RawMessage(`{}`))
	require.True(t, env.Success)
	assert.True(t, env.Truncated)
}

func TestDecodeArgsStrict(t *testing.T) {
	d := newTestDispatcher(t, 100)

	var args FetchURLArgs

	err := d.DecodeArgs(json.RawMessage(`{"url":"https://example.com","bogus":1}`), &args)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindUnknownField))

	args = FetchURLArgs{}
	err = d.DecodeArgs(json.RawMessage(`{}`), &args)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindInvalidArgument))
	assert.Contains(t, err.Error(), "url", "violations name the JSON parameter")

	args = FetchURLArgs{}
	err = d.DecodeArgs(json.RawMessage(`{"url":"https://example.com","timeout_ms":5}`), &args)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindOutOfRange))

	args = FetchURLArgs{}
	err = d.DecodeArgs(json.RawMessage(`{"url":"https://example.com","method":"GET","timeout_ms":2000}`), &args)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", args.URL)
	assert.Equal(t, 2000, args.TimeoutMs)

	err = d.DecodeArgs(nil, &args)
	require.NoError(t, err, "empty arguments decode as an empty object")
}

func TestDecodeSearchWebLocalization(t *testing.T) {
	d := newTestDispatcher(t, 100)

	var args SearchWebArgs
	err := d.DecodeArgs(json.RawMessage(`{"query":"tide tables","localization":"de-DE"}`), &args)
	require.NoError(t, err, "localization is a documented optional parameter")
	assert.Equal(t, "de-DE", args.Localization)
}

func TestDecodeArgsEnums(t *testing.T) {
	d := newTestDispatcher(t, 100)

	var args BatchScrapeArgs
	err := d.DecodeArgs(json.RawMessage(`{"urls":["https://example.com"],"priority":"urgent"}`), &args)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindInvalidArgument))

	args = BatchScrapeArgs{}
	err = d.DecodeArgs(json.RawMessage(`{"urls":["https://example.com"],"priority":"high","format":"markdown"}`), &args)
	require.NoError(t, err)
}

func TestLedger(t *testing.T) {
	ledger := NewLedger(common.CreditsConfig{Balance: 10, Costs: map[string]int{"big": 7}})

	assert.Equal(t, 7, ledger.Cost("big"))
	assert.Equal(t, 1, ledger.Cost("unlisted"))

	cost, err := ledger.Charge("big")
	require.NoError(t, err)
	assert.Equal(t, 7, cost)
	assert.Equal(t, 3, ledger.Balance())

	_, err = ledger.Charge("big")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindCreditExhausted))
	assert.Equal(t, 3, ledger.Balance(), "failed charge does not deduct")

	ledger.Refund(7)
	assert.Equal(t, 10, ledger.Balance())
}
