package polymarket

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

func TestDecodeBatchResponse(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   domain.BatchStatus
		ids      []string
		failures []domain.OrderFailure
		reason   string
	}{
		{
			name:   "list all accepted",
			body:   `[{"success":true,"orderID":"0xa"},{"success":true,"orderID":"0xb"}]`,
			status: domain.BatchSuccess,
			ids:    []string{"0xa", "0xb"},
		},
		{
			name:   "missing success means accepted",
			body:   `[{"orderID":"0xa"}]`,
			status: domain.BatchSuccess,
			ids:    []string{"0xa"},
		},
		{
			name:     "list with rejections",
			body:     `[{"success":true,"orderID":"0xa"},{"success":false,"errorMsg":"not enough balance","orderID":""}]`,
			status:   domain.BatchPartialFailure,
			ids:      []string{"0xa"},
			failures: []domain.OrderFailure{{Index: 1, Reason: "not enough balance"}},
		},
		{
			name:   "single object",
			body:   `{"success":true,"orderID":"0xc","status":"live"}`,
			status: domain.BatchSuccess,
			ids:    []string{"0xc"},
		},
		{
			name:   "error object",
			body:   `{"error":"invalid signature"}`,
			status: domain.BatchError,
			reason: "invalid signature",
		},
		{
			name:   "object without ids",
			body:   `{"status":"ok"}`,
			status: domain.BatchError,
			reason: "no order ids in response",
		},
		{
			name:   "empty body",
			body:   "  ",
			status: domain.BatchError,
			reason: "empty response body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeBatchResponse([]byte(tt.body))
			assert.Equal(t, tt.status, got.Status)
			if tt.ids != nil {
				assert.Equal(t, tt.ids, got.IDs)
			}
			assert.Equal(t, tt.failures, got.Failures)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, got.Reason)
			}
		})
	}
}

func TestDecodeMarkets_Shapes(t *testing.T) {
	for name, body := range map[string]string{
		"list":    `[{"slug":"a"}]`,
		"object":  `{"slug":"a"}`,
		"wrapped": `{"markets":[{"slug":"a"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			got, err := decodeMarkets([]byte(body))
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "a", got[0].Slug)
		})
	}

	got, err := decodeMarkets([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestToMarketWindow(t *testing.T) {
	m := apiMarket{
		Slug:           "btc-up-or-down-15m-1758560400",
		ConditionID:    "0xabc",
		ClobTokenIDs:   `["111","222"]`,
		EventStartTime: "2025-09-22T17:00:00Z",
		NegRisk:        true,
	}
	w, err := m.toMarketWindow()
	require.NoError(t, err)
	assert.Equal(t, [2]string{"111", "222"}, w.OutcomeTokenIDs)
	assert.Equal(t, int64(1758560400), w.StartTime.Unix())
	assert.True(t, w.NegRisk)

	m.ClobTokenIDs = `["111"]`
	_, err = m.toMarketWindow()
	assert.True(t, errors.Is(err, domain.ErrIncompleteMarket))

	m.ClobTokenIDs = `["111","222"]`
	m.EventStartTime = ""
	_, err = m.toMarketWindow()
	assert.True(t, errors.Is(err, domain.ErrIncompleteMarket))
}

func TestUserEvent_FillEvents(t *testing.T) {
	now := time.Unix(1758560500, 0)

	frame := `[
		{"event_type":"order","id":"0xo1","status":"MATCHED","size_matched":"5","price":"0.05"},
		{"event_type":"trade","taker_order_id":"0xt","size":"7","maker_orders":[
			{"order_id":"0xm1","matched_amount":"3","price":"0.04","asset_id":"111"},
			{"order_id":"0xm2","matched_amount":"4","price":"0.04","asset_id":"111"}
		]},
		{"type":"order_update","orderId":12345,"status":"filled","filledSize":10}
	]`
	evs, err := decodeUserFrame([]byte(frame))
	require.NoError(t, err)
	require.Len(t, evs, 3)

	var ids []string
	for _, ev := range evs {
		for _, fe := range ev.fillEvents(now) {
			ids = append(ids, fe.OrderID)
			assert.Equal(t, now, fe.ReceivedAt)
		}
	}
	assert.Equal(t, []string{"0xo1", "0xt", "0xm1", "0xm2", "12345"}, ids)

	update := evs[2].fillEvents(now)[0]
	assert.Equal(t, "order_update", update.EventType)
	assert.Equal(t, "10", update.SizeMatched)
}

func TestDecodeUserFrame_UnknownEventYieldsNothing(t *testing.T) {
	evs, err := decodeUserFrame([]byte(`{"event_type":"book","asset_id":"1"}`))
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Empty(t, evs[0].fillEvents(time.Now()))
}
