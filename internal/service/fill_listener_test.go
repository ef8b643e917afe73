package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

func TestFillListener_ReportsOnlyTracked(t *testing.T) {
	stream := &fakeStream{events: []domain.FillEvent{
		{OrderID: "0x1", EventType: "trade", Status: "MATCHED"},
		{OrderID: "0xforeign", EventType: "order"},
		{OrderID: "0x2", EventType: "order", Status: "LIVE"},
	}}
	audit := &memAudit{}
	l := NewFillListener(newMemLedger(map[string][]string{"m": {"0x1", "0x2"}}), stream, audit, nil, discardLogger())

	require.NoError(t, l.Run(t.Context()))
	assert.EqualValues(t, 2, l.Reported())
	assert.Equal(t, []string{"order_fill", "order_fill"}, audit.events)
}

func TestFillListener_StreamErrorReturned(t *testing.T) {
	stream := &fakeStream{err: domain.ErrWSDisconnect}
	l := NewFillListener(newMemLedger(nil), stream, nil, nil, discardLogger())

	err := l.Run(t.Context())
	assert.True(t, errors.Is(err, domain.ErrWSDisconnect))
}
