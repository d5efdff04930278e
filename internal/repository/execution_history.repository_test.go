package repository

import (
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/krobus00/futures-signal-executor/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildInsertExecutionQuery(t *testing.T) {
	now := time.Now().UTC()
	history := &entity.ExecutionHistory{
		RequestID:    "req-1",
		Symbol:       "BTC_USDT",
		Direction:    "BUY",
		Quantity:     decimal.RequireFromString("0.5"),
		Leverage:     5,
		Status:       "SUCCESS",
		OpenSide:     null.StringFrom("OPEN_LONG"),
		OpenOrderID:  null.StringFrom("123"),
		OpenAccepted: null.BoolFrom(true),
		StartedAt:    now,
		FinishedAt:   now,
		CreatedAt:    now,
	}

	query, args, err := buildInsertExecutionQuery(history)
	require.NoError(t, err)

	assert.Contains(t, query, "INSERT INTO executions")
	assert.Contains(t, query, "RETURNING id")
	assert.Contains(t, query, "$18")
	require.Len(t, args, 18)
	assert.Equal(t, "req-1", args[0])
	assert.Equal(t, "BTC_USDT", args[1])
	assert.Equal(t, null.String{}, args[6])
}

func TestBuildListExecutionsQuery(t *testing.T) {
	cases := []struct {
		name      string
		filter    ExecutionHistoryFilter
		contains  []string
		args      []any
		wantLimit string
	}{
		{
			name:      "no filter uses default limit",
			filter:    ExecutionHistoryFilter{},
			wantLimit: "LIMIT 50",
		},
		{
			name:      "symbol and status",
			filter:    ExecutionHistoryFilter{Symbol: "ETH_USDT", Status: "failed", Limit: 10},
			contains:  []string{"symbol = $1", "status = $2"},
			args:      []any{"ETH_USDT", "FAILED"},
			wantLimit: "LIMIT 10",
		},
		{
			name:      "limit is capped",
			filter:    ExecutionHistoryFilter{Limit: 10_000},
			wantLimit: "LIMIT 500",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			query, args, err := buildListExecutionsQuery(tc.filter)
			require.NoError(t, err)

			assert.Contains(t, query, "FROM executions")
			assert.Contains(t, query, "ORDER BY created_at desc")
			assert.Contains(t, query, tc.wantLimit)
			for _, fragment := range tc.contains {
				assert.Contains(t, query, fragment)
			}
			if tc.args == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tc.args, args)
			}
		})
	}
}
