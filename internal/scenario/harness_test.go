package scenario

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, sc := range scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, sc)
			require.NoError(t, err)
			assert.True(t, result.Passed())
		})
	}
}

func strptr(s string) *string { return &s }

func TestRun_ReportsMismatch(t *testing.T) {
	sc := &Scenario{
		Name:        "mismatch",
		Description: "expectations that do not hold",
		Steps: []Step{
			{Action: ActionFund, Value: "0.01"},
			{Action: ActionBalance, Expect: &Expect{Result: strptr("5")}},
			{Action: ActionWithdraw, From: "alice", Expect: &Expect{Error: "transfer_failed"}},
		},
	}

	result, err := Run(context.Background(), sc)
	require.NoError(t, err)
	require.Len(t, result.Failures, 3)
	assert.Contains(t, result.Failures[0], "expected outcome ok, got insufficient_contribution")
	assert.Contains(t, result.Failures[1], `expected result "5", got "0"`)
	assert.Contains(t, result.Failures[2], "got not_owner")
	assert.False(t, result.Passed())
}

func TestRun_UnknownAccount(t *testing.T) {
	sc := &Scenario{
		Name:        "unknown",
		Description: "fund from nobody",
		Steps:       []Step{{Action: ActionFund, From: "nobody", Value: "1"}},
	}

	_, err := Run(context.Background(), sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown account "nobody"`)
}

func TestRun_MinimumUSD(t *testing.T) {
	sc := &Scenario{
		Name:        "minimum",
		Description: "a higher floor",
		MinimumUSD:  "3000",
		Steps: []Step{
			{Action: ActionFund, Value: "1", Expect: &Expect{Error: "insufficient_contribution"}},
			{Action: ActionFund, Value: "1.5", Expect: &Expect{Result: strptr("#0")}},
		},
	}

	result, err := Run(context.Background(), sc)
	require.NoError(t, err)
	assert.Empty(t, result.Failures)
}

func TestRun_HexAccount(t *testing.T) {
	sc := &Scenario{
		Name:        "hex",
		Description: "accounts without a name render as hex",
		Steps: []Step{
			{Action: ActionFund, From: "0x00000000000000000000000000000000000000aa", Value: "1"},
			{Action: ActionFunder, Index: 0},
		},
	}

	result, err := Run(context.Background(), sc)
	require.NoError(t, err)
	require.Empty(t, result.Failures)
	assert.Equal(t, common.HexToAddress("0xaa").Hex(), result.Trace[1].Result)
}
