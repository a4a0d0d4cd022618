package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/custody"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(AmountResult{Address: "0x01", AmountETH: "1.5"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(AmountResult{Address: "0x01", AmountETH: "1.5"}))
	assert.Equal(t, "1.5 ETH\n", buf.String())
}

func TestOutputFormatter_TextErrorGoesToErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut}

	require.NoError(t, formatter.Error("not_owner", "withdraw refused", nil))
	assert.Empty(t, out.String())
	assert.Equal(t, "Error [not_owner]: withdraw refused\n", errOut.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	errOut := &bytes.Buffer{}
	quiet := &OutputFormatter{Format: "text", Writer: &bytes.Buffer{}, ErrWriter: errOut}
	quiet.VerboseLog("hidden %d", 1)
	assert.Empty(t, errOut.String())

	loud := &OutputFormatter{Format: "text", Writer: &bytes.Buffer{}, ErrWriter: errOut, Verbose: true}
	loud.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", errOut.String())
}

func TestLedgerErrorExitCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		want string
	}{
		{
			name: "below minimum",
			err:  &fundme.BelowMinimumError{Value: big.NewInt(1), Converted: big.NewInt(1), Minimum: big.NewInt(2)},
			code: ExitFailure,
			want: "insufficient_contribution",
		},
		{
			name: "not owner",
			err:  &fundme.NotOwnerError{Caller: common.Address{1}, Owner: common.Address{2}},
			code: ExitFailure,
			want: "not_owner",
		},
		{
			name: "oracle",
			err:  fmt.Errorf("%w: stale", fundme.ErrOracleUnavailable),
			code: ExitFailure,
			want: "oracle_unavailable",
		},
		{
			name: "wallet",
			err:  fmt.Errorf("%w: empty", custody.ErrInsufficientFunds),
			code: ExitFailure,
			want: "insufficient_funds",
		},
		{
			name: "store",
			err:  fundme.ErrStoreClosed,
			code: ExitCommandError,
			want: "command_error",
		},
		{
			name: "unclassified",
			err:  errors.New("boom"),
			code: ExitCommandError,
			want: "command_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ledgerError("op", tt.err)
			assert.Equal(t, tt.code, GetExitCode(err))
			assert.Equal(t, tt.want, errorCode(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "bad"))))
}
