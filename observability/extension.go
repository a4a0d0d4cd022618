// Package observability provides a metrics plugin for fundme that records
// contribution and withdrawal counts through a MetricFactory.
package observability

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/plugin"
	"github.com/xraph/fundme/types"
	"github.com/xraph/fundme/withdrawal"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnContributed          = (*MetricsExtension)(nil)
	_ plugin.OnContributionRejected = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawn            = (*MetricsExtension)(nil)
	_ plugin.OnWithdrawalFailed     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records ledger activity.
// Register it as a fundme plugin to track contributions and withdrawals.
type MetricsExtension struct {
	factory MetricFactory

	Starts Counter

	// Contribution metrics
	ContributionAccepted    Counter
	ContributionBelowMin    Counter
	ContributionUnavailable Counter
	ContributionRejected    Counter
	ContributionEther       Histogram
	ContributionUSD         Histogram

	// Withdrawal metrics
	WithdrawalCompleted    Counter
	WithdrawalUnauthorized Counter
	WithdrawalFailed       Counter
	WithdrawalEther        Histogram
	WithdrawalFunders      Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		Starts: factory.Counter("fundme.ledger.starts"),

		ContributionAccepted:    factory.Counter("fundme.contribution.accepted"),
		ContributionBelowMin:    factory.Counter("fundme.contribution.below_minimum"),
		ContributionUnavailable: factory.Counter("fundme.contribution.oracle_unavailable"),
		ContributionRejected:    factory.Counter("fundme.contribution.rejected"),
		ContributionEther:       factory.Histogram("fundme.contribution.ether"),
		ContributionUSD:         factory.Histogram("fundme.contribution.usd"),

		WithdrawalCompleted:    factory.Counter("fundme.withdrawal.completed"),
		WithdrawalUnauthorized: factory.Counter("fundme.withdrawal.unauthorized"),
		WithdrawalFailed:       factory.Counter("fundme.withdrawal.failed"),
		WithdrawalEther:        factory.Histogram("fundme.withdrawal.ether"),
		WithdrawalFunders:      factory.Histogram("fundme.withdrawal.funders"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	m.Starts.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Contribution hooks
// ──────────────────────────────────────────────────

// OnContributed implements plugin.OnContributed.
func (m *MetricsExtension) OnContributed(_ context.Context, c *contribution.Contribution) error {
	m.ContributionAccepted.Inc()
	m.ContributionEther.Observe(scaled(c.Value))
	if c.ReferenceValue != nil {
		m.ContributionUSD.Observe(scaled(c.ReferenceValue))
	}
	return nil
}

// OnContributionRejected implements plugin.OnContributionRejected.
func (m *MetricsExtension) OnContributionRejected(_ context.Context, _ common.Address, _ *big.Int, reason error) error {
	m.ContributionRejected.Inc()
	switch {
	case errors.Is(reason, fundme.ErrInsufficientContribution):
		m.ContributionBelowMin.Inc()
	case errors.Is(reason, fundme.ErrOracleUnavailable):
		m.ContributionUnavailable.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawn implements plugin.OnWithdrawn.
func (m *MetricsExtension) OnWithdrawn(_ context.Context, w *withdrawal.Withdrawal) error {
	m.WithdrawalCompleted.Inc()
	m.WithdrawalEther.Observe(scaled(w.Amount))
	m.WithdrawalFunders.Observe(float64(w.Funders))
	return nil
}

// OnWithdrawalFailed implements plugin.OnWithdrawalFailed.
func (m *MetricsExtension) OnWithdrawalFailed(_ context.Context, _ common.Address, reason error) error {
	if errors.Is(reason, fundme.ErrNotOwner) {
		m.WithdrawalUnauthorized.Inc()
		return nil
	}
	m.WithdrawalFailed.Inc()
	return nil
}

// scaled converts an 18-decimal fixed-point amount to a float for reporting.
func scaled(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), new(big.Float).SetInt(types.Pow10(types.EtherDecimals))).Float64()
	return f
}
