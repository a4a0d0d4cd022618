// Package audithook bridges fundme ledger events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme"
	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/plugin"
	"github.com/xraph/fundme/types"
	"github.com/xraph/fundme/withdrawal"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnInit                 = (*Extension)(nil)
	_ plugin.OnShutdown             = (*Extension)(nil)
	_ plugin.OnContributed          = (*Extension)(nil)
	_ plugin.OnContributionRejected = (*Extension)(nil)
	_ plugin.OnWithdrawn            = (*Extension)(nil)
	_ plugin.OnWithdrawalFailed     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a single audit trail entry.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges ledger events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// OnInit implements plugin.OnInit.
func (e *Extension) OnInit(ctx context.Context, _ interface{}) error {
	e.send(ctx, lifecycle(ActionLedgerStarted), nil)
	return nil
}

// OnShutdown implements plugin.OnShutdown.
func (e *Extension) OnShutdown(ctx context.Context) error {
	e.send(ctx, lifecycle(ActionLedgerStopped), nil)
	return nil
}

func lifecycle(action string) *AuditEvent {
	return &AuditEvent{
		Action:   action,
		Resource: ResourceLedger,
		Category: CategoryLifecycle,
		Outcome:  OutcomeSuccess,
		Severity: SeverityInfo,
	}
}

// ──────────────────────────────────────────────────
// Contribution hooks
// ──────────────────────────────────────────────────

// OnContributed implements plugin.OnContributed.
func (e *Extension) OnContributed(ctx context.Context, c *contribution.Contribution) error {
	e.send(ctx, &AuditEvent{
		Action:     ActionContributionAccepted,
		Resource:   ResourceContribution,
		Category:   CategoryFunding,
		ResourceID: c.ID.String(),
		Outcome:    OutcomeSuccess,
		Severity:   SeverityInfo,
		Metadata: map[string]any{
			"contributor": c.Contributor.Hex(),
			"value_eth":   types.FormatEther(c.Value),
			"value_usd":   types.FormatUSD(c.ReferenceValue),
			"position":    c.Position,
		},
	}, nil)
	return nil
}

// OnContributionRejected implements plugin.OnContributionRejected. An
// unreachable price feed is a warning; a contribution under the floor is not.
func (e *Extension) OnContributionRejected(ctx context.Context, from common.Address, value *big.Int, reason error) error {
	severity := SeverityInfo
	if errors.Is(reason, fundme.ErrOracleUnavailable) {
		severity = SeverityWarning
	}
	e.send(ctx, &AuditEvent{
		Action:   ActionContributionRejected,
		Resource: ResourceContribution,
		Category: CategoryFunding,
		Outcome:  OutcomeFailure,
		Severity: severity,
		Metadata: map[string]any{
			"contributor": from.Hex(),
			"value_eth":   types.FormatEther(value),
			"kind":        string(fundme.KindOf(reason)),
		},
	}, reason)
	return nil
}

// ──────────────────────────────────────────────────
// Withdrawal hooks
// ──────────────────────────────────────────────────

// OnWithdrawn implements plugin.OnWithdrawn.
func (e *Extension) OnWithdrawn(ctx context.Context, w *withdrawal.Withdrawal) error {
	e.send(ctx, &AuditEvent{
		Action:     ActionWithdrawalCompleted,
		Resource:   ResourceWithdrawal,
		Category:   CategoryPayout,
		ResourceID: w.ID.String(),
		Outcome:    OutcomeSuccess,
		Severity:   SeverityInfo,
		Metadata: map[string]any{
			"owner":        w.Owner.Hex(),
			"amount_eth":   types.FormatEther(w.Amount),
			"funders":      w.Funders,
			"contributors": w.Contributors,
		},
	}, nil)
	return nil
}

// OnWithdrawalFailed implements plugin.OnWithdrawalFailed. Attempts by
// anyone but the owner are recorded as access denials.
func (e *Extension) OnWithdrawalFailed(ctx context.Context, caller common.Address, reason error) error {
	evt := &AuditEvent{
		Action:   ActionWithdrawalFailed,
		Resource: ResourceWithdrawal,
		Category: CategoryPayout,
		Outcome:  OutcomeFailure,
		Severity: SeverityError,
		Metadata: map[string]any{"caller": caller.Hex()},
	}
	if errors.Is(reason, fundme.ErrNotOwner) {
		evt.Action = ActionWithdrawalDenied
		evt.Category = CategoryAccess
		evt.Severity = SeverityWarning
	}
	e.send(ctx, evt, reason)
	return nil
}

// send records evt unless its action is filtered out. A recorder failure is
// logged and never fails the ledger operation.
func (e *Extension) send(ctx context.Context, evt *AuditEvent, err error) {
	if e.enabled != nil && !e.enabled[evt.Action] {
		return
	}
	if err != nil {
		if evt.Metadata == nil {
			evt.Metadata = map[string]any{}
		}
		evt.Reason = err.Error()
		evt.Metadata["error"] = evt.Reason
	}
	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: recorder failed",
			"action", evt.Action,
			"resource_id", evt.ResourceID,
			"error", recErr,
		)
	}
}
