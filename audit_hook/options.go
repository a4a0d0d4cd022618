package audithook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger used when the recorder fails.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}

// WithEnabledActions audits only the given actions. Without it every
// action is audited.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = actionSet(actions)
	}
}

// WithDisabledActions skips the given actions.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		if e.enabled == nil {
			e.enabled = actionSet(allActions)
		}
		for _, action := range actions {
			delete(e.enabled, action)
		}
	}
}

func actionSet(actions []string) map[string]bool {
	set := make(map[string]bool, len(actions))
	for _, action := range actions {
		set[action] = true
	}
	return set
}

// allActions lists every action the extension emits.
var allActions = []string{
	ActionLedgerStarted,
	ActionLedgerStopped,
	ActionContributionAccepted,
	ActionContributionRejected,
	ActionWithdrawalCompleted,
	ActionWithdrawalDenied,
	ActionWithdrawalFailed,
}
