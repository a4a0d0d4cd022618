package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario is a sequence of ledger steps with expected outcomes.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// MinimumUSD is the contribution floor (default: "50").
	MinimumUSD string `yaml:"minimum_usd,omitempty"`

	// Accounts adds named accounts to the built-in development accounts.
	Accounts map[string]string `yaml:"accounts,omitempty"`

	// Steps run in order against one ledger.
	Steps []Step `yaml:"steps"`
}

// Step is one action against the ledger.
type Step struct {
	Action  string  `yaml:"action"`
	From    string  `yaml:"from,omitempty"`
	Account string  `yaml:"account,omitempty"`
	Value   string  `yaml:"value,omitempty"`
	Index   int     `yaml:"index,omitempty"`
	Price   string  `yaml:"price,omitempty"`
	Reason  string  `yaml:"reason,omitempty"`
	Expect  *Expect `yaml:"expect,omitempty"`
}

// Expect is the outcome a step must have.
type Expect struct {
	// Error is the error kind the step fails with, e.g. "not_owner".
	Error string `yaml:"error,omitempty"`

	// Result is the rendered result of a query step.
	Result *string `yaml:"result,omitempty"`
}

// Action names.
const (
	ActionFund             = "fund"
	ActionWithdraw         = "withdraw"
	ActionAmount           = "amount"
	ActionFunder           = "funder"
	ActionFunders          = "funders"
	ActionBalance          = "balance"
	ActionHeld             = "held"
	ActionWallet           = "wallet"
	ActionOwner            = "owner"
	ActionPriceFeed        = "price_feed"
	ActionSetPrice         = "set_price"
	ActionFeedError        = "feed_error"
	ActionFeedRecover      = "feed_recover"
	ActionFailNextTransfer = "fail_next_transfer"
)

var knownActions = map[string]bool{
	ActionFund: true, ActionWithdraw: true, ActionAmount: true, ActionFunder: true,
	ActionFunders: true, ActionBalance: true, ActionHeld: true, ActionWallet: true,
	ActionOwner: true, ActionPriceFeed: true, ActionSetPrice: true, ActionFeedError: true,
	ActionFeedRecover: true, ActionFailNextTransfer: true,
}

// Load reads and validates a scenario file. Unknown fields are rejected so
// typos do not silently skip checks.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validate(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", filepath.Base(path), err)
	}
	return &sc, nil
}

// LoadDir loads every *.yaml file in dir, ordered by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, path := range paths {
		sc, err := Load(path)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[sc.Name]; ok {
			return nil, fmt.Errorf("scenario %q defined in %s and %s", sc.Name, prev, path)
		}
		seen[sc.Name] = path
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

func validate(sc *Scenario) error {
	if sc.Name == "" {
		return errors.New("name is required")
	}
	if sc.Description == "" {
		return errors.New("description is required")
	}
	if len(sc.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}

	for i, step := range sc.Steps {
		if !knownActions[step.Action] {
			return fmt.Errorf("step %d: unknown action %q", i+1, step.Action)
		}
		switch step.Action {
		case ActionFund:
			if step.Value == "" {
				return fmt.Errorf("step %d: fund needs a value", i+1)
			}
		case ActionAmount, ActionWallet:
			if step.Account == "" {
				return fmt.Errorf("step %d: %s needs an account", i+1, step.Action)
			}
		case ActionSetPrice:
			if step.Price == "" {
				return fmt.Errorf("step %d: set_price needs a price", i+1)
			}
		}
	}
	return nil
}
