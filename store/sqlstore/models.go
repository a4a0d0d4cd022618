package sqlstore

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/deployment"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/types"
	"github.com/xraph/fundme/withdrawal"
)

// Wei amounts are stored as base-10 TEXT so neither backend truncates them.

type deploymentModel struct {
	ID         string
	Owner      string
	PriceFeed  string
	MinimumUSD string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const deploymentColumns = `id, owner, price_feed, minimum_usd, created_at, updated_at`

func (m *deploymentModel) fields() []any {
	return []any{&m.ID, &m.Owner, &m.PriceFeed, &m.MinimumUSD, &m.CreatedAt, &m.UpdatedAt}
}

type contributionModel struct {
	ID             string
	Contributor    string
	Value          string
	ReferenceValue string
	Position       int
	CreatedAt      time.Time
}

const contributionColumns = `id, contributor, value, reference_value, position, created_at`

func (m *contributionModel) fields() []any {
	return []any{&m.ID, &m.Contributor, &m.Value, &m.ReferenceValue, &m.Position, &m.CreatedAt}
}

type withdrawalModel struct {
	ID           string
	Owner        string
	Amount       string
	Funders      int
	Contributors int
	CreatedAt    time.Time
}

const withdrawalColumns = `id, owner, amount, funders, contributors, created_at`

func (m *withdrawalModel) fields() []any {
	return []any{&m.ID, &m.Owner, &m.Amount, &m.Funders, &m.Contributors, &m.CreatedAt}
}

func toDeploymentModel(d *deployment.Deployment) *deploymentModel {
	return &deploymentModel{
		ID:         d.ID.String(),
		Owner:      d.Owner.Hex(),
		PriceFeed:  d.PriceFeed.Hex(),
		MinimumUSD: d.MinimumUSD.String(),
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
}

func fromDeploymentModel(m *deploymentModel) (*deployment.Deployment, error) {
	depID, err := id.ParseDeploymentID(m.ID)
	if err != nil {
		return nil, err
	}
	minimum, err := parseWei(m.MinimumUSD)
	if err != nil {
		return nil, err
	}
	return &deployment.Deployment{
		Entity:     types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:         depID,
		Owner:      common.HexToAddress(m.Owner),
		PriceFeed:  common.HexToAddress(m.PriceFeed),
		MinimumUSD: minimum,
	}, nil
}

func toContributionModel(c *contribution.Contribution) *contributionModel {
	ref := "0"
	if c.ReferenceValue != nil {
		ref = c.ReferenceValue.String()
	}
	return &contributionModel{
		ID:             c.ID.String(),
		Contributor:    c.Contributor.Hex(),
		Value:          c.Value.String(),
		ReferenceValue: ref,
		Position:       c.Position,
		CreatedAt:      c.CreatedAt.UTC(),
	}
}

func fromContributionModel(m *contributionModel) (*contribution.Contribution, error) {
	ctbID, err := id.ParseContributionID(m.ID)
	if err != nil {
		return nil, err
	}
	value, err := parseWei(m.Value)
	if err != nil {
		return nil, err
	}
	ref, err := parseWei(m.ReferenceValue)
	if err != nil {
		return nil, err
	}
	return &contribution.Contribution{
		ID:             ctbID,
		Contributor:    common.HexToAddress(m.Contributor),
		Value:          value,
		ReferenceValue: ref,
		Position:       m.Position,
		CreatedAt:      m.CreatedAt,
	}, nil
}

func fromWithdrawalModel(m *withdrawalModel) (*withdrawal.Withdrawal, error) {
	wdrID, err := id.ParseWithdrawalID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := parseWei(m.Amount)
	if err != nil {
		return nil, err
	}
	return &withdrawal.Withdrawal{
		ID:           wdrID,
		Owner:        common.HexToAddress(m.Owner),
		Amount:       amount,
		Funders:      m.Funders,
		Contributors: m.Contributors,
		CreatedAt:    m.CreatedAt,
	}, nil
}

func parseWei(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("sqlstore: malformed amount %q", s)
	}
	return v, nil
}
