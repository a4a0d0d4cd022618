package mongo

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"

	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/deployment"
	"github.com/xraph/fundme/id"
	"github.com/xraph/fundme/types"
	"github.com/xraph/fundme/withdrawal"
)

// ==================== Deployment models ====================

type deploymentModel struct {
	grove.BaseModel `grove:"table:fundme_deployments"`

	ID         string    `grove:"id,pk" bson:"_id"`
	Owner      string    `grove:"owner" bson:"owner"`
	PriceFeed  string    `grove:"price_feed" bson:"price_feed"`
	MinimumUSD string    `grove:"minimum_usd" bson:"minimum_usd"`
	CreatedAt  time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at" bson:"updated_at"`
}

func toDeploymentModel(d *deployment.Deployment) *deploymentModel {
	return &deploymentModel{
		ID:         d.ID.String(),
		Owner:      d.Owner.Hex(),
		PriceFeed:  d.PriceFeed.Hex(),
		MinimumUSD: d.MinimumUSD.String(),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
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

// ==================== Contribution models ====================

// Contributor totals and the funder index are written with raw collection
// operations keyed by address and position.

type contributorModel struct {
	Address string `bson:"_id"`
	Total   string `bson:"total"`
}

type funderModel struct {
	Position int    `bson:"_id"`
	Address  string `bson:"address"`
}

type contributionModel struct {
	grove.BaseModel `grove:"table:fundme_contributions"`

	ID             string    `grove:"id,pk" bson:"_id"`
	Seq            int64     `grove:"seq" bson:"seq"`
	Contributor    string    `grove:"contributor" bson:"contributor"`
	Value          string    `grove:"value" bson:"value"`
	ReferenceValue string    `grove:"reference_value" bson:"reference_value"`
	Position       int       `grove:"position" bson:"position"`
	CreatedAt      time.Time `grove:"created_at" bson:"created_at"`
}

func toContributionModel(c *contribution.Contribution, seq int64) *contributionModel {
	ref := "0"
	if c.ReferenceValue != nil {
		ref = c.ReferenceValue.String()
	}
	return &contributionModel{
		ID:             c.ID.String(),
		Seq:            seq,
		Contributor:    c.Contributor.Hex(),
		Value:          c.Value.String(),
		ReferenceValue: ref,
		Position:       c.Position,
		CreatedAt:      c.CreatedAt,
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

// ==================== Withdrawal models ====================

type withdrawalModel struct {
	grove.BaseModel `grove:"table:fundme_withdrawals"`

	ID           string    `grove:"id,pk" bson:"_id"`
	Seq          int64     `grove:"seq" bson:"seq"`
	Owner        string    `grove:"owner" bson:"owner"`
	Amount       string    `grove:"amount" bson:"amount"`
	Funders      int       `grove:"funders" bson:"funders"`
	Contributors int       `grove:"contributors" bson:"contributors"`
	CreatedAt    time.Time `grove:"created_at" bson:"created_at"`
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

type counterModel struct {
	Name string `bson:"_id"`
	Seq  int64  `bson:"seq"`
}
