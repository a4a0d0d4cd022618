package fundme

import (
	"github.com/xraph/fundme/contribution"
	"github.com/xraph/fundme/deployment"
	"github.com/xraph/fundme/types"
	"github.com/xraph/fundme/withdrawal"
)

// Re-export record types so callers rarely need the sub-packages.

// Contribution is re-exported from the contribution package.
type Contribution = contribution.Contribution

// Withdrawal is re-exported from the withdrawal package.
type Withdrawal = withdrawal.Withdrawal

// Deployment is re-exported from the deployment package.
type Deployment = deployment.Deployment

// Re-export unit helpers.
var (
	ParseEther     = types.ParseEther
	MustParseEther = types.MustParseEther
	FormatEther    = types.FormatEther
	FormatUSD      = types.FormatUSD
)
