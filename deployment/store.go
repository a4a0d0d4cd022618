package deployment

import "context"

// Store persists the deployment record.
type Store interface {
	// GetDeployment returns the stored deployment or an error wrapping
	// fundme.ErrDeploymentNotFound.
	GetDeployment(ctx context.Context) (*Deployment, error)
	CreateDeployment(ctx context.Context, d *Deployment) error
}
