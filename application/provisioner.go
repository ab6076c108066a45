package application

import "context"

// Provisioner issues the provisioning request and returns the raw response
// body of a successful (HTTP 200) response.
type Provisioner interface {
	RequestConfiguration(ctx context.Context) ([]byte, error)
}
