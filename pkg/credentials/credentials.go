// Package credentials resolves named credential handles into short-lived
// object-storage access keys. Nothing here caches: every Resolve goes back to
// the source so keys never outlive a single task execution.
package credentials

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
)

// Credentials is an access-key pair with an optional session token.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

type Provider interface {
	Resolve(ctx context.Context, handle string) (Credentials, error)
}

// AWSProvider loads credentials through the AWS default chain. A non-empty
// handle selects the shared config profile of that name.
type AWSProvider struct {
	Region string
}

func (p AWSProvider) Resolve(ctx context.Context, handle string) (Credentials, error) {
	var opts []func(*config.LoadOptions) error
	if p.Region != "" {
		opts = append(opts, config.WithRegion(p.Region))
	}
	if handle != "" {
		opts = append(opts, config.WithSharedConfigProfile(handle))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return Credentials{}, fmt.Errorf("load aws config for %q: %w", handle, err)
	}
	if cfg.Credentials == nil {
		return Credentials{}, fmt.Errorf("no aws credentials configured for %q", handle)
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return Credentials{}, fmt.Errorf("retrieve aws credentials for %q: %w", handle, err)
	}
	return Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretAccessKey,
		SessionToken:    creds.SessionToken,
	}, nil
}

// Static serves fixed credentials by handle. Used for local runs and tests.
type Static map[string]Credentials

func (s Static) Resolve(_ context.Context, handle string) (Credentials, error) {
	c, ok := s[handle]
	if !ok {
		return Credentials{}, fmt.Errorf("unknown credentials handle %q", handle)
	}
	return c, nil
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, handle string) (Credentials, error)

func (f ProviderFunc) Resolve(ctx context.Context, handle string) (Credentials, error) {
	return f(ctx, handle)
}
