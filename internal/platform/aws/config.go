package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// Options narrows the SDK settings this engine sets explicitly. Credentials
// always come from the default chain (environment, shared config, role).
type Options struct {
	Region string
}

// LoadAWSConfig resolves the SDK configuration for the given options.
func LoadAWSConfig(ctx context.Context, opts Options) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx, config.WithRegion(opts.Region))
}
