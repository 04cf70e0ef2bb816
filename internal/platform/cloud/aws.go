// Package cloud loads aws sdk configuration from SERVICE_AWS_* env
package cloud

import (
	"context"

	"rangeload/internal/platform/config"
	perr "rangeload/internal/platform/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// AWSOptions are the SERVICE_AWS_* settings
type AWSOptions struct {
	Region    string
	AccessKey string
	SecretKey string
	Session   string
	// Endpoint overrides service endpoints (minio, localstack)
	Endpoint  string
	PathStyle bool
}

// AWSFromConfig reads SERVICE_AWS_* options
func AWSFromConfig(cfg config.Conf) AWSOptions {
	c := cfg.Prefix("SERVICE_AWS_")
	return AWSOptions{
		Region:    c.MayString("REGION", "us-east-1"),
		AccessKey: c.MayString("ACCESS_KEY", ""),
		SecretKey: c.MayString("SECRET_KEY", ""),
		Session:   c.MayString("SESSION_TOKEN", ""),
		Endpoint:  c.MayString("ENDPOINT", ""),
		PathStyle: c.MayBool("PATH_STYLE", false),
	}
}

// Static reports whether explicit credentials were configured
func (o AWSOptions) Static() bool { return o.AccessKey != "" && o.SecretKey != "" }

// LoadAWS builds an aws.Config. Static keys win over the default chain
func LoadAWS(ctx context.Context, o AWSOptions) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(o.Region)}
	if o.Static() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, o.Session)))
	}
	ac, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, perr.Wrap(err, perr.ErrorCodeUnavailable, "load aws config")
	}
	if o.Endpoint != "" {
		ac.BaseEndpoint = aws.String(o.Endpoint)
	}
	return ac, nil
}
