package publishers

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// loadAWSConfig resolves the default AWS config for region, pinning static
// keys when they are configured.
func loadAWSConfig(ctx context.Context, region string, creds *AWSCredentials) (aws.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(region)}
	if creds != nil && creds.AccessKeyID != "" && creds.SecretAccessKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		))
	}
	return awscfg.LoadDefaultConfig(ctx, opts...)
}

// eventAttributes are attached to queue and topic messages for routing.
func eventAttributes(evt Event) map[string]string {
	status := "failure"
	if evt.Success {
		status = "success"
	}
	return map[string]string{
		"call_id": evt.CallID,
		"outcome": status,
	}
}
