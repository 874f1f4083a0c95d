// Package awsconn builds AWS SDK configurations shared by the queue, hot
// store, and classifier clients.
package awsconn

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const sessionName = "nexus-conversations"

// Load resolves an aws.Config for the given region. When roleARN is set,
// credentials come from STS AssumeRole (1h duration) behind a refreshing
// cache so long-running consumers survive credential expiry; otherwise the
// default credential chain applies.
func Load(ctx context.Context, region, roleARN string) (aws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return aws.Config{}, err
	}
	if roleARN == "" {
		return cfg, nil
	}

	slog.Info("assuming AWS role", slog.String("role_arn", roleARN), slog.String("region", region))
	provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), roleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = sessionName
		o.Duration = time.Hour
	})
	cfg.Credentials = aws.NewCredentialsCache(provider)
	return cfg, nil
}

// WithRegion returns a copy of cfg pointed at region, keeping the resolved
// credentials. Services living in a different region than the queue (the hot
// store, typically) get their client config through this.
func WithRegion(cfg aws.Config, region string) aws.Config {
	if region == "" || region == cfg.Region {
		return cfg
	}
	out := cfg.Copy()
	out.Region = region
	return out
}
