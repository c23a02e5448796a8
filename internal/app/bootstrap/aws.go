package bootstrap

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/clinic-serial/internal/config"
	"github.com/wolfman30/clinic-serial/internal/notify"
	"github.com/wolfman30/clinic-serial/internal/reports"
	"github.com/wolfman30/clinic-serial/pkg/logging"
)

// LoadAWSConfig centralizes AWS SDK initialization so the API and the CLI
// share the same LocalStack/production wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, err
	}
	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(endpoint)
	}
	return awsCfg, nil
}

// NeedsAWS reports whether any configured component talks to AWS.
func NeedsAWS(cfg *appconfig.Config) bool {
	if strings.TrimSpace(cfg.ReportsBucket) != "" {
		return true
	}
	switch cfg.EmailProvider {
	case "ses":
		return true
	case "auto", "":
		return strings.TrimSpace(cfg.SendGridAPIKey) == "" && strings.TrimSpace(cfg.SESFromEmail) != ""
	}
	return false
}

// BuildSESClient returns an SES client, or nil when SES is not in use.
func BuildSESClient(awsCfg *aws.Config, cfg *appconfig.Config) notify.SESAPI {
	if awsCfg == nil || strings.TrimSpace(cfg.SESFromEmail) == "" {
		return nil
	}
	return sesv2.NewFromConfig(*awsCfg)
}

// BuildAttachmentStore returns the S3 store when a bucket is configured and
// the in-memory store otherwise.
func BuildAttachmentStore(awsCfg *aws.Config, cfg *appconfig.Config, logger *logging.Logger) reports.AttachmentStore {
	if awsCfg == nil || strings.TrimSpace(cfg.ReportsBucket) == "" {
		if logger != nil {
			logger.Warn("report attachments kept in memory; configure REPORTS_BUCKET to persist them")
		}
		return reports.NewMemoryStore()
	}
	client := s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
		if cfg.AWSEndpointOverride != "" {
			o.UsePathStyle = true
		}
	})
	presigner := reports.S3Presigner{Client: s3.NewPresignClient(client)}
	return reports.NewS3Store(client, presigner, cfg.ReportsBucket, cfg.ReportsURLTTL, logger)
}
