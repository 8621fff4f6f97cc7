// internal/providers/email_ses.go
package providers

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/google/uuid"

	"autoshop-notifications/internal/common/config"
	"autoshop-notifications/internal/common/errors"
	"autoshop-notifications/internal/common/logger"
	"autoshop-notifications/internal/models"
)

// SESProvider delivers email through Amazon SES. Selected over the SMTP
// provider when email.provider is set to "ses".
type SESProvider struct {
	client     *ses.Client
	config     config.EmailConfig
	maxRetries int
	backoff    time.Duration
	logger     logger.Logger
}

func NewSESProvider(ctx context.Context, cfg config.EmailConfig, maxRetries int, backoff time.Duration, log logger.Logger) (*SESProvider, error) {
	p := &SESProvider{
		config:     cfg,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     log,
	}

	if cfg.Sandbox {
		return p, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SES.Region))
	if err != nil {
		return nil, errors.NewProviderNotConfiguredError("ses", "aws credentials")
	}
	p.client = ses.NewFromConfig(awsCfg)
	return p, nil
}

func (p *SESProvider) Name() string {
	return "ses"
}

func (p *SESProvider) Channel() models.Channel {
	return models.ChannelEmail
}

func (p *SESProvider) Send(ctx context.Context, target Target, msg Message) (*Result, error) {
	if target.Address == "" {
		return nil, errors.NewMissingAddressError(string(models.ChannelEmail), target.UserID)
	}
	if !isValidEmail(target.Address) {
		return nil, errors.NewAddressRejectedError(target.Address, stderrors.New("malformed address"))
	}

	if p.config.Sandbox {
		p.logger.Info("Sandbox email send", map[string]interface{}{
			"to":      target.Address,
			"subject": msg.Title,
		})
		return &Result{MessageID: "sandbox-" + uuid.New().String()}, nil
	}

	input := p.buildInput(target.Address, msg)

	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewTransportTimeoutError(p.Name())
		}

		out, err := p.client.SendEmail(ctx, input)
		if err == nil {
			messageID := aws.ToString(out.MessageId)
			p.logger.Info("Email sent", map[string]interface{}{
				"to":        target.Address,
				"messageId": messageID,
				"attempt":   attempt,
			})
			return &Result{MessageID: messageID}, nil
		}

		var rejected *types.MessageRejected
		if stderrors.As(err, &rejected) {
			return nil, errors.NewAddressRejectedError(target.Address, err)
		}

		lastErr = err
		p.logger.Warn("SES send failed, will retry", map[string]interface{}{
			"to":      target.Address,
			"attempt": attempt,
			"error":   err.Error(),
		})

		if attempt < p.maxRetries {
			delay := p.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, errors.NewTransportTimeoutError(p.Name())
			case <-time.After(delay):
			}
		}
	}

	return nil, errors.NewTransportFailedError(p.Name(), lastErr)
}

func (p *SESProvider) buildInput(to string, msg Message) *ses.SendEmailInput {
	body := &types.Body{
		Text: &types.Content{
			Charset: aws.String("UTF-8"),
			Data:    aws.String(msg.Body),
		},
	}
	if msg.BodyHTML != "" {
		body.Html = &types.Content{
			Charset: aws.String("UTF-8"),
			Data:    aws.String(msg.BodyHTML),
		}
	}

	return &ses.SendEmailInput{
		Source: aws.String(p.config.From),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Charset: aws.String("UTF-8"),
				Data:    aws.String(msg.Title),
			},
			Body: body,
		},
	}
}
