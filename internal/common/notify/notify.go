// Package notify tells operators about runs that left failed items.
package notify

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"primary-organization/internal/common/aws"
	"primary-organization/internal/common/errors"
	"primary-organization/internal/common/logger"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// maxListedFailures bounds the failures included in a message body.
const maxListedFailures = 50

// Failure is one failed work item.
type Failure struct {
	Reference string
	Message   string
}

// RunSummary describes one finished processing run.
type RunSummary struct {
	Process   string
	Processed int
	Succeeded int
	Skipped   int
	Failed    int
	Failures  []Failure
	Aborted   error
}

// NeedsAttention reports whether operators should be told about the run.
func (s RunSummary) NeedsAttention() bool {
	return s.Failed > 0 || s.Aborted != nil
}

type Notifier interface {
	NotifyRun(ctx context.Context, summary RunSummary) error
}

// Config selects the channels.
type Config struct {
	FromEmail string
	To        []string
	TopicARN  string
}

// AWSNotifier sends the summary by SES e-mail and/or SNS.
type AWSNotifier struct {
	ses *aws.SESClient
	sns *aws.SNSClient
	cfg Config
	log logger.Logger
}

// NewAWSNotifier builds a notifier; a nil client disables its channel.
func NewAWSNotifier(sesClient *aws.SESClient, snsClient *aws.SNSClient, cfg Config, log logger.Logger) *AWSNotifier {
	return &AWSNotifier{ses: sesClient, sns: snsClient, cfg: cfg, log: log}
}

func (n *AWSNotifier) NotifyRun(ctx context.Context, summary RunSummary) error {
	if !summary.NeedsAttention() {
		return nil
	}

	subject := Subject(summary)
	body := Body(summary)
	var errs []error

	if n.ses != nil && len(n.cfg.To) > 0 {
		_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
			Source:      awssdk.String(n.cfg.FromEmail),
			Destination: &sestypes.Destination{ToAddresses: n.cfg.To},
			Message: &sestypes.Message{
				Subject: &sestypes.Content{Data: awssdk.String(subject), Charset: awssdk.String("UTF-8")},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: awssdk.String(body), Charset: awssdk.String("UTF-8")},
				},
			},
		})
		if err != nil {
			errs = append(errs, errors.NewNotificationSendFailedError("email", err))
		}
	}

	if n.sns != nil && n.cfg.TopicARN != "" {
		_, err := n.sns.Publish(ctx, &sns.PublishInput{
			TopicArn: awssdk.String(n.cfg.TopicARN),
			Subject:  awssdk.String(truncate(subject, 100)),
			Message:  awssdk.String(body),
		})
		if err != nil {
			errs = append(errs, errors.NewNotificationSendFailedError("sns", err))
		}
	}

	if len(errs) > 0 {
		return stderrors.Join(errs...)
	}

	n.log.Info("Run summary notification sent", map[string]interface{}{
		"process": summary.Process,
		"failed":  summary.Failed,
	})
	return nil
}

// NoopNotifier drops every summary.
type NoopNotifier struct{}

func (NoopNotifier) NotifyRun(ctx context.Context, summary RunSummary) error { return nil }

func Subject(s RunSummary) string {
	if s.Aborted != nil {
		return fmt.Sprintf("[%s] run aborted after %d items", s.Process, s.Processed)
	}
	return fmt.Sprintf("[%s] %d of %d work items failed", s.Process, s.Failed, s.Processed)
}

func Body(s RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Process: %s\n", s.Process)
	fmt.Fprintf(&b, "Processed: %d\nSucceeded: %d\nSkipped: %d\nFailed: %d\n", s.Processed, s.Succeeded, s.Skipped, s.Failed)
	if s.Aborted != nil {
		fmt.Fprintf(&b, "\nRun aborted: %s\n", s.Aborted)
	}
	if len(s.Failures) > 0 {
		b.WriteString("\nFailed items:\n")
		for i, f := range s.Failures {
			if i == maxListedFailures {
				fmt.Fprintf(&b, "... and %d more\n", len(s.Failures)-maxListedFailures)
				break
			}
			fmt.Fprintf(&b, "- %s: %s\n", f.Reference, f.Message)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
