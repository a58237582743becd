package cloud

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes job events to a topic. The message body is the
// event JSON; subscribers filter on the job-state attribute.
type SNSNotifier struct {
	svc      SNSAPI
	topicArn string
}

func NewSNSNotifier(ctx context.Context, region, topicArn string) (*SNSNotifier, error) {
	cfg, err := LoadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return NewSNSNotifierWithClient(sns.NewFromConfig(cfg), topicArn), nil
}

func NewSNSNotifierWithClient(svc SNSAPI, topicArn string) *SNSNotifier {
	return &SNSNotifier{svc: svc, topicArn: topicArn}
}

func (n *SNSNotifier) Notify(ctx context.Context, ev domain.JobEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}
	subject := fmt.Sprintf("Risk calculation job %s: %s", ev.JobID, ev.State)
	if ev.Summary.CriticalCount > 0 {
		subject += fmt.Sprintf(" (%d critical)", ev.Summary.CriticalCount)
	}

	_, err = n.svc.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"job-state": {DataType: aws.String("String"), StringValue: aws.String(string(ev.State))},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}
