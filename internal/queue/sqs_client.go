package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const defaultRegion = "us-east-1"

type sqsSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSClient publishes conversion jobs to an SQS queue.
type SQSClient struct {
	api      sqsSender
	queueURL string
}

// NewSQSClient loads the default AWS config for region and targets queueURL.
func NewSQSClient(ctx context.Context, queueURL, region string) (*SQSClient, error) {
	queueURL = strings.TrimSpace(queueURL)
	if queueURL == "" {
		return nil, fmt.Errorf("NB_SQS_QUEUE_URL is required")
	}
	region = strings.TrimSpace(region)
	if region == "" {
		region = defaultRegion
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSQSClient(sqs.NewFromConfig(cfg), queueURL), nil
}

func newSQSClient(api sqsSender, queueURL string) *SQSClient {
	return &SQSClient{api: api, queueURL: queueURL}
}

// Send publishes msg. Job and request ids travel as message attributes so
// they show up in the console without decoding the body.
func (s *SQSClient) Send(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode sqs message: %w", err)
	}

	attrs := map[string]sqstypes.MessageAttributeValue{
		"job_id": stringAttr(msg.JobID),
	}
	if msg.RequestID != "" {
		attrs["request_id"] = stringAttr(msg.RequestID)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(string(payload)),
		MessageAttributes: attrs,
	}
	if strings.HasSuffix(s.queueURL, ".fifo") {
		// One group per user keeps a user's jobs ordered; the job id dedupes resubmits.
		input.MessageGroupId = aws.String(msg.UserID)
		input.MessageDeduplicationId = aws.String(msg.JobID)
	}

	if _, err := s.api.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	return nil
}

func stringAttr(v string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}

var _ Client = (*SQSClient)(nil)
