package publishers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type fakeSQSClient struct {
	input *sqs.SendMessageInput
	err   error
}

func (f *fakeSQSClient) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-123")}, nil
}

func TestSQSPublisherSendSuccess(t *testing.T) {
	client := &fakeSQSClient{}
	pub := &sqsPublisher{
		id:       "queue",
		typ:      TypeSQS,
		queueURL: "https://example.com/queue",
		client:   client,
		log:      noopLogger{},
	}

	err := pub.Publish(context.Background(), Event{CallID: "call-1", Success: true})
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if client.input == nil {
		t.Fatalf("client was not called")
	}
	if got := aws.ToString(client.input.QueueUrl); got != "https://example.com/queue" {
		t.Fatalf("QueueUrl = %s", got)
	}
	attr, ok := client.input.MessageAttributes["call_id"]
	if !ok || aws.ToString(attr.StringValue) != "call-1" {
		t.Fatalf("call_id attribute missing or wrong: %#v", attr)
	}
	if aws.ToString(attr.DataType) != "String" {
		t.Fatalf("DataType should be String, got %#v", attr.DataType)
	}
	if outcome := client.input.MessageAttributes["outcome"]; aws.ToString(outcome.StringValue) != "success" {
		t.Fatalf("outcome attribute wrong: %#v", outcome)
	}
	if !strings.Contains(aws.ToString(client.input.MessageBody), `"call_id":"call-1"`) {
		t.Fatalf("MessageBody missing call_id: %s", aws.ToString(client.input.MessageBody))
	}
}

func TestSQSPublisherSendError(t *testing.T) {
	pub := &sqsPublisher{
		id:       "queue",
		queueURL: "https://example.com/queue",
		client:   &fakeSQSClient{err: errors.New("boom")},
		log:      noopLogger{},
	}

	if err := pub.Publish(context.Background(), Event{CallID: "call-1"}); err == nil {
		t.Fatalf("expected error from Publish")
	}
}
