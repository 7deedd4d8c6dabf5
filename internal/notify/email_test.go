package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

func TestNewSendGridSenderRequiresKey(t *testing.T) {
	if sender := NewSendGridSender("", Sender{Email: "lab@example.com"}, nil); sender != nil {
		t.Fatalf("expected nil sender without api key")
	}
	sender := NewSendGridSender("key", Sender{Email: "lab@example.com"}, nil)
	if sender == nil {
		t.Fatalf("expected sender")
	}
	if sender.from.Name != defaultFromName {
		t.Fatalf("expected default from name, got %q", sender.from.Name)
	}
}

func TestSendGridSenderNilIsNotConfigured(t *testing.T) {
	var sender *SendGridSender
	if err := sender.Send(context.Background(), EmailMessage{To: "ops@example.com"}); err == nil {
		t.Fatalf("expected error from nil sender")
	}
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSenderBuildsMessage(t *testing.T) {
	api := &fakeSES{}
	sender := newSESSender(api, Sender{Email: "bot@lab.example", Name: "Lab Bot"}, nil)

	err := sender.Send(context.Background(), EmailMessage{To: "ops@lab.example", Subject: "Report request", Body: "Report request from 919876543210: PID123"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := aws.ToString(api.input.FromEmailAddress); got != "Lab Bot <bot@lab.example>" {
		t.Fatalf("unexpected from %q", got)
	}
	if got := api.input.Destination.ToAddresses; len(got) != 1 || got[0] != "ops@lab.example" {
		t.Fatalf("unexpected destination %v", got)
	}
	if body := aws.ToString(api.input.Content.Simple.Body.Text.Data); !strings.Contains(body, "PID123") {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestSESSenderErrors(t *testing.T) {
	sender := newSESSender(&fakeSES{err: errors.New("throttled")}, Sender{Email: "bot@lab.example"}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "ops@lab.example"}); err == nil {
		t.Fatalf("expected provider error")
	}
	if err := sender.Send(context.Background(), EmailMessage{}); err == nil {
		t.Fatalf("expected validation error")
	}
	if NewSESSender(nil, Sender{}, nil) != nil {
		t.Fatalf("expected nil sender without client")
	}
}
