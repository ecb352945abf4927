// Package sqs provides a sender that delivers batches to an Amazon SQS
// queue, one message per batch.
package sqs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

// MaxMessageBytes is the SQS message size limit. Larger batches are
// split across several messages.
const MaxMessageBytes = 256 << 10

// API is the subset of *sqs.Client the sender uses.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Config locates the queue.
type Config struct {
	Region   string `mapstructure:"region"`
	QueueURL string `mapstructure:"queue_url"`

	// Endpoint overrides the service endpoint, for ElasticMQ or
	// LocalStack. Static dummy credentials are used when it is set.
	Endpoint string `mapstructure:"endpoint"`
}

// NewAPI builds an SQS client from the default AWS credential chain.
func NewAPI(ctx context.Context, cfg Config, log *zap.Logger) (*sqs.Client, error) {
	configOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	var clientOpts []func(*sqs.Options)

	if cfg.Endpoint != "" {
		log.Info("configuring SQS for local development", zap.String("endpoint", cfg.Endpoint))
		configOpts = append(configOpts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "")))
		clientOpts = append(clientOpts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg, clientOpts...), nil
}

// Sender publishes batches to one queue.
type Sender struct {
	api      API
	queueURL string
	appID    string
	maxBytes int
}

// New creates a sender for queueURL.
func New(api API, queueURL, appID string) *Sender {
	return &Sender{api: api, queueURL: queueURL, appID: appID, maxBytes: MaxMessageBytes}
}

// Send publishes the batch as a JSON array, split into as many messages
// as the size limit requires. Any failed message fails the batch.
func (s *Sender) Send(ctx context.Context, batch beacon.Batch) error {
	var errs []error
	for _, body := range chunk(batch.EncodedRecords(), s.maxBytes) {
		_, err := s.api.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(s.queueURL),
			MessageBody: aws.String(string(body.data)),
			MessageAttributes: map[string]types.MessageAttributeValue{
				"Tier": {
					DataType:    aws.String("String"),
					StringValue: aws.String(string(batch.Tier)),
				},
				"AppId": {
					DataType:    aws.String("String"),
					StringValue: aws.String(s.appID),
				},
				"RecordCount": {
					DataType:    aws.String("Number"),
					StringValue: aws.String(strconv.Itoa(body.records)),
				},
			},
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: sqs: %w", beacon.ErrTransport, err)
	}
	return nil
}

// Close is a no-op; the SQS client holds no connections of its own.
func (s *Sender) Close() error {
	return nil
}

type message struct {
	data    []byte
	records int
}

// chunk packs encoded records into JSON arrays no larger than maxBytes.
// A record that alone exceeds the limit still gets its own message.
func chunk(encoded [][]byte, maxBytes int) []message {
	var out []message
	var buf bytes.Buffer
	n := 0
	flush := func() {
		if n == 0 {
			return
		}
		buf.WriteByte(']')
		out = append(out, message{data: bytes.Clone(buf.Bytes()), records: n})
		buf.Reset()
		n = 0
	}
	for _, rec := range encoded {
		if n > 0 && buf.Len()+1+len(rec)+1 > maxBytes {
			flush()
		}
		if n == 0 {
			buf.WriteByte('[')
		} else {
			buf.WriteByte(',')
		}
		buf.Write(rec)
		n++
	}
	flush()
	return out
}
