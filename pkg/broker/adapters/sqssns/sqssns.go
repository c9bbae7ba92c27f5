// Package sqssns is the cloud queue/topic pair implementation of
// broker.Port: publishes fan out through an SNS topic per type tag, and each
// subscription polls its own SQS queue subscribed to that topic.
package sqssns

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/nova-labs/messagemesh/pkg/broker"
	"github.com/nova-labs/messagemesh/pkg/logger"
)

// Config configures the SQS/SNS adapter.
type Config struct {
	// TopicARNs maps a type tag to the SNS topic ARN that fans it out.
	TopicARNs map[string]string
	// QueueURLs maps a type tag to the SQS queue URL a subscription polls.
	QueueURLs         map[string]string
	WaitTimeSeconds   int32
	VisibilityTimeout int32
	MaxMessages       int32
}

// Adapter is the SQS+SNS broker.Port implementation.
type Adapter struct {
	cfg  Config
	base *broker.Base

	mu        sync.RWMutex
	snsClient *sns.Client
	sqsClient *sqs.Client
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	subs      []pendingSub
	disposed  bool
}

type pendingSub struct {
	typeTag string
	info    *broker.SubscriptionInfo
}

// New constructs an SQS/SNS adapter. Clients are created on Start using the
// default AWS config chain.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg}
}

// Bind wires the adapter to the owning façade; see broker.Binder.
func (a *Adapter) Bind(b *broker.Base) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.base = b
}

func (a *Adapter) PublishInternal(ctx context.Context, msg broker.WireMessage, opts broker.PublishOptions) error {
	a.mu.RLock()
	client := a.snsClient
	topicARN, ok := a.cfg.TopicARNs[msg.TypeTag]
	a.mu.RUnlock()

	if client == nil {
		return broker.ErrTransportUnavailable(nil)
	}
	if !ok {
		return broker.ErrPublishFailure(broker.ErrInvalidArgument("no SNS topic configured for type " + msg.TypeTag))
	}

	attrs := map[string]snstypes.MessageAttributeValue{}
	for k, v := range msg.Headers {
		attrs[k] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}
	attrs[broker.HeaderMessageID] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(msg.ID)}

	input := &sns.PublishInput{
		TopicArn:          aws.String(topicARN),
		Message:           aws.String(string(msg.Payload)),
		MessageAttributes: attrs,
	}
	if opts.GroupID != "" {
		input.MessageGroupId = aws.String(opts.GroupID)
	}
	if opts.DeduplicationID != "" {
		input.MessageDeduplicationId = aws.String(opts.DeduplicationID)
	}

	if _, err := client.Publish(ctx, input); err != nil {
		return broker.ErrPublishFailure(err)
	}
	return nil
}

// snsBatchLimit is PublishBatch's hard cap per request.
const snsBatchLimit = 10

// BatchInternal uses SNS's native PublishBatch, chunked at snsBatchLimit,
// since all items share the type tag (and therefore topic) the batch
// accumulator grouped them by.
func (a *Adapter) BatchInternal(ctx context.Context, items []broker.WireMessage, opts broker.PublishOptions) (broker.BatchResult, error) {
	if len(items) == 0 {
		return broker.BatchResult{}, nil
	}

	a.mu.RLock()
	client := a.snsClient
	topicARN, ok := a.cfg.TopicARNs[items[0].TypeTag]
	a.mu.RUnlock()

	if client == nil {
		return broker.BatchResult{}, broker.ErrTransportUnavailable(nil)
	}
	if !ok {
		return broker.BatchResult{}, broker.ErrPublishFailure(broker.ErrInvalidArgument("no SNS topic configured for type " + items[0].TypeTag))
	}

	var result broker.BatchResult
	for start := 0; start < len(items); start += snsBatchLimit {
		end := start + snsBatchLimit
		if end > len(items) {
			end = len(items)
		}
		a.publishBatchChunk(ctx, client, topicARN, items[start:end], start, opts, &result)
	}
	return result, nil
}

func (a *Adapter) publishBatchChunk(ctx context.Context, client *sns.Client, topicARN string, chunk []broker.WireMessage, offset int, opts broker.PublishOptions, result *broker.BatchResult) {
	entries := make([]snstypes.PublishBatchRequestEntry, len(chunk))
	for i, msg := range chunk {
		id := strconv.Itoa(offset + i)
		attrs := map[string]snstypes.MessageAttributeValue{}
		for k, v := range msg.Headers {
			attrs[k] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
		}
		attrs[broker.HeaderMessageID] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(msg.ID)}

		entry := snstypes.PublishBatchRequestEntry{
			Id:                aws.String(id),
			Message:           aws.String(string(msg.Payload)),
			MessageAttributes: attrs,
		}
		if opts.GroupID != "" {
			entry.MessageGroupId = aws.String(opts.GroupID)
		}
		if opts.DeduplicationID != "" {
			entry.MessageDeduplicationId = aws.String(opts.DeduplicationID)
		}
		entries[i] = entry
	}

	out, err := client.PublishBatch(ctx, &sns.PublishBatchInput{TopicArn: aws.String(topicARN), PublishBatchRequestEntries: entries})
	if err != nil {
		for i := range chunk {
			result.Failed = append(result.Failed, offset+i)
			result.Errs = append(result.Errs, broker.ErrPublishFailure(err))
		}
		return
	}

	for _, s := range out.Successful {
		if idx, convErr := strconv.Atoi(aws.ToString(s.Id)); convErr == nil {
			result.Succeeded = append(result.Succeeded, idx)
		}
	}
	for _, f := range out.Failed {
		if idx, convErr := strconv.Atoi(aws.ToString(f.Id)); convErr == nil {
			result.Failed = append(result.Failed, idx)
			result.Errs = append(result.Errs, broker.ErrPublishFailure(errors.New(aws.ToString(f.Code)+": "+aws.ToString(f.Message))))
		}
	}
}

func (a *Adapter) SubscribeInternal(ctx context.Context, typeTag string, info *broker.SubscriptionInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subs = append(a.subs, pendingSub{typeTag: typeTag, info: info})
	return nil
}

func (a *Adapter) StartInternal(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disposed {
		return broker.ErrDisposed()
	}
	if a.snsClient != nil {
		return nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return broker.ErrTransportUnavailable(err)
	}
	a.snsClient = sns.NewFromConfig(awsCfg)
	a.sqsClient = sqs.NewFromConfig(awsCfg)

	consumeCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	for _, sub := range a.subs {
		queueURL, ok := a.cfg.QueueURLs[sub.typeTag]
		if !ok {
			continue
		}
		a.wg.Add(1)
		go a.pollLoop(consumeCtx, queueURL, sub)
	}
	return nil
}

func (a *Adapter) pollLoop(ctx context.Context, queueURL string, sub pendingSub) {
	defer a.wg.Done()

	waitTime := a.cfg.WaitTimeSeconds
	if waitTime == 0 {
		waitTime = 10
	}
	maxMessages := a.cfg.MaxMessages
	if maxMessages == 0 {
		maxMessages = 10
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		out, err := a.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(queueURL),
			MaxNumberOfMessages:   maxMessages,
			WaitTimeSeconds:       waitTime,
			VisibilityTimeout:     a.cfg.VisibilityTimeout,
			MessageAttributeNames: []string{"All"},
		})
		if err != nil {
			logger.L().Error("sqs receive failed", "queue", queueURL, "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, m := range out.Messages {
			a.dispatch(ctx, queueURL, m, sub)
		}
	}
}

func (a *Adapter) dispatch(ctx context.Context, queueURL string, m sqstypes.Message, sub pendingSub) {
	headers := make(map[string]string, len(m.MessageAttributes))
	msgID := aws.ToString(m.MessageId)
	for k, v := range m.MessageAttributes {
		if k == broker.HeaderMessageID {
			msgID = aws.ToString(v.StringValue)
			continue
		}
		headers[k] = aws.ToString(v.StringValue)
	}

	wire := broker.WireMessage{
		ID:        msgID,
		TypeTag:   sub.typeTag,
		Payload:   []byte(aws.ToString(m.Body)),
		Headers:   headers,
		Timestamp: time.Now().UTC(),
	}
	mc := broker.NewMessageContext(wire, broker.MessageMetadata{ReceiptHandle: aws.ToString(m.ReceiptHandle)},
		func() error {
			_, err := a.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl: aws.String(queueURL), ReceiptHandle: m.ReceiptHandle,
			})
			return err
		},
		func(requeue bool) error {
			if !requeue {
				return nil
			}
			_, err := a.sqsClient.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
				QueueUrl: aws.String(queueURL), ReceiptHandle: m.ReceiptHandle, VisibilityTimeout: 0,
			})
			return err
		},
	)

	if err := a.base.ProcessMessage(ctx, mc); err != nil {
		logger.L().Error("sqssns dispatch failed", "type", sub.typeTag, "error", err)
	}
}

func (a *Adapter) StopInternal(ctx context.Context) error {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	a.wg.Wait()
	return nil
}

func (a *Adapter) DisposeInternal() error {
	err := a.StopInternal(context.Background())
	a.mu.Lock()
	a.disposed = true
	a.snsClient = nil
	a.sqsClient = nil
	a.mu.Unlock()
	return err
}

func (a *Adapter) Healthy(ctx context.Context) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snsClient != nil && !a.disposed
}
