package iot

import (
	"context"
	"log"
	"parking_lifecycle/internal/service"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

const receiveRetryDelay = 5 * time.Second

// sqsAPI is the part of *sqs.Client the consumer uses.
type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SensorEventHandler processes one message body. Errors for which Retryable reports
// true leave the message on the queue; everything else is deleted.
type SensorEventHandler interface {
	HandleSensorEvent(ctx context.Context, body string) error
}

type SQSConsumer struct {
	sqsClient sqsAPI
	queueURL  string
	handler   SensorEventHandler
}

func NewSQSConsumer(client sqsAPI, queueURL string, handler SensorEventHandler) *SQSConsumer {
	return &SQSConsumer{
		sqsClient: client,
		queueURL:  queueURL,
		handler:   handler,
	}
}

// Start long-polls the queue until ctx is done.
func (c *SQSConsumer) Start(ctx context.Context) error {
	log.Printf("SQS Consumer: listening on queue %s", c.queueURL)
	for {
		select {
		case <-ctx.Done():
			log.Println("SQS Consumer: context cancelled, stopping.")
			return nil
		default:
		}

		if err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Printf("SQS Consumer: error receiving messages: %v", err)
			select {
			case <-time.After(receiveRetryDelay):
			case <-ctx.Done():
			}
		}
	}
}

func (c *SQSConsumer) poll(ctx context.Context) error {
	result, err := c.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
	})
	if err != nil {
		return err
	}

	for _, message := range result.Messages {
		if message.Body == nil {
			log.Println("SQS Consumer: received message with empty body, deleting.")
			c.deleteMessage(ctx, message.ReceiptHandle)
			continue
		}

		err := c.handler.HandleSensorEvent(ctx, *message.Body)
		switch {
		case err == nil:
			c.deleteMessage(ctx, message.ReceiptHandle)
		case service.Retryable(err):
			log.Printf("SQS Consumer: message %s failed, leaving it for redelivery: %v", aws.ToString(message.MessageId), err)
		default:
			log.Printf("SQS Consumer: message %s rejected, deleting: %v", aws.ToString(message.MessageId), err)
			c.deleteMessage(ctx, message.ReceiptHandle)
		}
	}
	return nil
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		log.Println("SQS Consumer: empty receipt handle, cannot delete message.")
		return
	}
	_, delErr := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if delErr != nil {
		log.Printf("SQS Consumer: error deleting message: %v", delErr)
	}
}
