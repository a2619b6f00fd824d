package notify

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// PubSubProvider implements Provider for Google Cloud Pub/Sub.
type PubSubProvider struct {
	Client *pubsub.Client
	Topic  *pubsub.Topic
	logger *zap.Logger
}

// NewPubSubProvider creates a new Pub/Sub client and gets a handle to the
// specified topic. It authenticates using Application Default Credentials and
// fails fast when the topic does not exist.
func NewPubSubProvider(ctx context.Context, projectID, topicID string, logger *zap.Logger) (*PubSubProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client after missing topic", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}

	return &PubSubProvider{
		Client: client,
		Topic:  topic,
		logger: logger,
	}, nil
}

// Publish sends a message containing the report id to the Pub/Sub topic.
// This is fire-and-forget: the client batches and retries in the background,
// and a delivery failure is logged rather than returned.
func (p *PubSubProvider) Publish(ctx context.Context, reportID string) error {
	result := p.Topic.Publish(ctx, &pubsub.Message{Data: []byte(reportID)})
	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			p.logger.Warn("pubsub publish failed",
				zap.String("report_id", reportID),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Close stops the topic's publisher and closes the underlying client.
func (p *PubSubProvider) Close() error {
	p.Topic.Stop()
	if err := p.Client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
