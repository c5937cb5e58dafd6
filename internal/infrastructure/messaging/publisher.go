package messaging

import (
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Backends for the event relay
const (
	BackendGoChannel = "gochannel"
	BackendKafka     = "kafka"
)

// DefaultTopic carries every approval domain event
const DefaultTopic = "approval.events"

// Config selects and configures the watermill publisher
type Config struct {
	Backend  string
	Brokers  []string
	Topic    string
	ClientID string
}

// NewPublisher builds the configured watermill publisher. The gochannel
// backend also returns itself as subscriber; kafka returns a nil subscriber.
func NewPublisher(cfg Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	switch cfg.Backend {
	case "", BackendGoChannel:
		pubSub := NewGoChannel(logger)
		return pubSub, pubSub, nil
	case BackendKafka:
		publisher, err := NewKafkaPublisher(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return publisher, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}

// NewGoChannel creates an in-process pub/sub for single-node deployments and tests
func NewGoChannel(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            1000,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)
}

// NewKafkaPublisher creates a synchronous Kafka publisher
func NewKafkaPublisher(cfg Config, logger watermill.LoggerAdapter) (*kafka.Publisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Brokers[0] == "" {
		return nil, errors.New("kafka brokers are not configured")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	if cfg.ClientID != "" {
		saramaConfig.ClientID = cfg.ClientID
	}

	return kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               cfg.Brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaConfig,
			OTELEnabled:           true,
		},
		logger,
	)
}
