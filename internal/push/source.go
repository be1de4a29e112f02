package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"shodh/internal/common/cache"
	"shodh/internal/common/mq"
	"shodh/internal/model"
	"shodh/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	SourceRelay = "relay"
	SourceRedis = "redis"
	SourceKafka = "kafka"

	DefaultRedisChannel = "submission.updates"
	DefaultKafkaTopic   = "submission.status"
	DefaultRelayTopic   = "submission.relay"
)

// Source moves submission updates into the hub. Publish is called with every
// record the submission endpoints return; Run feeds received updates to the
// broadcaster until ctx is done.
type Source interface {
	Name() string
	Publish(ctx context.Context, sub model.Submission) error
	Run(ctx context.Context, out Broadcaster) error
}

// SourceConfig selects and configures the update source.
type SourceConfig struct {
	Type          string `yaml:"type"`
	RedisChannel  string `yaml:"redisChannel"`
	KafkaTopic    string `yaml:"kafkaTopic"`
	RelayTopic    string `yaml:"relayTopic"`
	ConsumerGroup string `yaml:"consumerGroup"`
}

// Normalize fills defaults and validates the source type.
func (c *SourceConfig) Normalize() error {
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	if c.Type == "" {
		c.Type = SourceRelay
	}
	if c.RedisChannel == "" {
		c.RedisChannel = DefaultRedisChannel
	}
	if c.KafkaTopic == "" {
		c.KafkaTopic = DefaultKafkaTopic
	}
	if c.RelayTopic == "" {
		c.RelayTopic = DefaultRelayTopic
	}
	if c.RelayTopic == c.KafkaTopic {
		return fmt.Errorf("relay topic must differ from status topic %q", c.KafkaTopic)
	}
	switch c.Type {
	case SourceRelay, SourceRedis, SourceKafka:
		return nil
	}
	return fmt.Errorf("unknown push source %q", c.Type)
}

// relaySource broadcasts published records directly from this process.
type relaySource struct {
	out Broadcaster
}

// NewRelaySource returns a source that hands records straight to out.
func NewRelaySource(out Broadcaster) Source {
	return &relaySource{out: out}
}

func (s *relaySource) Name() string { return SourceRelay }

func (s *relaySource) Publish(_ context.Context, sub model.Submission) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	s.out.Broadcast(payload)
	return nil
}

func (s *relaySource) Run(ctx context.Context, _ Broadcaster) error {
	<-ctx.Done()
	return nil
}

// redisSource shares updates between instances over Redis pub/sub.
type redisSource struct {
	ps      cache.PubSubOps
	channel string
}

// NewRedisSource publishes to and subscribes on channel.
func NewRedisSource(ps cache.PubSubOps, channel string) Source {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &redisSource{ps: ps, channel: channel}
}

func (s *redisSource) Name() string { return SourceRedis }

func (s *redisSource) Publish(ctx context.Context, sub model.Submission) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	_, err = s.ps.Publish(ctx, s.channel, payload)
	return err
}

func (s *redisSource) Run(ctx context.Context, out Broadcaster) error {
	sub, err := s.ps.Subscribe(ctx, s.channel)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return fmt.Errorf("redis subscription %s closed", s.channel)
			}
			forward(ctx, out, []byte(msg.Payload), zap.String("channel", msg.Channel))
		}
	}
}

// kafkaSource consumes backend status events from topic. Records returned by
// this tier go to relayTopic so the backend's topic is never written to.
type kafkaSource struct {
	producer   mq.Producer
	consumer   mq.Consumer
	topic      string
	relayTopic string
	group      string
}

// NewKafkaSource consumes topic and relayTopic and publishes to relayTopic.
func NewKafkaSource(producer mq.Producer, consumer mq.Consumer, topic, relayTopic, group string) Source {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	if relayTopic == "" {
		relayTopic = DefaultRelayTopic
	}
	return &kafkaSource{producer: producer, consumer: consumer, topic: topic, relayTopic: relayTopic, group: group}
}

func (s *kafkaSource) Name() string { return SourceKafka }

func (s *kafkaSource) Publish(ctx context.Context, sub model.Submission) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return s.producer.Publish(ctx, s.relayTopic, mq.NewMessage(sub.ID.String(), payload))
}

func (s *kafkaSource) Run(ctx context.Context, out Broadcaster) error {
	for _, topic := range []string{s.topic, s.relayTopic} {
		topic := topic
		handler := func(ctx context.Context, msg *mq.Message) error {
			forward(ctx, out, msg.Body, zap.String("topic", topic), zap.String("message_id", msg.ID))
			return nil
		}
		if err := s.consumer.Subscribe(ctx, topic, handler, &mq.SubscribeOptions{ConsumerGroup: s.group}); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

// forward re-encodes a received record so clients only see well-formed updates.
func forward(ctx context.Context, out Broadcaster, raw []byte, fields ...zap.Field) {
	sub, err := model.DecodeSubmission(raw)
	if err != nil {
		logger.Warn(ctx, "drop malformed submission update", append(fields, zap.Error(err))...)
		return
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		logger.Warn(ctx, "encode submission update failed", append(fields, zap.Error(err))...)
		return
	}
	out.Broadcast(payload)
}
