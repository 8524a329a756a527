// Package kafka 提供策略服务的 Kafka 消息处理
package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/metrics"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/service"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/logger"
)

const (
	TopicPolicyEvents      = "policy-events"
	TopicTransactionEvents = "transaction-events"
)

// ProducerConfig 生产者配置
type ProducerConfig struct {
	Brokers  []string
	ClientID string
}

// EventProducer 领域事件生产者
type EventProducer struct {
	producer sarama.SyncProducer
	enabled  bool
}

// NewEventProducer 创建事件生产者
func NewEventProducer(cfg *ProducerConfig) (*EventProducer, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	// 同一资源的事件进入同一分区，保证顺序
	config.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, err
	}
	return newEventProducer(producer), nil
}

func newEventProducer(producer sarama.SyncProducer) *EventProducer {
	return &EventProducer{producer: producer, enabled: true}
}

// Close 关闭生产者
func (p *EventProducer) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// SetEnabled 启用或禁用发送
func (p *EventProducer) SetEnabled(enabled bool) {
	p.enabled = enabled
}

// Publish 发送领域事件，按资源类型选择 topic
func (p *EventProducer) Publish(ctx context.Context, event *service.Event) error {
	if !p.enabled {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	topic := topicFor(event)
	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(strconv.FormatInt(event.ResourceID, 10)),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.UnixMilli(event.CreatedAt),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
			{Key: []byte("event_id"), Value: []byte(event.EventID)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(topic, "error").Inc()
		logger.Error("failed to send event",
			zap.String("event_id", event.EventID),
			zap.String("type", string(event.Type)),
			zap.Error(err))
		return err
	}
	metrics.EventsPublishedTotal.WithLabelValues(topic, "success").Inc()

	logger.Debug("event sent",
		zap.String("event_id", event.EventID),
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// EventCallback 创建事件回调函数
func (p *EventProducer) EventCallback() service.EventHandler {
	return func(ctx context.Context, event *service.Event) error {
		return p.Publish(ctx, event)
	}
}

func topicFor(event *service.Event) string {
	if event.ResourceType == model.AuditResourceTransaction {
		return TopicTransactionEvents
	}
	return TopicPolicyEvents
}
