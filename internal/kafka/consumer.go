package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
	bizerr "github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/errors"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/logger"
)

const (
	TopicTransferExecutions = "transfer-executions"

	executionOperator = "executor"
)

// 执行结果状态
const (
	ExecutionSubmitted = "SUBMITTED" // 已广播，附带 tx_hash
	ExecutionRejected  = "REJECTED"  // 执行方拒绝，交易失败
)

// TransactionExecutor 执行结果回写
type TransactionExecutor interface {
	AttachTxHash(ctx context.Context, id int64, hash, operator string) (*model.Transaction, error)
	FailTransaction(ctx context.Context, id int64, reason, operator string) (*model.Transaction, error)
}

// ExecutionMessage 托管执行方回报的转账执行结果
type ExecutionMessage struct {
	TransactionID int64  `json:"transaction_id"`
	Status        string `json:"status"`
	TxHash        string `json:"tx_hash,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Brokers []string
	GroupID string
}

// ExecutionConsumer 消费执行结果，回写交易哈希或失败原因
type ExecutionConsumer struct {
	client   sarama.ConsumerGroup
	executor TransactionExecutor

	ready chan bool
	ctx   context.Context
	wg    sync.WaitGroup
}

// NewExecutionConsumer 创建执行结果消费者
func NewExecutionConsumer(cfg *ConsumerConfig, executor TransactionExecutor) (*ExecutionConsumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	client, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
	if err != nil {
		return nil, err
	}
	return &ExecutionConsumer{
		client:   client,
		executor: executor,
		ready:    make(chan bool),
	}, nil
}

// Start 启动消费者
func (c *ExecutionConsumer) Start(ctx context.Context) error {
	c.ctx = ctx
	topics := []string{TopicTransferExecutions}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			if err := c.client.Consume(ctx, topics, c); err != nil {
				logger.Error("consumer error", zap.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
			c.ready = make(chan bool)
		}
	}()

	select {
	case <-c.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	logger.Info("kafka consumer started", zap.Strings("topics", topics))
	return nil
}

// Stop 停止消费者，调用前须取消 Start 的 ctx
func (c *ExecutionConsumer) Stop() error {
	c.wg.Wait()
	return c.client.Close()
}

// Setup 初始化
func (c *ExecutionConsumer) Setup(sarama.ConsumerGroupSession) error {
	close(c.ready)
	return nil
}

// Cleanup 清理
func (c *ExecutionConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim 消费消息
func (c *ExecutionConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			if err := c.handleMessage(c.ctx, message); err != nil {
				logger.Error("failed to handle message",
					zap.String("topic", message.Topic),
					zap.Int64("offset", message.Offset),
					zap.Error(err))
			}
			session.MarkMessage(message, "")

		case <-c.ctx.Done():
			return nil
		}
	}
}

func (c *ExecutionConsumer) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	switch msg.Topic {
	case TopicTransferExecutions:
		return c.handleExecution(ctx, msg.Value)
	default:
		logger.Warn("unknown topic", zap.String("topic", msg.Topic))
	}
	return nil
}

// handleExecution 处理执行结果，状态不匹配的重复投递只记录日志
func (c *ExecutionConsumer) handleExecution(ctx context.Context, data []byte) error {
	var msg ExecutionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	if msg.TransactionID <= 0 {
		return errors.New("execution message without transaction id")
	}

	var err error
	switch msg.Status {
	case ExecutionSubmitted:
		_, err = c.executor.AttachTxHash(ctx, msg.TransactionID, msg.TxHash, executionOperator)
	case ExecutionRejected:
		reason := msg.Reason
		if reason == "" {
			reason = "rejected by executor"
		}
		_, err = c.executor.FailTransaction(ctx, msg.TransactionID, reason, executionOperator)
	default:
		logger.Warn("unknown execution status",
			zap.Int64("transaction_id", msg.TransactionID),
			zap.String("status", msg.Status))
		return nil
	}

	if err != nil {
		if bizerr.IsNotFound(err) || bizerr.IsValidation(err) {
			logger.Warn("execution result ignored",
				zap.Int64("transaction_id", msg.TransactionID),
				zap.String("status", msg.Status),
				zap.Error(err))
			return nil
		}
		return err
	}

	logger.Debug("execution result processed",
		zap.Int64("transaction_id", msg.TransactionID),
		zap.String("status", msg.Status))
	return nil
}
