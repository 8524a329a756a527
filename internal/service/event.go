// Package service 实现策略管理、变更审批、交易审批与决策模拟
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/internal/model"
	"github.com/xmeir-dev/Utila-Policy-Prototype-sub001/pkg/logger"
)

// EventType 领域事件类型
type EventType string

const (
	EventPolicyCreated        EventType = "POLICY_CREATED"
	EventPolicyToggled        EventType = "POLICY_TOGGLED"
	EventPoliciesReordered    EventType = "POLICIES_REORDERED"
	EventPolicyDeleted        EventType = "POLICY_DELETED"
	EventChangeSubmitted      EventType = "CHANGE_SUBMITTED"
	EventChangeApproved       EventType = "CHANGE_APPROVED"
	EventChangeCommitted      EventType = "CHANGE_COMMITTED"
	EventTransactionCreated   EventType = "TRANSACTION_CREATED"
	EventTransactionApproved  EventType = "TRANSACTION_APPROVED"
	EventTransactionCompleted EventType = "TRANSACTION_COMPLETED"
	EventTransactionFailed    EventType = "TRANSACTION_FAILED"
)

// Event 领域事件，事务提交后发出
type Event struct {
	EventID      string            `json:"event_id"`
	Type         EventType         `json:"type"`
	ResourceType string            `json:"resource_type"`
	ResourceID   int64             `json:"resource_id"`
	Operator     string            `json:"operator"`
	Data         map[string]string `json:"data,omitempty"`
	CreatedAt    int64             `json:"created_at"`
}

// EventHandler 事件回调
type EventHandler func(ctx context.Context, event *Event) error

func newEvent(eventType EventType, resourceType string, resourceID int64, operator string, data map[string]string) *Event {
	return &Event{
		EventID:      uuid.New().String(),
		Type:         eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Operator:     operator,
		Data:         data,
		CreatedAt:    time.Now().UnixMilli(),
	}
}

func newPolicyEvent(eventType EventType, p *model.Policy, operator string, data map[string]string) *Event {
	return newEvent(eventType, model.AuditResourcePolicy, p.ID, operator, data)
}

func newTransactionEvent(eventType EventType, tx *model.Transaction, operator string, data map[string]string) *Event {
	return newEvent(eventType, model.AuditResourceTransaction, tx.ID, operator, data)
}

// emitter 事件发送，回调失败只记录日志，不影响已提交的状态
type emitter struct {
	onEvent EventHandler
}

// SetOnEvent 设置事件回调
func (e *emitter) SetOnEvent(fn EventHandler) {
	e.onEvent = fn
}

func (e *emitter) emit(ctx context.Context, events ...*Event) {
	if e.onEvent == nil {
		return
	}
	for _, ev := range events {
		if err := e.onEvent(ctx, ev); err != nil {
			logger.Error("publish event failed",
				zap.String("event_id", ev.EventID),
				zap.String("type", string(ev.Type)),
				zap.Int64("resource_id", ev.ResourceID),
				zap.Error(err))
		}
	}
}
