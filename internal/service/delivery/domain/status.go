// internal/service/delivery/domain/status.go
package domain

import "fmt"

// Status 定义了配送单的生命周期状态。
type Status string

const (
	StatusPending        Status = "pending"          // 已创建，库存已预留
	StatusConfirmed      Status = "confirmed"        // 已确认，首次进入时分配运单号
	StatusPacked         Status = "packed"           // 已打包
	StatusShipped        Status = "shipped"          // 已发货，首次进入时分配运单号
	StatusInTransit      Status = "in_transit"       // 运输中
	StatusOutForDelivery Status = "out_for_delivery" // 派送中
	StatusDelivered      Status = "delivered"        // 已送达 (终态)
	StatusFailed         Status = "failed"           // 配送失败 (终态，取消也落在这里)
	StatusReturned       Status = "returned"         // 已退回 (终态)
)

// 主链上的序号，用于保证状态只能向前推进。
var statusRank = map[Status]int{
	StatusPending:        0,
	StatusConfirmed:      1,
	StatusPacked:         2,
	StatusShipped:        3,
	StatusInTransit:      4,
	StatusOutForDelivery: 5,
	StatusDelivered:      6,
}

// AllStatuses 返回全部状态，顺序与主链一致，终态侧枝在最后。
func AllStatuses() []Status {
	return []Status{
		StatusPending, StatusConfirmed, StatusPacked, StatusShipped,
		StatusInTransit, StatusOutForDelivery, StatusDelivered,
		StatusFailed, StatusReturned,
	}
}

// ParseStatus 校验并转换外部传入的状态字符串。
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	switch status {
	case StatusPending, StatusConfirmed, StatusPacked, StatusShipped,
		StatusInTransit, StatusOutForDelivery, StatusDelivered,
		StatusFailed, StatusReturned:
		return status, nil
	}
	return "", fmt.Errorf("unknown delivery status: %q", s)
}

// IsCompleted 判断是否处于终态。终态不可再离开。
func (s Status) IsCompleted() bool {
	return s == StatusDelivered || s == StatusFailed || s == StatusReturned
}

// IsInProgress 判断配送是否在途。
func (s Status) IsInProgress() bool {
	switch s {
	case StatusConfirmed, StatusPacked, StatusShipped, StatusInTransit, StatusOutForDelivery:
		return true
	}
	return false
}

// TransitionError 表示一次被状态机拒绝的流转请求。
type TransitionError struct {
	From Status
	To   Status
	msg  string
}

func (e *TransitionError) Error() string { return e.msg }

// Transition 校验一次状态流转是否合法。
// 规则: 终态不可离开; failed/returned 可从任意非终态进入;
// 主链只能原地重放或向前推进，不允许回退。
func Transition(from, to Status) error {
	if _, err := ParseStatus(string(to)); err != nil {
		return err
	}
	if from.IsCompleted() {
		return &TransitionError{From: from, To: to,
			msg: fmt.Sprintf("delivery is already %s and cannot change status", from)}
	}
	if to == StatusFailed || to == StatusReturned {
		return nil
	}
	if statusRank[to] < statusRank[from] {
		return &TransitionError{From: from, To: to,
			msg: fmt.Sprintf("cannot move delivery status backwards from %s to %s", from, to)}
	}
	return nil
}
