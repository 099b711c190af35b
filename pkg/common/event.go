package common

import (
	"time"
)

// NoOrder marks an error that is not tied to an order.
const NoOrder OrderId = -1

type ErrorEvent struct {
	OrderId   OrderId   `json:"order_id"`
	RequestId uint64    `json:"request_id,omitempty"`
	Err       error     `json:"-"`
	Message   string    `json:"message"`
	TimeStamp time.Time `json:"ts"`
}

func NewErrorEvent(orderId OrderId, requestId uint64, err error, ts time.Time) ErrorEvent {
	return ErrorEvent{
		OrderId:   orderId,
		RequestId: requestId,
		Err:       err,
		Message:   err.Error(),
		TimeStamp: ts,
	}
}

type RunResult struct {
	Start     time.Time     `json:"start"`
	End       time.Time     `json:"end"`
	Elapsed   time.Duration `json:"elapsed"`
	Completed bool          `json:"completed"`
}
