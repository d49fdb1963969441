package errors

import "fmt"

// HandlerError records one subscription's failure to handle one event.
type HandlerError struct {
	SubscriptionID string
	EventID        string
	EventType      string
	Err            error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("subscription %s: %s event %s: %v",
		e.SubscriptionID, e.EventType, e.EventID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Retryable reports true: the handler may succeed on redelivery.
func (e *HandlerError) Retryable() bool { return true }

// PanicError is a recovered handler panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// DeliveryFailedError reports a publish whose deliveries did not all succeed.
type DeliveryFailedError struct {
	EventID string
	Failed  int
	Total   int
}

func (e *DeliveryFailedError) Error() string {
	return fmt.Sprintf("event %s: %d/%d deliveries failed", e.EventID, e.Failed, e.Total)
}

// Retryable reports true: a later publish may reach healthy handlers.
func (e *DeliveryFailedError) Retryable() bool { return true }
