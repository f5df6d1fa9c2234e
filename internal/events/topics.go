package events

// Topic constants for domain events emitted by the platform.
const (
	TopicOrderCreated     = "order.created"
	TopicOrderPaid        = "order.paid"
	TopicPaymentSucceeded = "payment.succeeded"
	TopicPaymentFailed    = "payment.failed"
	TopicPaymentExpired   = "payment.expired"
	TopicPaymentDuplicate = "payment.duplicate"
)
