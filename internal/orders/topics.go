package orders

const (
	TopicOrderCreated   = "order.created"
	TopicOrderPaid      = "order.paid"
	TopicOrderCancelled = "order.cancelled"
	TopicOrderCompleted = "order.completed"
)

var topicByEvent = map[string]string{
	EventOrderCreated:   TopicOrderCreated,
	EventOrderPaid:      TopicOrderPaid,
	EventOrderCancelled: TopicOrderCancelled,
	EventOrderCompleted: TopicOrderCompleted,
}

// Topics lists every topic the order service publishes to.
func Topics() []string {
	return []string{TopicOrderCreated, TopicOrderPaid, TopicOrderCancelled, TopicOrderCompleted}
}

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
