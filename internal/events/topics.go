package events

// Topics emitted by the register and back office.
const (
	TopicSaleCompleted   = "sale.completed"
	TopicSaleCancelled   = "sale.cancelled"
	TopicProductCreated  = "product.created"
	TopicProductUpdated  = "product.updated"
	TopicProductDeleted  = "product.deleted"
	TopicExpenseRecorded = "expense.recorded"
)

// KnownTopic reports whether topic is one the system emits.
func KnownTopic(topic string) bool {
	switch topic {
	case TopicSaleCompleted, TopicSaleCancelled,
		TopicProductCreated, TopicProductUpdated, TopicProductDeleted,
		TopicExpenseRecorded:
		return true
	}
	return false
}
