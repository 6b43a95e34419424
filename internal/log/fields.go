package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldOwner      = "owner_id"
	FieldEventID    = "event_id"
	FieldExpenseID  = "expense_id"
	FieldCollection = "collection"
	FieldQuery      = "query"
	FieldCount      = "count"
	FieldAmount     = "amount"
	FieldCategory   = "category"
	FieldCurrency   = "currency"
	FieldPeriod     = "period"
	FieldBackend    = "backend"
	FieldDocPath    = "doc_path"
)

// Components defines standard component names
const (
	ComponentApp          = "app"
	ComponentCache        = "cache"
	ComponentSubscription = "subscription"
	ComponentMutation     = "mutation"
	ComponentStore        = "store"
	ComponentSession      = "session"
	ComponentHTTP         = "http"
	ComponentAMQP         = "amqp"
)

// Operations defines standard operation names
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpSnapshot    = "snapshot"
	OpCreate      = "create"
	OpDelete      = "delete"
	OpCascade     = "cascade_delete"
	OpPublish     = "publish"
	OpStartup     = "startup"
	OpShutdown    = "shutdown"
)
