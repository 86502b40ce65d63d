package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldError      = "error"
	FieldOperation  = "operation"

	FieldUserID       = "user_id"
	FieldSpaceID      = "space_id"
	FieldExpenseID    = "expense_id"
	FieldSettlementID = "settlement_id"
	FieldRevision     = "revision"
	FieldAmountMinor  = "amount_minor"
	FieldCurrency     = "currency"
	FieldSplitPolicy  = "split_policy"
	FieldParticipants = "participants"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentAuth       = "auth"
	ComponentLedger     = "ledger"
	ComponentSettlement = "settlement"
	ComponentBalance    = "balance"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentSheets     = "sheets"
	ComponentCache      = "cache"
	ComponentFx         = "fx"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpReplace  = "replace"
	OpExport   = "export"
	OpSettle   = "settle"
	OpValidate = "validate"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)
