package models

// Domain event names an event trigger may subscribe to.
const (
	EventInvoiceCreated     = "invoice.created"
	EventInvoiceSent        = "invoice.sent"
	EventInvoicePaid        = "invoice.paid"
	EventInvoiceOverdue     = "invoice.overdue"
	EventExpenseCreated     = "expense.created"
	EventExpenseApproved    = "expense.approved"
	EventExpenseRejected    = "expense.rejected"
	EventClientCreated      = "client.created"
	EventClientUpdated      = "client.updated"
	EventEmployeeOnboarded  = "employee.onboarded"
	EventEmployeeOffboarded = "employee.offboarded"
	EventPaymentReceived    = "payment.received"
	EventPaymentFailed      = "payment.failed"
	EventContractSigned     = "contract.signed"
	EventContractExpiring   = "contract.expiring"
)

var knownEvents = map[string]struct{}{
	EventInvoiceCreated:     {},
	EventInvoiceSent:        {},
	EventInvoicePaid:        {},
	EventInvoiceOverdue:     {},
	EventExpenseCreated:     {},
	EventExpenseApproved:    {},
	EventExpenseRejected:    {},
	EventClientCreated:      {},
	EventClientUpdated:      {},
	EventEmployeeOnboarded:  {},
	EventEmployeeOffboarded: {},
	EventPaymentReceived:    {},
	EventPaymentFailed:      {},
	EventContractSigned:     {},
	EventContractExpiring:   {},
}

// IsKnownEvent reports whether name is part of the domain event catalog.
func IsKnownEvent(name string) bool {
	_, ok := knownEvents[name]

	return ok
}
