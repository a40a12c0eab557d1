package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

type EntityType string

const (
	EntityOrder    EntityType = "order"
	EntityProduct  EntityType = "product"
	EntityCustomer EntityType = "customer"
)

// ParseEntityType accepts the singular and plural route spellings; "user" is the
// admin panel's name for a customer.
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "order", "orders":
		return EntityOrder, nil
	case "product", "products":
		return EntityProduct, nil
	case "customer", "customers", "user", "users":
		return EntityCustomer, nil
	}
	return "", NewValidationError("entityType", "unknown entity type %q", s)
}

type MutationKind string

const (
	MutationStatusChange MutationKind = "status_change"
	MutationFieldUpdate  MutationKind = "field_update"
	MutationFlagAdd      MutationKind = "flag_add"
	MutationSoftDelete   MutationKind = "soft_delete"
	MutationRefund       MutationKind = "refund"
)

type FlagInput struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Reason   string   `json:"reason"`
}

// Mutation describes the change a batch applies to every entity.
type Mutation struct {
	Kind   MutationKind     `json:"type" binding:"required"`
	Status string           `json:"status,omitempty"`
	Fields map[string]any   `json:"fields,omitempty"`
	Flag   *FlagInput       `json:"flag,omitempty"`
	Reason string           `json:"reason,omitempty"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

const (
	FailureNotFound    = "not_found"
	FailureInvariant   = "invariant_violation"
	FailureUnavailable = "source_unavailable"
	FailureInternal    = "internal"
)

type BulkItemSuccess struct {
	ID    string `json:"id"`
	State any    `json:"state"`
}

type BulkItemFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

// BulkOperationResult is built during one batch call and returned once.
type BulkOperationResult struct {
	BatchID        string            `json:"batchId"`
	EntityType     EntityType        `json:"entityType"`
	Operation      MutationKind      `json:"operation"`
	Successful     []BulkItemSuccess `json:"successful"`
	Failed         []BulkItemFailure `json:"failed"`
	TotalProcessed int               `json:"totalProcessed"`
	SuccessCount   int               `json:"successCount"`
	FailureCount   int               `json:"failureCount"`
	// AuditFailures counts entries of this batch, item or summary, that the
	// audit store did not accept.
	AuditFailures  int               `json:"auditFailures"`
}

func NewBulkOperationResult(batchID string, entity EntityType, op MutationKind) *BulkOperationResult {
	return &BulkOperationResult{
		BatchID:    batchID,
		EntityType: entity,
		Operation:  op,
		Successful: []BulkItemSuccess{},
		Failed:     []BulkItemFailure{},
	}
}

func (r *BulkOperationResult) AddSuccess(id string, state any) {
	r.Successful = append(r.Successful, BulkItemSuccess{ID: id, State: state})
	r.SuccessCount++
	r.TotalProcessed++
}

func (r *BulkOperationResult) AddFailure(id, code, reason string) {
	r.Failed = append(r.Failed, BulkItemFailure{ID: id, Error: reason, Code: code})
	r.FailureCount++
	r.TotalProcessed++
}
