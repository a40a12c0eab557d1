package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CustomerStatus string

const (
	CustomerStatusActive    CustomerStatus = "active"
	CustomerStatusInactive  CustomerStatus = "inactive"
	CustomerStatusSuspended CustomerStatus = "suspended"
	CustomerStatusBanned    CustomerStatus = "banned"
)

func (s CustomerStatus) Valid() bool {
	switch s {
	case CustomerStatusActive, CustomerStatusInactive, CustomerStatusSuspended, CustomerStatusBanned:
		return true
	}
	return false
}

type Segment string

const (
	SegmentNew       Segment = "new"
	SegmentReturning Segment = "returning"
	SegmentLoyal     Segment = "loyal"
	SegmentVIP       Segment = "vip"
	SegmentAtRisk    Segment = "at_risk"
)

func (s Segment) Valid() bool {
	switch s {
	case SegmentNew, SegmentReturning, SegmentLoyal, SegmentVIP, SegmentAtRisk:
		return true
	}
	return false
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

type Customer struct {
	CustomerID       string          `json:"customerId"`
	Name             string          `json:"name"`
	Email            string          `json:"email"`
	Phone            string          `json:"phone"`
	RegistrationDate time.Time       `json:"registrationDate"`
	TotalOrders      int             `json:"totalOrders"`
	TotalSpent       decimal.Decimal `json:"totalSpent"`
	LastOrderDate    *time.Time      `json:"lastOrderDate,omitempty"`
	Status           CustomerStatus  `json:"status"`
	Segmentation     Segment         `json:"segmentation"`
	EngagementScore  int             `json:"engagementScore"`
	ChurnRisk        RiskLevel       `json:"churnRisk"`
	Flags            []Flag          `json:"flags,omitempty"`
	DeletedAt        *time.Time      `json:"deletedAt,omitempty"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func (c *Customer) IsDeleted() bool {
	return c.DeletedAt != nil
}

func (c *Customer) TransitionTo(next CustomerStatus) error {
	if !next.Valid() {
		return NewInvariantViolation("customer_status", "unknown status %q", next)
	}
	if c.Status == next {
		return NewInvariantViolation("customer_status", "customer %s is already %s", c.CustomerID, next)
	}
	c.Status = next
	return nil
}
