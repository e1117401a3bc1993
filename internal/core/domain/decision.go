package domain

import "time"

// Decision is one of the five mutually exclusive approval tiers.
type Decision string

const (
	DecisionAutoApproved     Decision = "auto_approved"
	DecisionSupervisorReview Decision = "supervisor_review"
	DecisionManagerReview    Decision = "manager_review"
	DecisionExecutiveReview  Decision = "executive_review"
	DecisionRejected         Decision = "rejected"
)

// Decisions lists the tiers in escalation order.
var Decisions = []Decision{
	DecisionAutoApproved,
	DecisionSupervisorReview,
	DecisionManagerReview,
	DecisionExecutiveReview,
	DecisionRejected,
}

func (d Decision) Valid() bool {
	switch d {
	case DecisionAutoApproved, DecisionSupervisorReview, DecisionManagerReview,
		DecisionExecutiveReview, DecisionRejected:
		return true
	default:
		return false
	}
}

// Routing is the router's verdict for one document.
type Routing struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason"`
	// Escalated is set when a document-type rule pushed the document to
	// manager review.
	Escalated bool `json:"escalated"`
	// Fault is set when the router could not normalize the amount.
	Fault bool `json:"fault"`
}

// Outcome is everything the metrics aggregator needs to account for one
// fully processed document.
type Outcome struct {
	InvoiceID       int
	DocumentType    DocumentType
	Decision        Decision
	Reason          string
	RiskScore       float64
	Escalated       bool
	RoutingFault    bool
	CriticalAnomaly bool
	ErrorCount      int
	APICalls        int
	Duration        time.Duration
	// Errors are operational messages kept for the error-rate statistic.
	Errors []string
}
