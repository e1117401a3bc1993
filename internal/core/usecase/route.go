package usecase

import (
	"fmt"

	"github.com/kirillkom/invoice-router/internal/core/domain"
)

const (
	rejectScore         = 0.8
	emailMaxScore       = 0.2
	formalAutoMaxScore  = 0.3
	otherSupervisionMax = 0.25
)

// ApprovalRouter maps a scored document to one of the five approval tiers.
// It holds no mutable state; identical inputs give identical routings.
type ApprovalRouter struct {
	policy *domain.Policy
}

func NewApprovalRouter(policy *domain.Policy) *ApprovalRouter {
	return &ApprovalRouter{policy: policy}
}

func (r *ApprovalRouter) Route(fields domain.Fields, errs []string, score float64, docType domain.DocumentType) domain.Routing {
	if routing, rejected := r.hardReject(errs, score); rejected {
		return routing
	}

	local, reference, err := r.normalizeAmounts(fields)
	if err != nil {
		// The executive tier doubles as manual review for documents the
		// router cannot place.
		return domain.Routing{
			Decision: domain.DecisionExecutiveReview,
			Reason:   truncate("Routing error: "+err.Error(), 80),
			Fault:    true,
		}
	}

	var routing domain.Routing
	switch docType {
	case domain.DocumentTypeCreditNote:
		routing = r.routeCreditNote(local)
	case domain.DocumentTypeEmail:
		routing = r.routeEmail(local, score, errs)
	case domain.DocumentTypeFormalInvoice:
		routing = r.routeFormalInvoice(local, reference, score, errs)
	default:
		routing = r.routeOther(docType, local, score)
	}

	if !routing.Decision.Valid() {
		panic(fmt.Sprintf("approval router produced unknown decision %q", routing.Decision))
	}
	return routing
}

func (r *ApprovalRouter) hardReject(errs []string, score float64) (domain.Routing, bool) {
	for _, e := range errs {
		if r.policy.IsCriticalAnomaly(e) {
			return domain.Routing{
				Decision: domain.DecisionRejected,
				Reason:   fmt.Sprintf("Critical errors detected: %d - compliance violation", len(errs)),
			}, true
		}
	}
	if score >= rejectScore {
		return domain.Routing{
			Decision: domain.DecisionRejected,
			Reason:   fmt.Sprintf("Risk score too high (%.2f) - auto-rejected", score),
		}, true
	}
	return domain.Routing{}, false
}

// normalizeAmounts returns the amount in local and reference currency.
func (r *ApprovalRouter) normalizeAmounts(fields domain.Fields) (float64, float64, error) {
	amount, err := domain.ParseAmount(fields[domain.FieldTotalAmount])
	if err != nil {
		return 0, 0, err
	}
	if fields.Currency() == r.policy.ReferenceCurrency {
		return amount * r.policy.ExchangeRate, amount, nil
	}
	return amount, amount / r.policy.ExchangeRate, nil
}

func (r *ApprovalRouter) routeCreditNote(local float64) domain.Routing {
	if local <= r.policy.Local.Supervisor {
		return domain.Routing{
			Decision:  domain.DecisionManagerReview,
			Reason:    fmt.Sprintf("Credit note of %s %s - management review required by policy", formatAmount(local), r.policy.LocalCurrency),
			Escalated: true,
		}
	}
	return domain.Routing{
		Decision: domain.DecisionExecutiveReview,
		Reason:   fmt.Sprintf("High-amount credit note of %s %s - executive approval required", formatAmount(local), r.policy.LocalCurrency),
	}
}

func (r *ApprovalRouter) routeEmail(local, score float64, errs []string) domain.Routing {
	rule := r.policy.Email
	if local <= rule.MaxAutoApproval && score < emailMaxScore && len(errs) == 0 {
		return domain.Routing{
			Decision: domain.DecisionSupervisorReview,
			Reason:   fmt.Sprintf("Email invoice of %s %s, score %.2f - minimum supervision", formatAmount(local), r.policy.LocalCurrency, score),
		}
	}
	if local <= r.policy.Local.Supervisor {
		return domain.Routing{
			Decision:  domain.DecisionManagerReview,
			Reason:    fmt.Sprintf("Email invoice of %s %s, score %.2f - escalated by document type", formatAmount(local), r.policy.LocalCurrency, score),
			Escalated: true,
		}
	}
	return domain.Routing{
		Decision: domain.DecisionExecutiveReview,
		Reason:   fmt.Sprintf("High-amount email invoice of %s %s - maximum review required", formatAmount(local), r.policy.LocalCurrency),
	}
}

func (r *ApprovalRouter) routeFormalInvoice(local, reference, score float64, errs []string) domain.Routing {
	p := r.policy
	switch {
	case local <= p.Local.AutoApproval && reference <= p.Reference.AutoApproval && score < formalAutoMaxScore && len(errs) == 0:
		return domain.Routing{
			Decision: domain.DecisionAutoApproved,
			Reason:   fmt.Sprintf("Formal invoice of %s %s, score %.2f - low amount, acceptable risk", formatAmount(local), p.LocalCurrency, score),
		}
	case local <= p.Local.Supervisor && reference <= p.Reference.Supervisor:
		return domain.Routing{
			Decision: domain.DecisionSupervisorReview,
			Reason:   fmt.Sprintf("Formal invoice of %s %s, score %.2f, %d errors - medium amount", formatAmount(local), p.LocalCurrency, score, len(errs)),
		}
	case local <= p.Local.Manager && reference <= p.Reference.Manager:
		return domain.Routing{
			Decision: domain.DecisionManagerReview,
			Reason:   fmt.Sprintf("Formal invoice of %s %s - high amount", formatAmount(local), p.LocalCurrency),
		}
	default:
		return domain.Routing{
			Decision: domain.DecisionExecutiveReview,
			Reason:   fmt.Sprintf("Formal invoice of %s %s - very high amount", formatAmount(local), p.LocalCurrency),
		}
	}
}

func (r *ApprovalRouter) routeOther(docType domain.DocumentType, local, score float64) domain.Routing {
	rule := r.policy.Rule(docType)
	if local <= rule.MaxAutoApproval && score < otherSupervisionMax {
		return domain.Routing{
			Decision: domain.DecisionSupervisorReview,
			Reason:   fmt.Sprintf("Document %s of %s %s, score %.2f - supervision by precaution", docType, formatAmount(local), r.policy.LocalCurrency, score),
		}
	}
	if local <= r.policy.Local.Manager {
		return domain.Routing{
			Decision:  domain.DecisionManagerReview,
			Reason:    fmt.Sprintf("Document %s of %s %s, score %.2f - amount requires management", docType, formatAmount(local), r.policy.LocalCurrency, score),
			Escalated: true,
		}
	}
	return domain.Routing{
		Decision: domain.DecisionExecutiveReview,
		Reason:   fmt.Sprintf("Document %s of %s %s - high amount requires executives", docType, formatAmount(local), r.policy.LocalCurrency),
	}
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
