package model

import "strings"

// Category classifies an inbound message. The taxonomy is closed: any
// value the classifier produces outside these six is handled as "not
// product related" by Route, never by accident of a default branch.
type Category string

const (
	CategoryProductEnquiry    Category = "product_enquiry"
	CategoryLeadEnquiry       Category = "lead_enquiry"
	CategoryCustomerComplaint Category = "customer_complaint"
	CategoryCustomerFeedback  Category = "customer_feedback"
	CategoryUnrelated         Category = "unrelated"
	CategorySpam              Category = "spam"
)

// AllCategories returns the closed category taxonomy.
func AllCategories() []Category {
	return []Category{
		CategoryProductEnquiry,
		CategoryLeadEnquiry,
		CategoryCustomerComplaint,
		CategoryCustomerFeedback,
		CategoryUnrelated,
		CategorySpam,
	}
}

// ParseCategory normalizes a classifier response to a known Category.
// Unknown values pass through unchanged; Route decides how to handle them.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllCategories() {
		if c == known {
			return known
		}
	}
	return c
}

// Route is the branch taken after categorization.
type Route int

const (
	// RouteEnrich runs knowledge-base enrichment before drafting.
	RouteEnrich Route = iota
	// RouteDraft drafts directly with empty context.
	RouteDraft
	// RouteSkipUnrelated drops the message without a reply.
	RouteSkipUnrelated
	// RouteSkipSpam drops the message without a reply.
	RouteSkipSpam
)

// Route maps a category to its pipeline branch. Product and lead
// enquiries are enriched; complaints, feedback, and any category value
// outside the taxonomy draft with empty context.
func (c Category) Route() Route {
	switch c {
	case CategoryProductEnquiry, CategoryLeadEnquiry:
		return RouteEnrich
	case CategoryUnrelated:
		return RouteSkipUnrelated
	case CategorySpam:
		return RouteSkipSpam
	case CategoryCustomerComplaint, CategoryCustomerFeedback:
		return RouteDraft
	default:
		// Not in the taxonomy: treat as not product related.
		return RouteDraft
	}
}
