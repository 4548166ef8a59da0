package domain

import "time"

// TimelineEvent описывает событие в жизненном цикле продажи.
type TimelineEvent struct {
	SaleID   string
	Type     string
	Reason   string
	Occurred time.Time
}

const (
	TimelineSaleCreated   = "sale_created"
	TimelineSaleModified  = "sale_modified"
	TimelineSaleCancelled = "sale_cancelled"
)
