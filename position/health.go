package position

// Health is the alerting flag attached to a check report. It is not a status.
type Health string

const (
	HealthHealthy    Health = "HEALTHY"
	HealthWarning    Health = "WARNING"
	HealthMarginCall Health = "MARGIN_CALL"
	HealthLiquidated Health = "LIQUIDATED"
)
