package app

// StopReason is logged when the app shuts down.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSignal     StopReason = "signal"
	StopMaxTicks   StopReason = "max_ticks"
	StopDemoDone   StopReason = "demo_done"
	StopFatalError StopReason = "fatal_error"
)
