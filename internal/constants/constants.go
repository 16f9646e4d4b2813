package constants

import "time"

// Template names resolved through the template store
const (
	TemplateLogin = "login_btn"
	TemplateCart  = "cart_btn"
	TemplateBuy   = "buy_btn"
)

// Image Matching
const (
	DefaultThreshold = 0.8 // NCC score a match must exceed

	// Coarse-to-fine matching kicks in once frame area * template area exceeds this
	CoarseSearchWork  = 50_000_000
	CoarseCandidates  = 8 // Best coarse positions refined at full resolution
	CoarseRefineRange = 2 // Full-resolution pixels searched around each coarse candidate
)

// Humanized Click
const (
	ClickJitter   = 5                      // Max pixel offset applied on each axis
	ClickPauseMin = 100 * time.Millisecond // Lower bound of the move-to-click pause
	ClickPauseMax = 300 * time.Millisecond // Upper bound (exclusive)
)

// Retry Policies
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond

	CheckoutMaxRetries = 5
	CheckoutRetryDelay = 300 * time.Millisecond

	ConfirmMaxRetries = 5
	ConfirmRetryDelay = DefaultRetryDelay
)

// Precision Scheduler
const (
	SchedulerPollInterval = 10 * time.Millisecond
	SchedulerTolerance    = 50 * time.Millisecond
)

// Browser Stage Timeouts
const (
	LoginTimeout = 120 * time.Second // Wait for the post-login URL
	CartTimeout  = 10 * time.Second  // Wait for the cart page element
)

// Settle Waits
const (
	LoginSettleWait = 120 * time.Second // Page stabilisation after login
	CartSettleWait  = 15 * time.Second  // Page stabilisation after the cart loads
	SubmitPageWait  = 1 * time.Second   // Checkout -> order submission page transition
)

// Clock Sync
const (
	TimeSyncTimeout    = 5 * time.Second
	TimeSyncMaxOffset  = 10 * time.Second // Larger offsets are treated as bogus server clocks
	TimeSyncEdgeWindow = 1100 * time.Millisecond
	TimeSyncEdgeStep   = 40 * time.Millisecond
)

// UI
const (
	MaxLogLines = 100
)
