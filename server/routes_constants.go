package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Session
	RouteCSRF   = "/csrf"
	RouteAuthMe = "/auth/me"
	RouteLogout = "/logout"

	// OAuth device flow
	RouteDeviceCode = "/oauth/device-code"
	RoutePoll       = "/oauth/poll"

	// Dataset
	RouteContent     = "/content"
	RouteContentMeta = "/content/meta"
	RouteCommit      = "/commit"

	// Operations
	RouteMetrics = "/metrics"
)
