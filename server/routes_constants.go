package server

// Route path constants
const (
	prefixAuth = "/auth/v1"
	prefixRest = "/rest/v1"

	// Auth API
	RouteSignup   = prefixAuth + "/signup"
	RouteToken    = prefixAuth + "/token"
	RouteLogout   = prefixAuth + "/logout"
	RouteRecover  = prefixAuth + "/recover"
	RouteUser     = prefixAuth + "/user"
	RouteJWKS     = prefixAuth + "/.well-known/jwks.json"
	RouteSettings = prefixAuth + "/settings"

	// Tables and procedures
	RouteTable = prefixRest + "/{table}"
	RouteRPC   = prefixRest + "/rpc/{function}"

	RouteHealth = "/health"
)
