package server

import "net/http"

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.LoggingMiddleware, s.RecoverMiddleware))

	// Public auth routes, the project key is all they need
	s.RegisterRouteFunc("POST "+RouteSignup, ChainMiddleware(s.SignupHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteToken, ChainMiddleware(s.TokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteRecover, ChainMiddleware(s.RecoverHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteSettings, ChainMiddleware(s.SettingsHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteJWKS, ChainMiddleware(s.JWKSHandler(), s.LoggingMiddleware, s.RecoverMiddleware, s.CorsMiddleware))

	// Auth routes acting on the bearer's session
	s.RegisterRouteFunc("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware(s.RequireUser)...))
	s.RegisterRouteFunc("GET "+RouteUser, ChainMiddleware(s.GetUserHandler(), s.APIMiddleware(s.RequireUser)...))
	s.RegisterRouteFunc("PUT "+RouteUser, ChainMiddleware(s.UpdateUserHandler(), s.APIMiddleware(s.RequireUser)...))

	// Tables; the anon key reads as an anonymous role
	s.RegisterRouteFunc("GET "+RouteTable, ChainMiddleware(s.SelectHandler(), s.APIMiddleware(s.ResolveRole)...))
	s.RegisterRouteFunc("POST "+RouteTable, ChainMiddleware(s.InsertHandler(), s.APIMiddleware(s.ResolveRole)...))
	s.RegisterRouteFunc("POST "+RouteRPC, ChainMiddleware(s.RPCHandler(), s.APIMiddleware(s.ResolveRole)...))

	s.RegisterRouteFunc("OPTIONS /", ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, s.CorsMiddleware))
}
