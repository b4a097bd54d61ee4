package wormhole

import "github.com/tauraamui/wormhole/pkg/database/repos"

func OverloadConnectDB(overload func() (repos.GormWrapper, error)) func() {
	connectDBRef := connectDB
	connectDB = overload
	return func() { connectDB = connectDBRef }
}

func (s *Server) RouteFilterCount(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.routes[route]
	if !ok {
		return -1
	}
	return r.chain.Len()
}
