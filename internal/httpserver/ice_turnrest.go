package httpserver

import (
	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/turnrest"
)

func withTURNRESTCredentials(servers []webrtc.ICEServer, creds turnrest.Credentials) []webrtc.ICEServer {
	if servers == nil {
		// Encode as `[]`, never `null`.
		return []webrtc.ICEServer{}
	}
	out := make([]webrtc.ICEServer, len(servers))
	for i, server := range servers {
		out[i] = server
		if config.HasTURNURL(server) {
			out[i].Username = creds.Username
			out[i].Credential = creds.Credential
			out[i].CredentialType = webrtc.ICECredentialTypePassword
		}
	}
	return out
}

func (s *Server) iceServers() ([]webrtc.ICEServer, error) {
	if s.turn == nil {
		if s.cfg.ICEServers == nil {
			return []webrtc.ICEServer{}, nil
		}
		return s.cfg.ICEServers, nil
	}
	creds, err := s.turn.Issue("")
	if err != nil {
		return nil, err
	}
	return withTURNRESTCredentials(s.cfg.ICEServers, creds), nil
}
