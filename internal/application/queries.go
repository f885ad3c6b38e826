package application

import "github.com/bnema/azad-hub/internal/domain"

type Snapshot struct {
	ContentPeers      []domain.PeerID `json:"content_peers"`
	ControlConnected  bool            `json:"control_connected"`
	AdvertisedPeriods []int           `json:"advertised_periods"`
}
