package application

import (
	"context"
	"fmt"

	"github.com/bnema/azad-hub/internal/domain"
	"github.com/bnema/azad-hub/internal/ports"
)

// HostRequests carries out the one-shot requests peers make of the browser.
type HostRequests struct {
	host ports.Host
}

func NewHostRequests(host ports.Host) *HostRequests {
	return &HostRequests{host: host}
}

func (h *HostRequests) Handles(msg domain.Message) bool {
	switch msg.(type) {
	case domain.RemoveCookie, domain.OpenTab:
		return true
	default:
		return false
	}
}

func (h *HostRequests) Execute(ctx context.Context, msg domain.Message) error {
	switch m := msg.(type) {
	case domain.RemoveCookie:
		if err := h.host.RemoveCookie(ctx, m.CookieURL, m.CookieName); err != nil {
			return fmt.Errorf("remove cookie %s %s: %w", m.CookieURL, m.CookieName, err)
		}
		return nil
	case domain.OpenTab:
		if err := h.host.OpenTab(ctx, m.URL); err != nil {
			return fmt.Errorf("open tab %s: %w", m.URL, err)
		}
		return nil
	default:
		return fmt.Errorf("host request %s: %w", msg.Action(), domain.ErrUnknownAction)
	}
}
