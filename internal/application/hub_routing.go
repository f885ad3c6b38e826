package application

import (
	"context"

	"github.com/bnema/azad-hub/internal/domain"
	"go.uber.org/zap"
)

func (h *Hub) route(session *Session, raw []byte) {
	in, err := domain.DecodeMessage(raw)
	if err != nil {
		h.logger.Warn("dropping malformed message",
			zap.String("session_id", session.ID),
			zap.String("role", string(session.Role)),
			zap.Error(err),
		)
		return
	}
	h.metrics.IncMessage(string(session.Role), metricAction(in.Message))

	switch session.Role {
	case domain.RoleContent:
		h.routeContent(session, in)
	case domain.RoleControl:
		h.routeControl(session, in)
	}
}

func (h *Hub) routeContent(session *Session, in domain.Inbound) {
	switch msg := in.Message.(type) {
	case domain.AdvertisePeriods:
		h.logger.Info("aggregating advertised periods",
			zap.Stringer("peer_id", session.PeerID),
			zap.Ints("periods", msg.Periods),
		)
		h.metrics.SetAdvertisedPeriods(len(h.periods.Add(msg.Periods)))
		h.advertisePeriods()
	case domain.StatisticsUpdate:
		h.forwardToControl(in.Raw)
	case domain.RemoveCookie, domain.OpenTab:
		h.runHostRequest(msg)
	default:
		h.logger.Warn("unknown action",
			zap.String("role", string(session.Role)),
			zap.String("action", string(msg.Action())),
		)
	}
}

func (h *Hub) routeControl(session *Session, in domain.Inbound) {
	switch msg := in.Message.(type) {
	case domain.ScrapeYears:
		h.logger.Info("forwarding scrape_years", zap.Ints("years", msg.Years))
		h.broadcast(in)
	case domain.ScrapeRange:
		h.logger.Info("forwarding scrape_range",
			zap.ByteString("start_date", msg.StartDate),
			zap.ByteString("end_date", msg.EndDate),
		)
		h.broadcast(in)
	case domain.ClearCache, domain.ForceLogout, domain.Abort:
		h.broadcast(in)
	case domain.CheckFeatureAuthorized:
		h.checkAuthorization(msg.FeatureID)
	case domain.ShowPaymentUI:
		h.logger.Info("got show_payment_ui request")
		h.spawn(string(domain.ActionShowPaymentUI), h.billing.DisplayPaymentUI)
	case domain.RemoveCookie, domain.OpenTab:
		h.runHostRequest(msg)
	default:
		h.logger.Warn("unknown action",
			zap.String("role", string(session.Role)),
			zap.String("action", string(msg.Action())),
		)
	}
}

func (h *Hub) broadcast(in domain.Inbound) {
	result := h.registry.Broadcast(in.Raw)
	h.logger.Debug("broadcast to content peers",
		zap.String("action", string(in.Message.Action())),
		zap.Int("delivered", result.Delivered),
		zap.Int("failed", result.Failed),
	)
}

// checkAuthorization answers on whichever control session is attached when
// the entitlement service responds. Overlapping checks may answer out of order.
func (h *Hub) checkAuthorization(feature domain.FeatureID) {
	h.spawn(string(domain.ActionCheckFeatureAuthorized), func(ctx context.Context) error {
		authorised, err := h.auth.CheckAuthorization(ctx, feature)
		if err != nil {
			return err
		}
		return h.post(ctx, func() {
			h.sendToControl(domain.AuthorisationStatus{Authorised: authorised})
		})
	})
}

func (h *Hub) runHostRequest(msg domain.Message) {
	h.spawn(string(msg.Action()), func(ctx context.Context) error {
		if err := h.host.Execute(ctx, msg); err != nil {
			return err
		}
		h.logger.Info("host request done", zap.String("action", string(msg.Action())))
		return nil
	})
}

func (h *Hub) advertisePeriods() {
	if h.control == nil {
		h.logger.Info("cannot advertise periods yet: no control session")
		return
	}
	periods := h.periods.Snapshot()
	h.logger.Info("advertising periods", zap.Ints("periods", periods))
	h.sendToControl(domain.AdvertisePeriods{Periods: periods})
}

func (h *Hub) sendToControl(msg domain.Message) {
	payload, err := domain.EncodeMessage(msg)
	if err != nil {
		h.logger.Error("encode control message", zap.String("action", string(msg.Action())), zap.Error(err))
		return
	}
	h.forwardToControl(payload)
}

func (h *Hub) forwardToControl(payload []byte) {
	if h.control == nil {
		h.logger.Debug("no control session to forward to")
		return
	}
	if err := deliver(h.control.channel, payload); err != nil {
		h.metrics.IncDeliveryFailure(string(domain.RoleControl))
		h.logger.Debug("could not post message to control session",
			zap.String("session_id", h.control.ID),
			zap.Error(err),
		)
	}
}

func (h *Hub) onContextMenu(click domain.ContextMenuClick) {
	h.logger.Info("context menu item clicked", zap.String("menu_item_id", click.MenuItemID))
	if click.MenuItemID != domain.SaveOrderDebugInfoMenuID {
		return
	}

	orderID, ok := h.resolver.Resolve(click.LinkURL)
	if !ok {
		h.logger.Debug("link carries no order identifier", zap.String("link_url", click.LinkURL))
		return
	}

	payload, err := domain.EncodeMessage(domain.DumpOrderDetail{OrderID: orderID})
	if err != nil {
		h.logger.Error("encode dump_order_detail", zap.Error(err))
		return
	}
	result := h.registry.Broadcast(payload)
	h.logger.Info("requested order detail dump",
		zap.String("order_id", orderID),
		zap.Int("delivered", result.Delivered),
	)
}

func (h *Hub) onRuntimeMessage(raw []byte, tabID *domain.PeerID) {
	fields := []zap.Field{zap.String("from", "extension")}
	if tabID != nil {
		fields = []zap.Field{zap.String("from", "content script"), zap.Stringer("tab_id", *tabID)}
	}

	in, err := domain.DecodeMessage(raw)
	if err != nil {
		h.logger.Warn("dropping malformed runtime message", append(fields, zap.Error(err))...)
		return
	}
	h.metrics.IncMessage("runtime", metricAction(in.Message))

	if !h.host.Handles(in.Message) {
		h.logger.Warn("unknown action", append(fields, zap.String("action", string(in.Message.Action())))...)
		return
	}
	h.logger.Debug("runtime message", append(fields, zap.String("action", string(in.Message.Action())))...)
	h.runHostRequest(in.Message)
}

func metricAction(msg domain.Message) string {
	if _, ok := msg.(domain.Unknown); ok {
		return "unknown"
	}
	return string(msg.Action())
}
