package application

import (
	"slices"

	"github.com/bnema/azad-hub/internal/domain"
	"github.com/bnema/azad-hub/internal/observability"
	"github.com/bnema/azad-hub/internal/ports"
	"go.uber.org/zap"
)

const externalLookbackMonths = 3

// Extensions allowed to drive the hub from outside.
var allowedExtensionIDs = []string{
	"lanjobgdpfchcekdbfelnkhcbppkpldm", // development build
	"jjegocddaijoaiooabldmkcmlfdahkoe", // EZP regular release
	"ccffmpedppmmccbelbkmembkkggbmnce", // EZP early testers release
	"ciklnhigjmbmehniheaolibcchfmabfp", // EZP alpha testers release
}

func IsAllowedExtension(senderID string) bool {
	return slices.Contains(allowedExtensionIDs, senderID)
}

type ExternalRequestGate struct {
	content Broadcaster
	clock   ports.Clock
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewExternalRequestGate(content Broadcaster, clock ports.Clock, logger *zap.Logger, metrics *observability.Metrics) *ExternalRequestGate {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ExternalRequestGate{
		content: content,
		clock:   clock,
		logger:  logger.Named("external"),
		metrics: metrics,
	}
}

// Handle answers a request from another extension. The second return value is
// false when the caller gets no response at all.
func (g *ExternalRequestGate) Handle(senderID string, raw []byte) (domain.ExternalResponse, bool) {
	if !IsAllowedExtension(senderID) {
		g.metrics.IncExternalRequest("rejected")
		g.logger.Debug("ignoring request from extension outside allow-list", zap.String("sender_id", senderID))
		return domain.ExternalResponse{}, false
	}

	in, err := domain.DecodeMessage(raw)
	if err != nil || in.Message.Action() != domain.ActionGetItems3M {
		g.metrics.IncExternalRequest("unsupported")
		g.logger.Info("unsupported external request", zap.String("sender_id", senderID), zap.Error(err))
		return domain.ExternalResponse{Status: domain.ExternalStatusUnsupported}, true
	}

	end := g.clock.Now()
	start := end.AddDate(0, -externalLookbackMonths, 0)
	payload, err := domain.EncodeMessage(domain.ScrapeRangeAndDumpItems{StartDate: start, EndDate: end})
	if err != nil {
		g.logger.Error("encode scrape range command", zap.Error(err))
		return domain.ExternalResponse{Status: domain.ExternalStatusUnsupported}, true
	}

	result := g.content.Broadcast(payload)
	g.metrics.IncExternalRequest("ack")
	g.logger.Info("sending scrape_range_and_dump_items",
		zap.String("sender_id", senderID),
		zap.Time("start_date", start),
		zap.Time("end_date", end),
		zap.Int("delivered", result.Delivered),
	)

	return domain.ExternalResponse{Status: domain.ExternalStatusAck}, true
}
