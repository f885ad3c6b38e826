package status

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/bnema/azad-hub/internal/application"
	"github.com/bnema/azad-hub/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

type RenderOptions struct {
	Endpoint string
}

func renderView(snapshot application.Snapshot, opts RenderOptions, s styles) string {
	lines := []string{s.title.Render("Azad Hub")}
	if opts.Endpoint != "" {
		lines = append(lines, s.header.Render("endpoint: "+opts.Endpoint))
	}

	lines = append(lines,
		s.section.Render(controlLine(snapshot.ControlConnected, s)),
		peersBlock(snapshot.ContentPeers, s),
		periodsLine(snapshot.AdvertisedPeriods, s),
	)

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func controlLine(connected bool, s styles) string {
	state := s.warning.Render("disconnected")
	if connected {
		state = s.connected.Render("connected")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, s.label.Render("control:"), " ", state)
}

func peersBlock(peers []domain.PeerID, s styles) string {
	label := s.label.Render(fmt.Sprintf("content peers: %d", len(peers)))
	if len(peers) == 0 {
		return lipgloss.JoinHorizontal(lipgloss.Top, label, " ", s.empty.Render("(none)"))
	}

	tabs := make([]string, 0, len(peers))
	for _, peer := range peers {
		tabs = append(tabs, s.peer.Render("tab "+peer.String()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, label, "  "+strings.Join(tabs, ", "))
}

func periodsLine(periods []int, s styles) string {
	label := s.label.Render("advertised periods:")
	if len(periods) == 0 {
		return lipgloss.JoinHorizontal(lipgloss.Top, label, " ", s.empty.Render("none yet"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, label, " ", s.detail.Render(formatPeriods(periods)))
}

// formatPeriods collapses consecutive periods into ranges: 2019-2021, 2024.
func formatPeriods(periods []int) string {
	sorted := slices.Clone(periods)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	parts := make([]string, 0, len(sorted))
	for i := 0; i < len(sorted); {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[j]+1 {
			j++
		}
		if i == j {
			parts = append(parts, strconv.Itoa(sorted[i]))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", sorted[i], sorted[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ", ")
}
