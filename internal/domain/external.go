package domain

type ExternalStatus string

const (
	ExternalStatusAck         ExternalStatus = "ack"
	ExternalStatusUnsupported ExternalStatus = "unsupported"
)

type ExternalResponse struct {
	Status ExternalStatus `json:"status"`
}

// ContextMenuClick is one activation of an extension context-menu entry.
type ContextMenuClick struct {
	MenuItemID string `json:"menu_item_id"`
	LinkURL    string `json:"link_url"`
}

type ContextMenuEntry struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Contexts []string `json:"contexts"`
}

const SaveOrderDebugInfoMenuID = "save_order_debug_info"

var SaveOrderDebugInfoMenu = ContextMenuEntry{
	ID:       SaveOrderDebugInfoMenuID,
	Title:    "save order debug info",
	Contexts: []string{"link"},
}
