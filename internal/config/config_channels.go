package config

// ChannelsConfig contains per-transport configuration.
type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

// WhatsAppConfig points at a whatsapp-web.js bridge that speaks JSON over WebSocket.
type WhatsAppConfig struct {
	Enabled   bool   `json:"enabled"`
	BridgeURL string `json:"bridge_url"`
}
