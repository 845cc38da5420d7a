package model

// WebhookRegistration is the hook herald asks the source host to deliver to
type WebhookRegistration struct {
	Owner   string
	Repo    string
	URL     string
	Events  []string
	Secret  *Secret // nil registers an unsigned hook
	Enabled bool
}

// RegisteredWebhook identifies the hook on the source host
type RegisteredWebhook struct {
	ID      int64
	URL     string
	Created bool // false when an existing hook for the same URL was updated
}
