package http

import (
	"strings"
	"sync"
)

// WebhookRegistry maps webhook ids to instance ids. Registering an id that is
// already present replaces the stale mapping.
type WebhookRegistry struct {
	mu     sync.RWMutex
	routes map[string]string
}

func NewWebhookRegistry() *WebhookRegistry {
	return &WebhookRegistry{routes: map[string]string{}}
}

func (r *WebhookRegistry) Register(webhookID, instanceID string) {
	webhookID = strings.TrimSpace(webhookID)
	if webhookID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[webhookID] = instanceID
}

func (r *WebhookRegistry) Unregister(webhookID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routes, strings.TrimSpace(webhookID))
}

// Lookup returns the instance registered for webhookID.
func (r *WebhookRegistry) Lookup(webhookID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.routes[webhookID]
	return id, ok
}

func (r *WebhookRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}
