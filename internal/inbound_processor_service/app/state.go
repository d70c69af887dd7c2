package app

import (
	"strings"
	"time"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
)

const (
	stateMaxLength      = 255
	senderPreviewLength = 100
	// NewMessageWindow is how long new_message stays true after a store.
	NewMessageWindow = 5 * time.Second
)

// LastMessageView exposes the latest message: a short state plus full attributes.
type LastMessageView struct {
	State           string             `json:"state"`
	FullMessage     string             `json:"full_message"`
	Sender          string             `json:"sender"`
	Timestamp       time.Time          `json:"timestamp"`
	MessageSID      string             `json:"message_sid"`
	ToNumber        string             `json:"to_number"`
	Provider        domain.ProviderTag `json:"provider"`
	MatchedKeywords []string           `json:"matched_keywords"`
}

type LastSenderView struct {
	State          string    `json:"state"`
	MessagePreview string    `json:"message_preview"`
	Timestamp      time.Time `json:"timestamp"`
}

// InstanceState is the queryable state of one instance.
type InstanceState struct {
	InstanceID    string             `json:"instance_id"`
	Name          string             `json:"name"`
	Provider      domain.ProviderTag `json:"provider"`
	Mode          domain.Mode        `json:"mode"`
	LastMessage   *LastMessageView   `json:"last_message"`
	LastSender    *LastSenderView    `json:"last_sender"`
	MessageCount  uint64             `json:"message_count"`
	NewMessage    bool               `json:"new_message"`
	WebhookURL    string             `json:"webhook_url,omitempty"`
	HistoryLength int                `json:"history_length"`
}

// WebhookPath is the dispatcher path for a webhook id.
func WebhookPath(webhookID string) string {
	return "/api/webhook/" + webhookID
}

// BuildInstanceState renders rt's store for API consumers. baseURL is the
// public origin used to print the webhook URL.
func BuildInstanceState(rt *Runtime, baseURL string, now time.Time) InstanceState {
	snap := rt.Store.Snapshot()
	st := InstanceState{
		InstanceID:    rt.ID(),
		Name:          rt.Config.Name,
		Provider:      rt.Config.Provider,
		Mode:          rt.Config.EffectiveMode(),
		MessageCount:  snap.Count,
		HistoryLength: len(snap.History),
	}
	if !snap.LastStoredAt.IsZero() {
		st.NewMessage = now.Sub(snap.LastStoredAt) < NewMessageWindow
	}
	if rt.Config.EffectiveMode() == domain.ModeWebhook && rt.Config.WebhookID != "" {
		st.WebhookURL = strings.TrimRight(baseURL, "/") + WebhookPath(rt.Config.WebhookID)
	}

	if msg := snap.Latest; msg != nil {
		st.LastMessage = &LastMessageView{
			State:           truncateRunes(msg.Body, stateMaxLength),
			FullMessage:     msg.Body,
			Sender:          msg.Sender,
			Timestamp:       msg.Timestamp,
			MessageSID:      msg.MessageID,
			ToNumber:        msg.Recipient,
			Provider:        msg.Provider,
			MatchedKeywords: msg.MatchedKeywords,
		}
		st.LastSender = &LastSenderView{
			State:          msg.Sender,
			MessagePreview: msg.Preview(senderPreviewLength),
			Timestamp:      msg.Timestamp,
		}
	}
	return st
}
