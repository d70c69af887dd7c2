package app

import (
	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
)

// Runtime is the live state of one configured instance: its configuration,
// store, compiled keywords and extractor. It is owned by the Manager.
type Runtime struct {
	Config    domain.InstanceConfig
	Store     *MessageStore
	Matcher   *KeywordMatcher
	Extractor Extractor

	poller *Poller
}

func (r *Runtime) ID() string { return r.Config.ID }

func (r *Runtime) close() {
	if r.poller != nil {
		r.poller.Stop()
	}
	r.Store.Close()
}
