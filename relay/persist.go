package relay

import (
	"encoding/json"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/offerhaven/walletcore/kvstore"
)

// Store keys for the relay client's persisted records. The history journal is
// ancillary by the store's naming convention and may be pruned under quota
// pressure; sessions and pairings may not.
const (
	storeKeySessions = "relay:client:sessions"
	storeKeyPairings = "relay:client:pairings"
	storeKeyHistory  = "relay:client:history"
)

// sessionListSchema validates persisted session records before adoption. The
// store is shared across subdomains and processes, so a corrupted write from
// one consumer must not poison another's startup.
const sessionListSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["topic", "accounts", "expiry"],
		"properties": {
			"topic":        {"type": "string", "minLength": 1},
			"pairingTopic": {"type": "string"},
			"chainId":      {"type": "string"},
			"accounts":     {"type": "array", "items": {"type": "string"}},
			"peerName":     {"type": "string"},
			"expiry":       {"type": "string"}
		}
	}
}`

// persistence reads and writes the relay client's session and pairing records
// through the chunked cross-subdomain store. All failures degrade to absence.
type persistence struct {
	store  *kvstore.Store
	logger *slog.Logger
}

func newPersistence(store *kvstore.Store, logger *slog.Logger) *persistence {
	if logger == nil {
		logger = slog.Default()
	}
	return &persistence{store: store, logger: logger}
}

func (p *persistence) loadSessions() []Session {
	if p.store == nil {
		return nil
	}
	raw, ok := p.store.Get(storeKeySessions)
	if !ok {
		return nil
	}

	schemaLoader := gojsonschema.NewStringLoader(sessionListSchema)
	documentLoader := gojsonschema.NewStringLoader(raw)
	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		p.logger.Warn("relay: persisted sessions unreadable", "err", err)
		return nil
	}
	if !result.Valid() {
		p.logger.Warn("relay: persisted sessions failed schema validation",
			"errors", len(result.Errors()))
		return nil
	}

	var sessions []Session
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		p.logger.Warn("relay: persisted sessions failed to decode", "err", err)
		return nil
	}
	return sessions
}

func (p *persistence) saveSessions(sessions []Session) {
	if p.store == nil {
		return
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		p.logger.Warn("relay: failed to encode sessions", "err", err)
		return
	}
	p.store.Set(storeKeySessions, string(data))
}

func (p *persistence) loadPairings() []Pairing {
	if p.store == nil {
		return nil
	}
	raw, ok := p.store.Get(storeKeyPairings)
	if !ok {
		return nil
	}
	var pairings []Pairing
	if err := json.Unmarshal([]byte(raw), &pairings); err != nil {
		p.logger.Warn("relay: persisted pairings failed to decode", "err", err)
		return nil
	}
	return pairings
}

func (p *persistence) savePairings(pairings []Pairing) {
	if p.store == nil {
		return
	}
	data, err := json.Marshal(pairings)
	if err != nil {
		p.logger.Warn("relay: failed to encode pairings", "err", err)
		return
	}
	p.store.Set(storeKeyPairings, string(data))
}

// appendHistory journals a request id for debugging. Best-effort and
// ancillary: the store may prune it whenever quota demands.
func (p *persistence) appendHistory(id string) {
	if p.store == nil {
		return
	}
	existing, _ := p.store.Get(storeKeyHistory)
	if existing != "" {
		existing += ","
	}
	p.store.Set(storeKeyHistory, existing+id)
}
