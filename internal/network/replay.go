package network

import (
	"net/http"
	"strconv"
	"time"

	"github.com/MRamiBalles/PetGuild/internal/events"
	"github.com/MRamiBalles/PetGuild/internal/store"
)

// ReplayResponse is the event history of one tenant.
type ReplayResponse struct {
	Tenant      string         `json:"tenant"`
	TotalEvents int            `json:"total_events"`
	LastSeq     uint64         `json:"last_seq"`
	GeneratedAt string         `json:"generated_at"`
	Events      []events.Event `json:"events"`
}

// replay returns retained events, oldest first.
// GET /api/tenants/{tenant}/events?since=SEQ&pet=ID&type=PET_DIED&limit=N
func (a *API) replay(w http.ResponseWriter, r *http.Request) {
	tenant := pathVar(r, "tenant")
	if !a.store.Provisioned(tenant) {
		writeError(w, http.StatusNotFound, string(store.ReasonNotFound), "unknown tenant")
		return
	}

	q := r.URL.Query()
	var since uint64
	if s := q.Get("since"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(store.ReasonInvalidInput), "since must be a sequence number")
			return
		}
		since = n
	}

	var history []events.Event
	if petID := q.Get("pet"); petID != "" {
		for _, e := range a.events.ByPet(tenant, petID) {
			if e.Seq > since {
				history = append(history, e)
			}
		}
	} else {
		history = a.events.Since(tenant, since)
	}

	if typ := q.Get("type"); typ != "" {
		filtered := history[:0]
		for _, e := range history {
			if string(e.Type) == typ {
				filtered = append(filtered, e)
			}
		}
		history = filtered
	}

	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	if history == nil {
		history = []events.Event{}
	}

	writeJSON(w, http.StatusOK, ReplayResponse{
		Tenant:      tenant,
		TotalEvents: len(history),
		LastSeq:     a.events.LastSeq(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Events:      history,
	})
}
