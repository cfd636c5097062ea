package network

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MRamiBalles/PetGuild/internal/domain/item"
	"github.com/MRamiBalles/PetGuild/internal/engine"
	"github.com/MRamiBalles/PetGuild/internal/events"
	"github.com/MRamiBalles/PetGuild/internal/ledger"
	"github.com/MRamiBalles/PetGuild/internal/platform/logger"
	"github.com/MRamiBalles/PetGuild/internal/platform/metrics"
	"github.com/MRamiBalles/PetGuild/internal/store"
)

const defaultLeaderboardLimit = 10

// APIOptions tunes the HTTP surface.
type APIOptions struct {
	ActionsPerMinute int
	MetricsPath      string // empty disables /metrics
}

// API serves the JSON HTTP routes and the websocket endpoint.
type API struct {
	engine     *engine.Engine
	ledger     *ledger.Ledger
	store      *store.Store
	events     *events.EventLog
	dispatcher *Dispatcher
	hub        *Hub
	metrics    *metrics.Metrics
	logger     *logger.Logger
	opts       APIOptions
	upgrader   websocket.Upgrader
}

// NewAPI creates the HTTP surface.
func NewAPI(eng *engine.Engine, led *ledger.Ledger, st *store.Store, el *events.EventLog, d *Dispatcher, hub *Hub, m *metrics.Metrics, log *logger.Logger, opts APIOptions) *API {
	return &API{
		engine:     eng,
		ledger:     led,
		store:      st,
		events:     el,
		dispatcher: d,
		hub:        hub,
		metrics:    m,
		logger:     log,
		opts:       opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Routes builds the request router.
func (a *API) Routes() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	if a.opts.MetricsPath != "" {
		router.Handle(a.opts.MetricsPath, a.metrics.Handler()).Methods(http.MethodGet)
	}
	router.HandleFunc("/ws", a.serveWS).Methods(http.MethodGet)

	router.HandleFunc("/api/tenants/{tenant}", a.provision).Methods(http.MethodPost)
	tenants := router.PathPrefix("/api/tenants/{tenant}").Subrouter()
	tenants.HandleFunc("/pets/{pet}", a.getPet).Methods(http.MethodGet)
	tenants.HandleFunc("/leaderboard/pets", a.petLeaderboard).Methods(http.MethodGet)
	tenants.HandleFunc("/leaderboard/tokens", a.tokenLeaderboard).Methods(http.MethodGet)
	tenants.HandleFunc("/events", a.replay).Methods(http.MethodGet)

	tenants.HandleFunc("/shop", a.listItems).Methods(http.MethodGet)
	tenants.HandleFunc("/shop", a.addItem).Methods(http.MethodPost)
	tenants.HandleFunc("/shop/{item}", a.removeItem).Methods(http.MethodDelete)

	accounts := tenants.PathPrefix("/accounts/{account}").Subrouter()
	accounts.HandleFunc("/pets", a.petsOf).Methods(http.MethodGet)
	accounts.HandleFunc("/balance", a.balance).Methods(http.MethodGet)
	accounts.HandleFunc("/grants", a.grant).Methods(http.MethodPost)
	accounts.HandleFunc("/purchases", a.purchase).Methods(http.MethodPost)
	accounts.HandleFunc("/actions", a.action).Methods(http.MethodPost)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, string(store.ReasonNotFound), "endpoint not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, string(store.ReasonInvalidInput), "method not allowed")
	})
	return router
}

// pathVar returns a route variable of the matched request.
func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func (a *API) provision(w http.ResponseWriter, r *http.Request) {
	created, err := a.store.Provision(pathVar(r, "tenant"))
	if err != nil {
		writeError(w, http.StatusBadRequest, string(store.ReasonInvalidInput), err.Error())
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		a.logger.Info("tenant provisioned", zap.String("tenant", pathVar(r, "tenant")))
	}
	writeJSON(w, status, map[string]any{"tenant": pathVar(r, "tenant"), "created": created})
}

func (a *API) getPet(w http.ResponseWriter, r *http.Request) {
	p, err := a.engine.Pet(pathVar(r, "tenant"), pathVar(r, "pet"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusOf(p))
}

func (a *API) petsOf(w http.ResponseWriter, r *http.Request) {
	pets, err := a.engine.PetsOf(pathVar(r, "tenant"), pathVar(r, "account"))
	if err != nil {
		a.fail(w, err)
		return
	}
	out := make([]PetStatus, 0, len(pets))
	for _, p := range pets {
		out = append(out, statusOf(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) petLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := a.engine.Leaderboard(pathVar(r, "tenant"), limitParam(r))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (a *API) tokenLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := a.ledger.Leaderboard(pathVar(r, "tenant"), limitParam(r))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (a *API) balance(w http.ResponseWriter, r *http.Request) {
	bal, err := a.ledger.Balance(pathVar(r, "tenant"), pathVar(r, "account"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": bal})
}

type grantRequest struct {
	Amount int64 `json:"amount"`
}

func (a *API) grant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !decode(w, r, &req) {
		return
	}
	bal, err := a.ledger.AddTokens(pathVar(r, "tenant"), pathVar(r, "account"), req.Amount, ledger.SourceGrant)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance": bal})
}

func (a *API) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.ledger.Items(pathVar(r, "tenant"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) addItem(w http.ResponseWriter, r *http.Request) {
	var it item.Item
	if !decode(w, r, &it) {
		return
	}
	if err := a.ledger.AddItem(pathVar(r, "tenant"), it); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (a *API) removeItem(w http.ResponseWriter, r *http.Request) {
	if err := a.ledger.RemoveItem(pathVar(r, "tenant"), pathVar(r, "item")); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type purchaseRequest struct {
	Item string `json:"item"`
}

func (a *API) purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := a.ledger.Purchase(pathVar(r, "tenant"), pathVar(r, "account"), req.Item)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.events.Append(events.Event{
		Tenant:  pathVar(r, "tenant"),
		Type:    events.EventTypeShopPurchase,
		ActorID: pathVar(r, "account"),
		Message: receipt.Message,
	})
	writeJSON(w, http.StatusOK, receipt)
}

// action runs a player action over HTTP with the same semantics as the websocket.
func (a *API) action(w http.ResponseWriter, r *http.Request) {
	var act PlayerAction
	if !decode(w, r, &act) {
		return
	}
	reply := a.dispatcher.Dispatch(pathVar(r, "tenant"), pathVar(r, "account"), act)
	status := http.StatusOK
	switch reply.Type {
	case ReplyRejected:
		status = statusForReason(reply.Reason)
	case ReplyError:
		status = http.StatusInternalServerError
		if !a.store.Provisioned(pathVar(r, "tenant")) {
			status = http.StatusNotFound
		}
	}
	writeJSON(w, status, reply)
}

// serveWS upgrades a player connection: /ws?tenant=...&account=...
func (a *API) serveWS(w http.ResponseWriter, r *http.Request) {
	tenant, account := r.URL.Query().Get("tenant"), r.URL.Query().Get("account")
	if !a.store.Provisioned(tenant) {
		writeError(w, http.StatusNotFound, string(store.ReasonNotFound), "unknown tenant")
		return
	}
	if !store.ValidSegment(account) {
		writeError(w, http.StatusBadRequest, string(store.ReasonInvalidInput), "invalid account")
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("failed to upgrade websocket connection", zap.Error(err))
		return
	}

	client := NewClient(a.hub, a.dispatcher, conn, tenant, account, a.opts.ActionsPerMinute)
	if !a.hub.Register(client) {
		conn.Close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.WritePump()
	go client.ReadPump()
}

func (a *API) fail(w http.ResponseWriter, err error) {
	var rej *store.Rejection
	switch {
	case errors.As(err, &rej):
		writeError(w, statusForReason(rej.Reason), string(rej.Reason), rej.Message)
	case errors.Is(err, store.ErrUnknownTenant):
		writeError(w, http.StatusNotFound, string(store.ReasonNotFound), "unknown tenant")
	default:
		a.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func statusForReason(reason store.Reason) int {
	switch reason {
	case store.ReasonNotFound:
		return http.StatusNotFound
	case store.ReasonInvalidInput, store.ReasonWrongCategory:
		return http.StatusBadRequest
	case store.ReasonNotOwner:
		return http.StatusForbidden
	case ReasonRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusConflict
	}
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultLeaderboardLimit
	}
	return n
}

func decode(w http.ResponseWriter, r *http.Request, into any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, string(store.ReasonInvalidInput), "invalid request body")
		return false
	}
	return true
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
