package network

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/MRamiBalles/PetGuild/internal/domain/pet"
	"github.com/MRamiBalles/PetGuild/internal/engine"
	"github.com/MRamiBalles/PetGuild/internal/ledger"
	"github.com/MRamiBalles/PetGuild/internal/platform/clock"
	"github.com/MRamiBalles/PetGuild/internal/platform/logger"
	"github.com/MRamiBalles/PetGuild/internal/store"
)

// Action types accepted from players.
const (
	ActionAdopt   = "ADOPT"
	ActionFeed    = "FEED"
	ActionPlay    = "PLAY"
	ActionBuyItem = "BUY_ITEM"
	ActionRename  = "RENAME"
	ActionStatus  = "STATUS"
	ActionBalance = "BALANCE"
	ActionChat    = "CHAT"
)

// Reply types.
const (
	ReplyResult   = "RESULT"
	ReplyRejected = "REJECTED"
	ReplyError    = "ERROR"
	ReplyEvent    = "EVENT"
)

// ReasonRateLimited rejects actions sent faster than the client's limit.
const ReasonRateLimited store.Reason = "rate-limited"

// PlayerAction is an incoming command from a player.
type PlayerAction struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	PetID     string `json:"pet_id,omitempty"`
	PetName   string `json:"pet_name,omitempty"` // resolves PetID when empty
	Species   string `json:"species,omitempty"`
	Item      string `json:"item,omitempty"`
	Name      string `json:"name,omitempty"`
	Text      string `json:"text,omitempty"` // chat line
}

// Reply answers one PlayerAction.
type Reply struct {
	Type      string          `json:"type"`
	Action    string          `json:"action"`
	RequestID string          `json:"request_id,omitempty"`
	Outcome   *engine.Outcome `json:"outcome,omitempty"`
	Pets      []PetStatus     `json:"pets,omitempty"`
	Balance   *int64          `json:"balance,omitempty"`
	Bonus     int64           `json:"bonus,omitempty"`
	Reason    store.Reason    `json:"reason,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// PetStatus is a pet with its display extras.
type PetStatus struct {
	pet.Pet
	Emoji string            `json:"emoji"`
	Bars  map[string]string `json:"bars"`
}

func statusOf(p pet.Pet) PetStatus {
	return PetStatus{
		Pet:   p,
		Emoji: p.Emoji(),
		Bars: map[string]string{
			"health":    pet.Bar(p.Health),
			"hunger":    pet.Bar(p.Hunger),
			"happiness": pet.Bar(p.Happiness),
			"energy":    pet.Bar(p.Energy),
		},
	}
}

// Dispatcher routes player actions to the engine and the ledger.
// It is shared by websocket clients and the HTTP API.
type Dispatcher struct {
	engine *engine.Engine
	ledger *ledger.Ledger
	store  *store.Store
	clock  clock.Clock
	logger *logger.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(eng *engine.Engine, led *ledger.Ledger, st *store.Store, clk clock.Clock, log *logger.Logger) *Dispatcher {
	return &Dispatcher{engine: eng, ledger: led, store: st, clock: clk, logger: log}
}

// Dispatch runs one action for account in tenant. Business rejections are
// reported in the reply; other failures become a generic error reply.
func (d *Dispatcher) Dispatch(tenant, account string, action PlayerAction) Reply {
	reply := Reply{Type: ReplyResult, Action: action.Type, RequestID: action.RequestID}

	err := d.run(tenant, account, action, &reply)
	if err == nil {
		d.audit(tenant, account, action)
		return reply
	}

	if reason, ok := store.ReasonOf(err); ok {
		var rej *store.Rejection
		errors.As(err, &rej)
		return Reply{Type: ReplyRejected, Action: action.Type, RequestID: action.RequestID, Reason: reason, Message: rej.Message}
	}
	if errors.Is(err, store.ErrUnknownTenant) {
		return Reply{Type: ReplyError, Action: action.Type, RequestID: action.RequestID, Message: "Unknown guild."}
	}
	d.logger.Error("action failed",
		zap.String("tenant", tenant),
		zap.String("account", account),
		zap.String("action", action.Type),
		zap.Error(err))
	return Reply{Type: ReplyError, Action: action.Type, RequestID: action.RequestID, Message: "Something went wrong. Please try again."}
}

func (d *Dispatcher) run(tenant, account string, action PlayerAction, reply *Reply) error {
	var (
		out engine.Outcome
		err error
	)
	switch action.Type {
	case ActionAdopt:
		species, ok := pet.ParseSpecies(action.Species)
		if !ok {
			return store.Reject(store.ReasonInvalidInput, "Unknown species %q.", action.Species)
		}
		out, err = d.engine.Adopt(tenant, account, species)
	case ActionFeed, ActionPlay, ActionBuyItem, ActionRename:
		petID, rerr := d.resolvePet(tenant, account, action)
		if rerr != nil {
			return rerr
		}
		switch action.Type {
		case ActionFeed:
			out, err = d.engine.Feed(tenant, petID, account)
		case ActionPlay:
			out, err = d.engine.Play(tenant, petID, account)
		case ActionBuyItem:
			out, err = d.engine.BuyItem(tenant, petID, account, action.Item)
		case ActionRename:
			out, err = d.engine.Rename(tenant, petID, account, action.Name)
		}
	case ActionStatus:
		pets, err := d.engine.PetsOf(tenant, account)
		if err != nil {
			return err
		}
		for _, p := range pets {
			reply.Pets = append(reply.Pets, statusOf(p))
		}
		if len(pets) == 0 {
			reply.Message = "You don't have any pets yet."
		}
		return nil
	case ActionBalance:
		bal, err := d.ledger.Balance(tenant, account)
		if err != nil {
			return err
		}
		reply.Balance = &bal
		reply.Message = fmt.Sprintf("You have %s tokens.", d.ledger.FormatTokens(bal))
		return nil
	case ActionChat:
		res, err := d.engine.RecordActivity(tenant, account)
		if err != nil {
			return err
		}
		reply.Bonus = res.Bonus
		for _, p := range res.LeveledUp {
			reply.Pets = append(reply.Pets, statusOf(p))
		}
		return nil
	default:
		return store.Reject(store.ReasonInvalidInput, "Unknown action %q.", action.Type)
	}
	if err != nil {
		return err
	}
	reply.Outcome = &out
	reply.Balance = &out.Balance
	reply.Message = out.Message
	return nil
}

func (d *Dispatcher) resolvePet(tenant, account string, action PlayerAction) (string, error) {
	if action.PetID != "" {
		return action.PetID, nil
	}
	if action.PetName == "" {
		return "", store.Reject(store.ReasonInvalidInput, "Which pet? Send pet_id or pet_name.")
	}
	p, err := d.engine.FindByName(tenant, account, action.PetName)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// audit keeps the command history bounded in the tenant document.
// Chat lines go to the message list instead.
func (d *Dispatcher) audit(tenant, account string, action PlayerAction) {
	field, text := store.FieldCommands, action.Type
	if action.Type == ActionChat {
		field, text = store.FieldMessages, action.Text
	}
	if action.Type == ActionStatus || action.Type == ActionBalance {
		return
	}
	entry := store.AuditEntry{At: d.clock.Now(), Actor: account, Text: text}
	if err := d.store.Append(tenant, field, entry); err != nil {
		d.logger.Warn("audit append failed", zap.String("tenant", tenant), zap.Error(err))
	}
}
