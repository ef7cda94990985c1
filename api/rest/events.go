package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/game/quest"
)

// Event type names accepted on the wire.
const (
	EventItemCollected    = "item_collected"
	EventEntityKilled     = "entity_killed"
	EventBlockBroken      = "block_broken"
	EventFishCaught       = "fish_caught"
	EventPlayerMoved      = "player_moved"
	EventEntityInteracted = "entity_interacted"
	EventTradeCompleted   = "trade_completed"
)

var eventFactories = map[string]func() quest.Event{
	EventItemCollected:    func() quest.Event { return &quest.ItemCollected{} },
	EventEntityKilled:     func() quest.Event { return &quest.EntityKilled{} },
	EventBlockBroken:      func() quest.Event { return &quest.BlockBroken{} },
	EventFishCaught:       func() quest.Event { return &quest.FishCaught{} },
	EventPlayerMoved:      func() quest.Event { return &quest.PlayerMoved{} },
	EventEntityInteracted: func() quest.Event { return &quest.EntityInteracted{} },
	EventTradeCompleted:   func() quest.Event { return &quest.TradeCompleted{} },
}

var errMissingActor = errors.New("event has no player")

// DecodeEvent turns {"type": "...", ...fields} into a quest event value.
func DecodeEvent(raw json.RawMessage) (quest.Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	factory, ok := eventFactories[strings.ToLower(head.Type)]
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", head.Type)
	}
	ptr := factory()
	if err := json.Unmarshal(raw, ptr); err != nil {
		return nil, fmt.Errorf("%s: %w", head.Type, err)
	}
	ev := deref(ptr)
	if ev.Actor() == uuid.Nil {
		return nil, fmt.Errorf("%s: %w", head.Type, errMissingActor)
	}
	return ev, nil
}

// deref hands matchers the value types they switch on.
func deref(ev quest.Event) quest.Event {
	switch e := ev.(type) {
	case *quest.ItemCollected:
		if e.Source == "" {
			e.Source = quest.SourcePickup
		}
		return *e
	case *quest.EntityKilled:
		return *e
	case *quest.BlockBroken:
		return *e
	case *quest.FishCaught:
		return *e
	case *quest.PlayerMoved:
		return *e
	case *quest.EntityInteracted:
		return *e
	case *quest.TradeCompleted:
		return *e
	}
	return ev
}
