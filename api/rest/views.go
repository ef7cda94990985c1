package rest

import (
	"time"

	"github.com/kasuganosora/questengine/game/engine"
	"github.com/kasuganosora/questengine/game/progress"
	"github.com/kasuganosora/questengine/game/quest"
)

const barWidth = 20

// QuestView is the client shape of a catalog entry.
type QuestView struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Lore        []string     `json:"lore,omitempty"`
	DisplayItem string       `json:"display_item"`
	Type        quest.Type   `json:"type"`
	TypeName    string       `json:"type_name"`
	Objective   string       `json:"objective"`
	Target      int          `json:"target"`
	Reward      quest.Reward `json:"reward"`
	Permission  string       `json:"permission,omitempty"`
	TimeLimit   string       `json:"time_limit,omitempty"`
	Repeatable  bool         `json:"repeatable"`
	Cooldown    string       `json:"cooldown,omitempty"`
	// CooldownLeft is set only in player views.
	CooldownLeft string `json:"cooldown_left,omitempty"`
}

func questView(m *engine.Manager, q *quest.Quest) QuestView {
	v := QuestView{
		ID:          q.ID,
		Name:        q.Name,
		Description: q.Description,
		Lore:        q.Lore,
		DisplayItem: q.DisplayItem,
		Type:        q.Type,
		TypeName:    q.Type.DisplayName(),
		Objective:   m.Describe(q),
		Target:      q.Target,
		Reward:      q.Reward,
		Permission:  q.Permission,
		Repeatable:  q.Repeatable,
	}
	if q.HasTimeLimit() {
		v.TimeLimit = progress.FormatDuration(q.TimeLimit)
	}
	if q.HasCooldown() {
		v.Cooldown = progress.FormatDuration(q.Cooldown)
	}
	return v
}

// RecordView is a progress record decorated for display.
type RecordView struct {
	progress.Record
	Name       string          `json:"name"`
	Status     progress.Status `json:"status"`
	Percentage float64         `json:"percentage"`
	Bar        string          `json:"bar"`
	TimeLeft   string          `json:"time_left,omitempty"`
	Took       string          `json:"took,omitempty"`
}

func recordView(m *engine.Manager, r progress.Record, now time.Time) RecordView {
	v := RecordView{
		Record:     r,
		Name:       r.QuestID,
		Status:     r.Status(now),
		Percentage: r.Percentage(),
		Bar:        progress.Bar(r.Progress, r.Target, barWidth),
	}
	if q, ok := m.Catalog().Get(r.QuestID); ok {
		v.Name = q.Name
	}
	if left, ok := r.Remaining(now); ok && r.Active() {
		v.TimeLeft = progress.FormatDuration(left)
	}
	if r.Completed {
		v.Took = progress.FormatDuration(r.CompletionTime())
	}
	return v
}

func recordViews(m *engine.Manager, rs []progress.Record) []RecordView {
	now := m.Now()
	out := make([]RecordView, 0, len(rs))
	for _, r := range rs {
		out = append(out, recordView(m, r, now))
	}
	return out
}
