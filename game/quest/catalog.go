package quest

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// entry is the file shape of one quest. Defaults are pre-filled before decode.
type entry struct {
	Name        string   `mapstructure:"name"`
	Description string   `mapstructure:"description"`
	Lore        []string `mapstructure:"lore"`
	Type        string   `mapstructure:"type"`
	Target      int      `mapstructure:"target"`
	DisplayItem string   `mapstructure:"display-item"`
	Reward      struct {
		Commands []string `mapstructure:"commands"`
		Message  string   `mapstructure:"message"`
	} `mapstructure:"reward"`
	Permission string                 `mapstructure:"permission"`
	TimeLimit  int                    `mapstructure:"time-limit"` // seconds
	Repeatable bool                   `mapstructure:"repeatable"`
	Cooldown   int                    `mapstructure:"cooldown"` // seconds
	TypeConfig map[string]interface{} `mapstructure:"type-config"`
}

// LoadFile reads a quest catalog file. Entries that fail to decode or
// validate are logged as ConfigErrors and skipped; only an unreadable file
// fails the whole load.
func LoadFile(path string, logger *zap.Logger) (map[string]*Quest, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read quest catalog %s: %w", path, err)
	}

	raw := v.GetStringMap("quests")
	out := make(map[string]*Quest, len(raw))
	for id, body := range raw {
		q, err := decodeEntry(id, body)
		if err != nil {
			logger.Warn("skipping invalid quest", zap.String("quest_id", id), zap.Error(err))
			continue
		}
		out[q.ID] = q
	}
	return out, nil
}

func decodeEntry(id string, body interface{}) (*Quest, error) {
	m, err := cast.ToStringMapE(body)
	if err != nil {
		return nil, &ConfigError{ID: id, Err: fmt.Errorf("entry is not a map")}
	}

	e := entry{Type: string(TypeCollect), Target: 1, DisplayItem: "PAPER", Repeatable: true}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &e,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, &ConfigError{ID: id, Err: err}
	}
	if err := dec.Decode(m); err != nil {
		return nil, &ConfigError{ID: id, Err: err}
	}

	typ, ok := ParseType(e.Type)
	if !ok {
		return nil, &ConfigError{ID: id, Err: fmt.Errorf("unknown type %q", e.Type)}
	}
	name := e.Name
	if name == "" {
		name = id
	}
	q := &Quest{
		ID:          id,
		Name:        name,
		Description: e.Description,
		Lore:        e.Lore,
		DisplayItem: strings.ToUpper(e.DisplayItem),
		Type:        typ,
		Target:      e.Target,
		Reward:      Reward{Commands: e.Reward.Commands, Message: e.Reward.Message},
		Permission:  e.Permission,
		TimeLimit:   time.Duration(e.TimeLimit) * time.Second,
		Repeatable:  e.Repeatable,
		Cooldown:    time.Duration(e.Cooldown) * time.Second,
		TypeConfig:  TypeConfig(e.TypeConfig),
	}
	if err := q.Validate(); err != nil {
		return nil, &ConfigError{ID: id, Err: err}
	}
	return q, nil
}

// Catalog is the set of loaded quests. Reads are lock-free; Reload swaps
// the whole set at once.
type Catalog struct {
	quests atomic.Pointer[map[string]*Quest]
	logger *zap.Logger
}

// NewCatalog creates a Catalog pre-populated with the given quests.
func NewCatalog(logger *zap.Logger, quests ...*Quest) *Catalog {
	c := &Catalog{logger: logger}
	m := make(map[string]*Quest, len(quests))
	for _, q := range quests {
		m[q.ID] = q
	}
	c.quests.Store(&m)
	return c
}

// Reload replaces the catalog with the contents of path. On a read error
// the previous catalog stays in place.
func (c *Catalog) Reload(path string) (int, error) {
	m, err := LoadFile(path, c.logger)
	if err != nil {
		return 0, err
	}
	c.Replace(m)
	c.logger.Info("quest catalog loaded", zap.String("path", path), zap.Int("quests", len(m)))
	return len(m), nil
}

// Replace swaps in a new quest set.
func (c *Catalog) Replace(m map[string]*Quest) {
	cp := make(map[string]*Quest, len(m))
	for k, v := range m {
		cp[k] = v
	}
	c.quests.Store(&cp)
}

// Get looks id up as given, then lowercased: ids read from YAML are lowercase.
func (c *Catalog) Get(id string) (*Quest, bool) {
	m := *c.quests.Load()
	if q, ok := m[id]; ok {
		return q, true
	}
	q, ok := m[strings.ToLower(id)]
	return q, ok
}

// All returns every quest sorted by id.
func (c *Catalog) All() []*Quest {
	m := *c.quests.Load()
	out := make([]*Quest, 0, len(m))
	for _, q := range m {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) Len() int { return len(*c.quests.Load()) }
