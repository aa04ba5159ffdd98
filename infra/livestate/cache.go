// Package livestate implements the live-state store on an in-process
// cache. Paths mirror the dashboard layout: boxes/{boxId}/levels,
// boxes/{boxId}/status and dispense_commands/{id}.
package livestate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	corelive "github.com/medbox-iot/medbox/core/livestate"
	"github.com/medbox-iot/medbox/core/model"
)

const (
	boxPrefix   = "boxes/"
	inboxPrefix = "dispense_commands/"
)

// CacheStore implements core/livestate.Store using patrickmn/go-cache.
// Entries never expire; telemetry overwrites them and the inbox is
// drained by the bridge.
type CacheStore struct {
	c *gocache.Cache
}

var _ corelive.Store = (*CacheStore)(nil)

// NewCacheStore creates an empty CacheStore.
func NewCacheStore() *CacheStore {
	return &CacheStore{c: gocache.New(gocache.NoExpiration, 0)}
}

func levelsPath(boxID string) string { return boxPrefix + boxID + "/levels" }
func statusPath(boxID string) string { return boxPrefix + boxID + "/status" }

// SetLevels replaces the entire levels node for the box.
func (s *CacheStore) SetLevels(boxID string, snap model.LevelSnapshot) error {
	s.c.Set(levelsPath(boxID), snap, gocache.NoExpiration)
	return nil
}

// Levels returns the last full snapshot for the box.
func (s *CacheStore) Levels(boxID string) (model.LevelSnapshot, bool) {
	v, ok := s.c.Get(levelsPath(boxID))
	if !ok {
		return model.LevelSnapshot{}, false
	}
	return v.(model.LevelSnapshot), true
}

// SetStatus records the online state of the box.
func (s *CacheStore) SetStatus(boxID string, st model.BoxStatus) error {
	s.c.Set(statusPath(boxID), st, gocache.NoExpiration)
	return nil
}

// Status returns the last recorded online state of the box.
func (s *CacheStore) Status(boxID string) (model.BoxStatus, bool) {
	v, ok := s.c.Get(statusPath(boxID))
	if !ok {
		return model.BoxStatus{}, false
	}
	return v.(model.BoxStatus), true
}

// PushCommand appends a transient inbox entry.
func (s *CacheStore) PushCommand(cmd model.DispenseCommand) (string, error) {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	key := inboxPrefix + cmd.ID
	if err := s.c.Add(key, cmd, gocache.NoExpiration); err != nil {
		return "", fmt.Errorf("inbox entry %s exists", cmd.ID)
	}
	return cmd.ID, nil
}

// ConsumeCommands removes and returns all pending inbox entries, oldest
// first by their creation timestamp.
func (s *CacheStore) ConsumeCommands() ([]model.DispenseCommand, error) {
	var cmds []model.DispenseCommand
	for key, item := range s.c.Items() {
		if !strings.HasPrefix(key, inboxPrefix) {
			continue
		}
		cmds = append(cmds, item.Object.(model.DispenseCommand))
		s.c.Delete(key)
	}
	sort.Slice(cmds, func(i, j int) bool {
		if cmds[i].Timestamp.Equal(cmds[j].Timestamp) {
			return cmds[i].ID < cmds[j].ID
		}
		return cmds[i].Timestamp.Before(cmds[j].Timestamp)
	})
	return cmds, nil
}
