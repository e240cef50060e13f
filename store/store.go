package store

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gr-butler/irlearner/protocol"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
)

var ErrCorrupt = errors.New("learned codes file is corrupt")

// LearnedCommand is one accepted capture. The name is the map key in the
// persisted file so it is not repeated in the record body.
type LearnedCommand struct {
	Name      string          `json:"-"`
	Pulses    protocol.Pulses `json:"pulses"`
	Protocol  protocol.Tag    `json:"protocol"`
	Code      string          `json:"code,omitempty"`
	LearnedAt time.Time       `json:"learned_at"`
}

// legacyLayouts are ISO 8601 forms without a zone offset, as written by
// earlier learners. They are read as local time.
var legacyLayouts = []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05"}

func parseLearnedAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range legacyLayouts {
		// fractional seconds are accepted even though the layout has none
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognised timestamp %q", s)
}

func (c *LearnedCommand) UnmarshalJSON(data []byte) error {
	type record LearnedCommand
	aux := struct {
		*record
		LearnedAt string `json:"learned_at"`
	}{record: (*record)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	at, err := parseLearnedAt(aux.LearnedAt)
	if err != nil {
		return err
	}
	c.LearnedAt = at
	return nil
}

func (c LearnedCommand) clone() LearnedCommand {
	c.Pulses = c.Pulses.Clone()
	return c
}

type CodeStore struct {
	lock     sync.Mutex
	commands map[string]LearnedCommand
}

func New() *CodeStore {
	return &CodeStore{commands: make(map[string]LearnedCommand)}
}

// Put stores cmd under cmd.Name, replacing any earlier entry of that name.
func (s *CodeStore) Put(cmd LearnedCommand) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.commands[cmd.Name] = cmd.clone()
}

func (s *CodeStore) Get(name string) (LearnedCommand, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	c, ok := s.commands[name]
	if !ok {
		return LearnedCommand{}, false
	}
	return c.clone(), true
}

func (s *CodeStore) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.commands)
}

// Names returns the command names in sorted order.
func (s *CodeStore) Names() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	names := make([]string, 0, len(s.commands))
	for n := range s.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns every command sorted by name.
func (s *CodeStore) All() []LearnedCommand {
	names := s.Names()
	all := make([]LearnedCommand, 0, len(names))
	for _, n := range names {
		if c, ok := s.Get(n); ok {
			all = append(all, c)
		}
	}
	return all
}

// Save writes the full store to path, replacing what was there.
func (s *CodeStore) Save(path string) error {
	s.lock.Lock()
	bytes, err := json.MarshalIndent(s.commands, "", "  ")
	s.lock.Unlock()
	if err != nil {
		return errors.Wrap(err, "encode learned codes")
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, append(bytes, '\n'), 0644); err != nil {
		return errors.Wrapf(err, "write %v", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "replace %v", path)
	}
	logger.Infof("Saved [%v] learned codes to [%v]", s.Len(), path)
	return nil
}

// Load reads path into a new store. The returned store is always usable: a
// missing file gives an empty store and no error, an unreadable or corrupt
// file gives an empty store and an error the caller should report.
func Load(path string) (*CodeStore, error) {
	s := New()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Infof("No previous codes found at [%v]", path)
			return s, nil
		}
		return s, errors.Wrapf(err, "read %v", path)
	}
	commands := make(map[string]LearnedCommand)
	if err := json.Unmarshal(data, &commands); err != nil {
		return s, errors.Wrapf(ErrCorrupt, "%v: %v", path, err)
	}
	for name, c := range commands {
		if name == "" {
			return New(), errors.Wrapf(ErrCorrupt, "%v: entry with empty name", path)
		}
		for _, d := range c.Pulses {
			if d < 0 {
				return New(), errors.Wrapf(ErrCorrupt, "%v: %v has negative duration %v", path, name, d)
			}
		}
		tag, ok := protocol.ParseTag(string(c.Protocol))
		if !ok {
			tag = protocol.Classify(c.Pulses)
			logger.Warnf("Unrecognised protocol [%v] for [%v], reclassified as [%v]", c.Protocol, name, tag)
		}
		c.Protocol = tag
		c.Name = name
		s.commands[name] = c
	}
	logger.Infof("Loaded [%v] learned codes from [%v]", len(s.commands), path)
	return s, nil
}

// SetAside renames a file that failed to load to <path>.corrupt so a later
// save cannot overwrite the only copy of it.
func SetAside(path string) (string, error) {
	backup := path + ".corrupt"
	if err := os.Rename(path, backup); err != nil {
		return "", errors.Wrapf(err, "set aside %v", path)
	}
	logger.Warnf("Moved unloadable codes file [%v] to [%v]", path, backup)
	return backup, nil
}
