// Package clientstate keeps client-local scheduler state (skips and the
// loop cursor) between CLI invocations.
package clientstate

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"cadence/internal/db"
	"cadence/internal/scheduler"
)

const fileName = "client-state.yml"

type file struct {
	Version int                           `yaml:"version"`
	Users   map[string]scheduler.Snapshot `yaml:"users"`
}

// Path returns the state file location for a workspace.
func Path(workspace string) string {
	return filepath.Join(db.StateDir(workspace), fileName)
}

func read(path string) (file, error) {
	f := file{Version: 1, Users: map[string]scheduler.Snapshot{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return f, err
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("invalid client state %s: %w", path, err)
	}
	if f.Users == nil {
		f.Users = map[string]scheduler.Snapshot{}
	}
	return f, nil
}

// Load returns the saved snapshot for user. ok is false when none exists.
func Load(workspace, user string) (scheduler.Snapshot, bool, error) {
	f, err := read(Path(workspace))
	if err != nil {
		return scheduler.Snapshot{}, false, err
	}
	snap, ok := f.Users[user]
	return snap, ok, nil
}

// Save replaces user's snapshot, leaving other users untouched.
func Save(workspace, user string, snap scheduler.Snapshot) error {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return err
	}
	path := Path(workspace)
	f, err := read(path)
	if err != nil {
		return err
	}
	f.Users[user] = snap
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
