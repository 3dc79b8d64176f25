// Package repo implements the persistence layer. The dedup ledger and the
// quota state are small JSON documents that are read whole at startup and
// rewritten whole on every update; the attempt journal is a SQLite database
// accessed through GORM.
//
// This file contains the atomic file replacement helper shared by the JSON
// stores.
package repo

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// writeJSONAtomic marshals v and replaces path with the result. The data is
// written to a temp file in the same directory, synced and renamed over the
// target, so readers only ever observe the old or the new document.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// readJSON decodes path into v. It reports (false, nil) when the file does
// not exist.
func readJSON(path string, v any) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, err
	}
	return true, nil
}
