package app

import (
	"tasktable/internal/config"
	"tasktable/internal/storage"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil {
		return storage.Config{}, false, nil
	}
	st, err := cfg.StorageSettings()
	if err != nil {
		return storage.Config{}, false, err
	}
	if st.Driver == config.StorageNone {
		return storage.Config{}, false, nil
	}
	return storage.Config{Driver: st.Driver, Path: st.Path, BusyTimeout: st.BusyTimeout}, true, nil
}
