package server

import (
	"encoding/json"
)

// configStoreKey is the key of the config store listing the stores to restore
const configStoreKey = "dbs"

// flagConfigKeys are config store keys that are set by the serve flags instead
var flagConfigKeys = []string{"ip", "port", "rootDir"}

// bootstrap restores the stores configured for startup.
// Failures are logged, the server starts with whatever could be restored.
func (s *RPCServer) bootstrap() {
	for _, name := range s.config.RestoreStores {
		s.restore(name)
	}

	if s.config.ConfigStore == "" {
		return
	}
	if !s.restore(s.config.ConfigStore) {
		Logger.Warningf("Unable to read config store %q, stores have to be created or restored by the clients", s.config.ConfigStore)
		return
	}

	for _, key := range flagConfigKeys {
		if _, err := s.registry.Get(s.config.ConfigStore, key); err == nil {
			Logger.Warningf("Config store %q: key %q is ignored, set it with the serve flags", s.config.ConfigStore, key)
		}
	}

	raw, err := s.registry.Get(s.config.ConfigStore, configStoreKey)
	if err != nil {
		Logger.Warningf("Config store %q has no usable %q key: %v", s.config.ConfigStore, configStoreKey, err)
		return
	}

	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		Logger.Warningf("Config store %q: %q is not a list of store names: %v", s.config.ConfigStore, configStoreKey, err)
		return
	}
	for _, name := range names {
		s.restore(name)
	}
	Logger.Infof("Config read complete, %d stores listed in %q", len(names), s.config.ConfigStore)
}

// restore restores one store and logs the outcome
func (s *RPCServer) restore(name string) bool {
	if err := s.registry.Restore(name); err != nil {
		Logger.Warningf("Failed to restore store %q: %v", name, err)
		return false
	}
	return true
}
