// Package auth resolves a bearer API key to the backend it belongs
// to. Built once from config; the lookup table is immutable and
// requires no synchronization after construction, matching the
// teacher's JWT verifier shape minus the token parsing — here the
// key itself is the credential, pre-indexed into a map.
package auth

import (
	"fmt"

	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/model"
)

// Service maps backend API keys to identities.
type Service struct {
	keys map[string]model.BackendIdentity
}

// New builds a Service from cfg, failing if two enabled backends
// resolve to the same API key.
func New(cfg *config.Config) (*Service, error) {
	s := &Service{keys: map[string]model.BackendIdentity{}}
	for _, b := range cfg.BackendBots {
		if !b.Enabled {
			continue
		}
		key, err := b.ResolvedAPIKey()
		if err != nil {
			return nil, err
		}
		if _, exists := s.keys[key]; exists {
			return nil, fmt.Errorf("duplicate backend API key detected; keys must be unique")
		}
		s.keys[key] = model.BackendIdentity{ID: b.ID, Name: b.Name}
	}
	return s, nil
}

// Authenticate returns the identity for apiKey, or false if unknown.
func (s *Service) Authenticate(apiKey string) (model.BackendIdentity, bool) {
	id, ok := s.keys[apiKey]
	return id, ok
}
