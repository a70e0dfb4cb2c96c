package acl

import (
	"context"
	"strings"
	"sync"

	"liquidityHouse/internal/model"
)

// Wildcard grants every action.
const Wildcard = "*"

// Static is an in-memory permission table. Actions are matched exactly or by
// a trailing "/*" prefix, e.g. "/house/*".
type Static struct {
	mu     sync.RWMutex
	grants map[model.Address]map[string]struct{}
}

func NewStatic(grants map[model.Address][]string) *Static {
	s := &Static{grants: make(map[model.Address]map[string]struct{}, len(grants))}
	for principal, actions := range grants {
		s.Grant(principal, actions...)
	}
	return s
}

func (s *Static) Grant(principal model.Address, actions ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.grants[principal]
	if set == nil {
		set = make(map[string]struct{}, len(actions))
		s.grants[principal] = set
	}
	for _, a := range actions {
		set[a] = struct{}{}
	}
}

func (s *Static) Revoke(principal model.Address, action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants[principal], action)
}

func (s *Static) IsAllowed(_ context.Context, principal model.Address, action string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.grants[principal]
	if len(set) == 0 {
		return false, nil
	}
	if _, ok := set[Wildcard]; ok {
		return true, nil
	}
	if _, ok := set[action]; ok {
		return true, nil
	}
	for granted := range set {
		if prefix, ok := strings.CutSuffix(granted, "/*"); ok && strings.HasPrefix(action, prefix+"/") {
			return true, nil
		}
	}
	return false, nil
}
