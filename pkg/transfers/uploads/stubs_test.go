package uploads

import (
	"context"
	"sync"

	"github.com/peershare/swapd/pkg/users"
)

// stubUsers implements users.UserService with fixed groups and params.
type stubUsers struct {
	mu         sync.Mutex
	watched    map[string]bool
	privileged map[string]bool
	params     map[users.Group]users.GroupParams
}

func newStubUsers() *stubUsers {
	return &stubUsers{
		watched:    make(map[string]bool),
		privileged: make(map[string]bool),
		params: map[users.Group]users.GroupParams{
			users.GroupDefault:    {SpeedLimit: 0, Priority: 0},
			users.GroupPrivileged: {SpeedLimit: 0, Priority: 1},
		},
	}
}

func (s *stubUsers) IsWatched(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watched[username]
}

func (s *stubUsers) Watch(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched[username] = true
	return nil
}

func (s *stubUsers) GetGroup(username string) users.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.privileged[username] {
		return users.GroupPrivileged
	}
	return users.GroupDefault
}

func (s *stubUsers) GetGroupParams(group users.Group) users.GroupParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params[group]
}
