// Package users tracks remote peers: their watch status and the effective
// group that drives queue priority and bandwidth limits.
package users

import (
	"context"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/go-resty/resty/v2"
	"github.com/peershare/swapd/pkg/config"
)

type Group string

const (
	GroupPrivileged Group = "privileged"
	GroupDefault    Group = "default"
)

// GroupParams are the scheduling parameters attached to an effective group.
// SpeedLimit is bytes per second, 0 meaning unlimited. Higher Priority
// groups are granted upload slots first.
type GroupParams struct {
	SpeedLimit int64
	Priority   int
}

type UserService interface {
	IsWatched(username string) bool
	Watch(ctx context.Context, username string) error
	GetGroup(username string) Group
	GetGroupParams(group Group) GroupParams
}

// Service derives effective groups from configuration, optionally refreshed
// from a remote peer directory when SWAPD_DIRECTORY_URL is set.
type Service struct {
	mu         sync.Mutex
	watched    map[string]struct{}
	privileged map[string]struct{}
	params     map[Group]GroupParams

	directoryURL string
	client       *resty.Client
}

func NewService(c config.Configer) *Service {
	s := &Service{
		watched:    make(map[string]struct{}),
		privileged: make(map[string]struct{}),
		params: map[Group]GroupParams{
			GroupDefault: {
				SpeedLimit: c.GetInt64KeyWithDefault("SWAPD_SPEED_LIMIT_DEFAULT", 0),
				Priority:   0,
			},
			GroupPrivileged: {
				SpeedLimit: c.GetInt64KeyWithDefault("SWAPD_SPEED_LIMIT_PRIVILEGED", 0),
				Priority:   1,
			},
		},
		directoryURL: c.GetKey("SWAPD_DIRECTORY_URL"),
	}

	for _, username := range strings.Split(c.GetKey("SWAPD_PRIVILEGED_USERS"), ",") {
		username = strings.TrimSpace(username)
		if username != "" {
			s.privileged[username] = struct{}{}
		}
	}

	if s.directoryURL != "" {
		s.client = resty.New().SetBaseURL(s.directoryURL)
	}

	return s
}

func (s *Service) IsWatched(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.watched[username]
	return ok
}

// Watch adds the user to the watch list and, when a directory is
// configured, refreshes their privilege from it. Directory failures are
// logged and the configured privilege kept; watching must not block an
// upload.
func (s *Service) Watch(ctx context.Context, username string) error {
	s.mu.Lock()
	s.watched[username] = struct{}{}
	s.mu.Unlock()

	if s.client == nil {
		return nil
	}

	var info struct {
		Privileged bool `json:"privileged"`
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&info).
		SetPathParam("username", username).
		Get("/users/{username}")

	if err != nil || resp.IsError() {
		log.WithField("username", username).Warnf("Peer directory lookup failed, keeping configured group")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if info.Privileged {
		s.privileged[username] = struct{}{}
	} else {
		delete(s.privileged, username)
	}

	return nil
}

func (s *Service) GetGroup(username string) Group {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.privileged[username]; ok {
		return GroupPrivileged
	}

	return GroupDefault
}

func (s *Service) GetGroupParams(group Group) GroupParams {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.params[group]
}
