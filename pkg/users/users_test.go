package users

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/peershare/swapd/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestGroupsFromConfig(t *testing.T) {
	c := config.NewMapConfig(map[string]string{
		"SWAPD_PRIVILEGED_USERS":       "alice, bob",
		"SWAPD_SPEED_LIMIT_DEFAULT":    "50000",
		"SWAPD_SPEED_LIMIT_PRIVILEGED": "200000",
	})

	s := NewService(c)

	require.Equal(t, GroupPrivileged, s.GetGroup("alice"))
	require.Equal(t, GroupPrivileged, s.GetGroup("bob"))
	require.Equal(t, GroupDefault, s.GetGroup("carol"))

	require.Equal(t, GroupParams{SpeedLimit: 50000, Priority: 0}, s.GetGroupParams(GroupDefault))
	require.Equal(t, GroupParams{SpeedLimit: 200000, Priority: 1}, s.GetGroupParams(GroupPrivileged))
}

func TestGroupParamsDefaultToUnlimited(t *testing.T) {
	s := NewService(config.NewMapConfig(map[string]string{}))

	require.Equal(t, int64(0), s.GetGroupParams(GroupDefault).SpeedLimit)
	require.Equal(t, int64(0), s.GetGroupParams(GroupPrivileged).SpeedLimit)
}

func TestWatchWithoutDirectory(t *testing.T) {
	s := NewService(config.NewMapConfig(map[string]string{}))

	require.False(t, s.IsWatched("alice"))
	require.NoError(t, s.Watch(context.Background(), "alice"))
	require.True(t, s.IsWatched("alice"))
}

func TestWatchRefreshesGroupFromDirectory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		privileged := r.URL.Path == "/users/alice"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"privileged": privileged})
	}))
	defer srv.Close()

	s := NewService(config.NewMapConfig(map[string]string{
		"SWAPD_DIRECTORY_URL":    srv.URL,
		"SWAPD_PRIVILEGED_USERS": "bob",
	}))

	require.NoError(t, s.Watch(context.Background(), "alice"))
	require.Equal(t, GroupPrivileged, s.GetGroup("alice"))

	// The directory is authoritative: it demotes users the config promoted.
	require.Equal(t, GroupPrivileged, s.GetGroup("bob"))
	require.NoError(t, s.Watch(context.Background(), "bob"))
	require.Equal(t, GroupDefault, s.GetGroup("bob"))
}

func TestWatchKeepsConfiguredGroupOnDirectoryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewService(config.NewMapConfig(map[string]string{
		"SWAPD_DIRECTORY_URL":    srv.URL,
		"SWAPD_PRIVILEGED_USERS": "alice",
	}))

	require.NoError(t, s.Watch(context.Background(), "alice"))
	require.True(t, s.IsWatched("alice"))
	require.Equal(t, GroupPrivileged, s.GetGroup("alice"))
}
