package cloudapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClient_FetchGatewayPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/mediation/client/password", r.URL.Path)
		require.Equal(t, "AABBCCDDEEFF", r.URL.Query().Get("mac"))
		json.NewEncoder(w).Encode(map[string]string{"password": "site-pass"})
	}))
	defer srv.Close()

	session := NewSession(false, 5*time.Second, nil)
	session.Logger = nil
	c := NewClient(srv.URL, session)

	pass, err := c.FetchGatewayPassword(context.Background(), Credentials{Email: "a@b.com", Password: "p"}, "AABBCCDDEEFF")
	require.NoError(t, err)
	require.Equal(t, "site-pass", pass)
}

func TestClient_FetchGatewayPassword_EmptyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"password": ""})
	}))
	defer srv.Close()

	session := NewSession(false, 5*time.Second, nil)
	session.Logger = nil
	c := NewClient(srv.URL, session)

	_, err := c.FetchGatewayPassword(context.Background(), Credentials{}, "AABBCCDDEEFF")
	require.Error(t, err)
}

func TestClient_FetchGatewayPassword_DedupesConcurrentCalls(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]string{"password": "site-pass"})
	}))
	defer srv.Close()

	session := NewSession(false, 5*time.Second, nil)
	session.Logger = nil
	c := NewClient(srv.URL, session)

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := c.FetchGatewayPassword(context.Background(), Credentials{}, "AABBCCDDEEFF")
			require.NoError(t, err)
			done <- struct{}{}
		}()
	}
	<-done
	<-done

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_ListSites(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/mediation/client/sites", r.URL.Path)
		json.NewEncoder(w).Encode([]Site{{ID: "1", Name: "Home", GatewayMAC: "AABBCCDDEEFF"}})
	}))
	defer srv.Close()

	session := NewSession(false, 5*time.Second, nil)
	session.Logger = nil
	c := NewClient(srv.URL, session)

	sites, err := c.ListSites(context.Background(), Credentials{})
	require.NoError(t, err)
	require.Len(t, sites, 1)
	require.Equal(t, "Home", sites[0].Name)
}
