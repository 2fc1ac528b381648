package httpapply

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godon-project/breeder-worker/internal/domain"
)

func TestApply_Success(t *testing.T) {
	t.Parallel()

	var gotBody applyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(applyResponse{Success: true})
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second, nil)
	c.InitialDelay = time.Millisecond

	params := domain.ParamAssignment{"net.core.netdev_budget": domain.NewIntValue(600)}
	err := c.Apply(context.Background(), domain.Target{ID: 1, Address: "10.0.0.5"}, params)
	require.NoError(t, err)

	assert.Equal(t, 1, gotBody.TargetID)
	assert.Equal(t, "10.0.0.5", gotBody.Address)
	assert.Equal(t, "600", gotBody.Params["net.core.netdev_budget"])
}

func TestApply_ServerErrorRetriesThenFails(t *testing.T) {
	t.Parallel()

	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second, nil)
	c.InitialDelay = time.Millisecond
	c.MaxRetries = 2

	err := c.Apply(context.Background(), domain.Target{ID: 2, Address: "10.0.0.6"}, domain.ParamAssignment{})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestApply_RejectedResponseIsPermanent(t *testing.T) {
	t.Parallel()

	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(applyResponse{Success: false, Error: "unknown parameter"})
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second, nil)
	c.InitialDelay = time.Millisecond
	c.MaxRetries = 3

	err := c.Apply(context.Background(), domain.Target{ID: 3, Address: "10.0.0.7"}, domain.ParamAssignment{})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "a rejected application should not be retried")
}
