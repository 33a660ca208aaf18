package httpapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/shaadimantra/internal/auth"
	"github.com/oggyb/shaadimantra/internal/chat"
	"github.com/oggyb/shaadimantra/internal/httpapi"
	"github.com/oggyb/shaadimantra/internal/matching"
	"github.com/oggyb/shaadimantra/internal/service/servicetest"
	"github.com/oggyb/shaadimantra/internal/stats"
	"github.com/oggyb/shaadimantra/internal/testutil"
)

func do(t *testing.T, r http.Handler, env *servicetest.Env, path string, p *auth.Principal) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if p != nil {
		token, err := env.App.Verifier.Sign(*p, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := servicetest.New(t)
	testutil.SeedProfiles(t, env.App.DB, 1, 2, 3)
	r := httpapi.NewRouter(env.App)

	ctx := context.Background()
	_, err := env.App.Matching.Swipe(ctx, 1, 2, matching.ActionLike, matching.Metadata{})
	require.NoError(t, err)
	res, err := env.App.Matching.Swipe(ctx, 2, 1, matching.ActionLike, matching.Metadata{})
	require.NoError(t, err)
	_, err = env.App.Chat.Send(ctx, 1, res.ConnectionID, "hi", chat.SendOptions{})
	require.NoError(t, err)

	member := &auth.Principal{UserID: 2, Role: auth.RoleMember}
	outsider := &auth.Principal{UserID: 3, Role: auth.RoleMember}
	root := &auth.Principal{UserID: 900, Role: auth.RoleAdmin}
	history := fmt.Sprintf("/api/v1/connections/%d/messages", res.ConnectionID)

	t.Run("health", func(t *testing.T) {
		w := do(t, r, env, "/healthz", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"ok"`)
	})

	t.Run("history", func(t *testing.T) {
		w := do(t, r, env, history, member)
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Messages []chat.Message `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "hi", body.Messages[0].Text)

		assert.Equal(t, http.StatusUnauthorized, do(t, r, env, history, nil).Code)
		assert.Equal(t, http.StatusForbidden, do(t, r, env, history, outsider).Code)
		assert.Equal(t, http.StatusBadRequest, do(t, r, env, "/api/v1/connections/abc/messages", member).Code)
		assert.Equal(t, http.StatusNotFound, do(t, r, env, "/api/v1/connections/999/messages", member).Code)
	})

	t.Run("admin stats", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, do(t, r, env, "/api/v1/admin/users/1/stats", member).Code)

		w := do(t, r, env, "/api/v1/admin/users/1/stats", root)
		require.Equal(t, http.StatusOK, w.Code)
		var st stats.UserStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
		assert.Equal(t, int64(1), st.Matches)
		assert.Equal(t, int64(1), st.ActiveConnections)

		assert.Equal(t, http.StatusNotFound, do(t, r, env, "/api/v1/admin/users/404/stats", root).Code)
		assert.Equal(t, http.StatusOK, do(t, r, env, "/api/v1/admin/overview", root).Code)
	})
}
