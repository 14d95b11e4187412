package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/handler"
	"github.com/sakif/contacts-api/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

var alice = &model.Principal{
	ID:        "u1",
	Username:  "alice",
	Email:     "alice@example.com",
	Confirmed: true,
	Role:      model.RoleUser,
}

// serve runs req through router, optionally as principal p.
func serve(router http.Handler, req *http.Request, p *model.Principal) *httptest.ResponseRecorder {
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func jsonRequest(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var res handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	return res
}
