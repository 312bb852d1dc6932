// Package testutils помощники для тестов обработчиков.
package testutils

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ProjectRequest запрос с JSON-телом и параметрами пути, как их выставил бы роутер.
// Пустое body означает запрос без тела.
func ProjectRequest(method, target, body string, params map[string]string) *http.Request {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return WithRouteParams(req, params)
}

// WithRouteParams кладёт projectId, memberId, quotationId, token и прочие параметры в контекст chi.
func WithRouteParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
