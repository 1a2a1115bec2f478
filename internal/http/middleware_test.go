package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func tag(name string, order *[]string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*order = append(*order, name)
			next.ServeHTTP(w, r)
		})
	}
}

func TestChain_AppliesLeftToRight(t *testing.T) {
	var order []string
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), tag("a", &order), tag("b", &order), tag("c", &order))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"a", "b", "c", "handler"}, order)
}

func TestWithRequestID_GeneratesWhenAbsent(t *testing.T) {
	h := WithRequestID()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Len(t, rec.Header().Get("X-Request-ID"), 32)
}

func TestWithRequestID_PropagatesInbound(t *testing.T) {
	h := WithRequestID()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "rid-cliente")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "rid-cliente", rec.Header().Get("X-Request-ID"))
}

func TestWithRecover_ConvertsPanicTo500(t *testing.T) {
	h := WithRecover()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("algo explotó")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal_error")
}

func TestStatusRecorder_ImplicitOK(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec}

	n, err := sr.Write([]byte("hola"))
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, http.StatusOK, sr.status)
	require.Equal(t, 4, sr.bytes)
}

func TestStatusRecorder_FirstHeaderWins(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec}

	sr.WriteHeader(http.StatusTeapot)
	sr.WriteHeader(http.StatusOK)
	require.Equal(t, http.StatusTeapot, sr.status)
	require.Equal(t, http.StatusTeapot, rec.Code)
}
