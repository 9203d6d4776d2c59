package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookAuthMiddleware(t *testing.T) {
	secret := "s3cret"
	body := `{"type":"message.new"}`

	var seen string
	handler := WebhookAuthMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		seen = string(data)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/hooks/chat", strings.NewReader(body))
	req.Header.Set(SignatureHeader, Sign([]byte(body), secret))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	if seen != body {
		t.Fatalf("тело должно остаться доступным обработчику, получили %q", seen)
	}
}

func TestWebhookAuthMiddlewareRejects(t *testing.T) {
	handler := WebhookAuthMiddleware("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("обработчик не должен вызываться")
	}))

	cases := map[string]string{
		"без подписи":       "",
		"не hex":            "zzzz",
		"чужой секрет":      Sign([]byte(`{}`), "other"),
		"подпись не о теле": Sign([]byte(`{"a":1}`), "s3cret"),
	}
	for name, signature := range cases {
		req := httptest.NewRequest(http.MethodPost, "/hooks/chat", strings.NewReader(`{}`))
		if signature != "" {
			req.Header.Set(SignatureHeader, signature)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: ожидали 401, получили %d", name, rec.Code)
		}
	}
}
