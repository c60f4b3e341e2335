package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientConfig{BaseURL: srv.URL, AccessToken: "tok", PerPage: 2})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, srv
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(ClientConfig{AccessToken: "x"}); !IsValidation(err) {
		t.Fatalf("expected validation error for missing base url, got %v", err)
	}
	if _, err := NewClient(ClientConfig{BaseURL: "http://x"}); !IsValidation(err) {
		t.Fatalf("expected validation error for missing token, got %v", err)
	}
	if _, err := NewClient(ClientConfig{BaseURL: "http://x", AccessToken: "t", PerPage: 5000}); !IsValidation(err) {
		t.Fatalf("expected validation error for out of bounds per_page, got %v", err)
	}
}

func TestListResources_FormsPaginatesAndMergesLegacy(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/v4/forms":
			if r.URL.Query().Get("after") == "" {
				_, _ = w.Write([]byte(`{"forms":[{"id":1,"name":"Newsletter"},{"id":2,"name":"Guide"}],"pagination":{"has_next_page":true,"end_cursor":"c1"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"forms":[{"id":3,"name":"Webinar"}],"pagination":{"has_next_page":false}}`))
		case "/v4/legacy_forms":
			_, _ = w.Write([]byte(`{"legacy_forms":[{"id":7,"name":"Old"}],"pagination":{"has_next_page":false}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	got, err := c.ListResources(context.Background(), ResourceForms)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 forms, got %d: %+v", len(got), got)
	}
	if got[3].ID != 7 || !got[3].Legacy {
		t.Fatalf("expected legacy form 7 last, got %+v", got[3])
	}
	if got[0].Legacy || got[0].Type != ResourceForms {
		t.Fatalf("unexpected first form %+v", got[0])
	}
}

func TestListResources_CustomFieldsUseLabel(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"custom_fields":[{"id":4,"key":"phone","label":"Phone"}]}`))
	})
	got, err := c.ListResources(context.Background(), ResourceCustomFields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Phone" || got[0].Key != "phone" {
		t.Fatalf("unexpected custom fields %+v", got)
	}
}

func TestRemoteErrorPreservesStatusAndMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"errors":["slow down"]}`))
	})
	_, err := c.ListResources(context.Background(), ResourceTags)
	re, ok := AsRemote(err)
	if !ok {
		t.Fatalf("expected remote error, got %v", err)
	}
	if !re.RateLimited() || re.Message != "slow down" {
		t.Fatalf("unexpected remote error %+v", re)
	}
}

func TestCreatePurchase(t *testing.T) {
	var body Purchase
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v4/purchases" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"purchase":{"id":42}}`))
	})

	id, err := c.CreatePurchase(context.Background(), Purchase{
		TransactionID:   "1001",
		EmailAddress:    "a@example.com",
		Currency:        "USD",
		TransactionTime: time.Now(),
		Total:           19.98,
		Status:          "paid",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "42" {
		t.Fatalf("expected purchase id 42, got %q", id)
	}
	if body.TransactionID != "1001" || body.Total != 19.98 {
		t.Fatalf("unexpected request body %+v", body)
	}
}

func TestCreatePurchase_MissingIDIsRemoteError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"purchase":{}}`))
	})

	id, err := c.CreatePurchase(context.Background(), Purchase{
		TransactionID: "1001",
		EmailAddress:  "a@example.com",
		Currency:      "USD",
		Total:         19.98,
	})
	if !IsRemote(err) {
		t.Fatalf("expected remote error for a response without id, got id=%q err=%v", id, err)
	}
	if id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
}

func TestValidationErrorsSkipNetwork(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	ctx := context.Background()

	if _, err := c.CreatePurchase(ctx, Purchase{TransactionID: "1"}); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := c.CreateSubscriber(ctx, " ", "A", "active", nil); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := c.AddSubscriberToForm(ctx, 0, 5); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := c.TagSubscribe(ctx, 0, "a@example.com", "A", nil); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("expected no network calls, got %d", n)
	}
}

func TestGetSubscriberIDByEmail_NotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("email_address") != "a@example.com" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"subscribers":[]}`))
	})
	_, err := c.GetSubscriberIDByEmail(context.Background(), "a@example.com")
	if !errors.Is(err, ErrSubscriberNotFound) {
		t.Fatalf("expected ErrSubscriberNotFound, got %v", err)
	}
}

func TestTagSubscribeUpsertsThenTags(t *testing.T) {
	var paths []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		_, _ = w.Write([]byte(`{"subscriber":{"id":11}}`))
	})
	if err := c.TagSubscribe(context.Background(), 5, "a@example.com", "Ann", Fields{"phone": "1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"POST /v4/subscribers", "POST /v4/tags/5/subscribers"}
	if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
		t.Fatalf("unexpected calls %v", paths)
	}
}
