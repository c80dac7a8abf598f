package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/notebookci/nbcheck/internal/config"
	"github.com/notebookci/nbcheck/models"
)

func TestNewDisabledWithoutURL(t *testing.T) {
	if c := New(config.RemoteConfig{}); c != nil {
		t.Fatal("expected nil client when remote.url is empty")
	}
	if c := New(config.RemoteConfig{URL: "http://ci-host:8787/"}); c == nil {
		t.Fatal("expected client when remote.url is set")
	} else if c.BaseURL() != "http://ci-host:8787" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", c.BaseURL())
	}
}

func TestPushRun(t *testing.T) {
	var gotAuth string
	var gotReport models.RunReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/runs/import" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReport); err != nil {
			t.Errorf("decoding pushed report: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]int64{"id": 42})
	}))
	defer srv.Close()

	c := NewWithTarget(srv.URL, "secret-token")
	id, err := c.PushRun(context.Background(), &models.RunReport{
		Run: models.Run{UniqueKey: "acme/nb:main::1", Repo: "acme/nb", Status: "completed"},
	})
	if err != nil {
		t.Fatalf("PushRun: %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReport.Run.Repo != "acme/nb" {
		t.Errorf("pushed repo = %q", gotReport.Run.Repo)
	}
}

func TestPushRunServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "run already imported"})
	}))
	defer srv.Close()

	c := NewWithTarget(srv.URL, "")
	if _, err := c.PushRun(context.Background(), &models.RunReport{}); err == nil {
		t.Fatal("expected error on 409 response")
	} else if got := err.Error(); got != "server error (409): run already imported" {
		t.Errorf("error = %q", got)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := NewWithTarget(srv.URL, "").Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}
