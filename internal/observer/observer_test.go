package observer

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/readystackgo/rsgo/internal/manifest"
)

var fixedNow = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func clock() time.Time { return fixedNow }

func TestNewRejectsInvalidSettings(t *testing.T) {
	cases := []manifest.ObserverSettings{
		{Type: "carrier-pigeon"},
		{Type: manifest.ObserverHTTP},
		{Type: manifest.ObserverFile, File: &manifest.FileObserver{}},
		{Type: manifest.ObserverSQL, SQL: &manifest.SQLObserver{Driver: "oracle", ConnectionString: "x", Query: "select 1"}},
	}
	for _, settings := range cases {
		if _, err := New(settings); err == nil {
			t.Fatalf("expected error for %+v", settings)
		}
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	obs, err := New(manifest.ObserverSettings{
		Type: manifest.ObserverFile,
		File: &manifest.FileObserver{Path: "/nonexistent"},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if obs.Interval() != DefaultPollInterval {
		t.Fatalf("expected default interval, got %s", obs.Interval())
	}
}

func TestFileObserverExistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maintenance")
	obs, err := New(manifest.ObserverSettings{
		Type:         manifest.ObserverFile,
		PollInterval: 5 * time.Second,
		File:         &manifest.FileObserver{Path: path},
	}, WithClock(clock))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if obs.Interval() != 5*time.Second {
		t.Fatalf("unexpected interval %s", obs.Interval())
	}

	res, err := obs.Observe(context.Background())
	if err != nil || res.InMaintenance {
		t.Fatalf("expected not in maintenance, got %+v %v", res, err)
	}

	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write flag: %v", err)
	}
	res, err = obs.Observe(context.Background())
	if err != nil || !res.InMaintenance {
		t.Fatalf("expected maintenance, got %+v %v", res, err)
	}
	if !res.CheckedAt.Equal(fixedNow) {
		t.Fatalf("unexpected checked at %s", res.CheckedAt)
	}
}

func TestFileObserverContentMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mode")
	obs, err := New(manifest.ObserverSettings{
		Type:             manifest.ObserverFile,
		MaintenanceValue: "maintenance",
		File:             &manifest.FileObserver{Path: path, ContentMode: true},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	for _, tc := range []struct {
		content string
		want    bool
	}{
		{"normal\n", false},
		{"Maintenance\n", true},
	} {
		if err := os.WriteFile(path, []byte(tc.content), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		res, err := obs.Observe(context.Background())
		if err != nil {
			t.Fatalf("Observe error: %v", err)
		}
		if res.InMaintenance != tc.want {
			t.Fatalf("content %q: expected %v, got %+v", tc.content, tc.want, res)
		}
	}
}

func TestHTTPObserverJSONField(t *testing.T) {
	body := `{"status":{"maintenance":true,"since":"yesterday"}}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	obs, err := New(manifest.ObserverSettings{
		Type: manifest.ObserverHTTP,
		HTTP: &manifest.HTTPObserver{URL: server.URL, JSONField: "status.maintenance"},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer obs.Close()

	res, err := obs.Observe(context.Background())
	if err != nil {
		t.Fatalf("Observe error: %v", err)
	}
	if !res.InMaintenance || res.Value != "true" {
		t.Fatalf("expected maintenance, got %+v", res)
	}
}

func TestHTTPObserverRawBodyAndErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte("false\n"))
	}))
	defer server.Close()

	obs, err := New(manifest.ObserverSettings{
		Type: manifest.ObserverHTTP,
		HTTP: &manifest.HTTPObserver{URL: server.URL},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	res, err := obs.Observe(context.Background())
	if err != nil || res.InMaintenance || res.Value != "false" {
		t.Fatalf("expected raw false, got %+v %v", res, err)
	}

	status.Store(http.StatusNotFound)
	if _, err := obs.Observe(context.Background()); err == nil {
		t.Fatalf("expected error for 404")
	}
}

func TestJSONField(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"a", "1"},
		{"b.c", "x"},
		{"b.missing", ""},
		{"a.deeper", ""},
		{"d", `[1,2]`},
	}
	body := []byte(`{"a":1,"b":{"c":"x"},"d":[1,2]}`)
	for _, tc := range cases {
		got, err := jsonField(body, tc.path)
		if err != nil {
			t.Fatalf("%s: %v", tc.path, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.path, tc.want, got)
		}
	}
	if _, err := jsonField([]byte("nope"), "a"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSQLObserver(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "app.db")
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE settings (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}

	obs, err := New(manifest.ObserverSettings{
		Type:             manifest.ObserverSQL,
		MaintenanceValue: "on",
		SQL: &manifest.SQLObserver{
			Driver:           "sqlite3",
			ConnectionString: dsn,
			Query:            `SELECT value FROM settings WHERE key = 'maintenance'`,
		},
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer obs.Close()

	res, err := obs.Observe(context.Background())
	if err != nil || res.InMaintenance {
		t.Fatalf("expected no rows to mean no maintenance, got %+v %v", res, err)
	}

	if _, err := db.Exec(`INSERT INTO settings (key, value) VALUES ('maintenance', 'ON')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	res, err = obs.Observe(context.Background())
	if err != nil || !res.InMaintenance {
		t.Fatalf("expected maintenance, got %+v %v", res, err)
	}
}
