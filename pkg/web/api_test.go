package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dbehnke/ysf-gateway/pkg/database"
	"github.com/dbehnke/ysf-gateway/pkg/gateway"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
)

type fixedStatus gateway.Status

func (f fixedStatus) Status() gateway.Status { return gateway.Status(f) }

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func testDirectory(t *testing.T) *reflectors.Directory {
	t.Helper()
	path := filepath.Join(t.TempDir(), "YSFHosts.txt")
	hosts := "00001;Alpha;First room;127.0.0.1;42001;002\n" +
		"00002;Bravo;Second room;127.0.0.1;42002;010\n" +
		"00003;Alphabet;Third room;127.0.0.1;42003;000\n"
	if err := os.WriteFile(path, []byte(hosts), 0644); err != nil {
		t.Fatalf("write hosts: %v", err)
	}
	d := reflectors.New(reflectors.Config{Path: path, Type: reflectors.TypeYSF}, testLogger())
	if err := d.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	d.Reload()
	return d
}

func get(t *testing.T, h http.HandlerFunc, target string) *http.Response {
	t.Helper()
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w.Result()
}

func TestAPI_Status(t *testing.T) {
	status := fixedStatus{Network: "YSF", DstID: 1, Name: "Alpha", State: "linked"}
	api := NewAPI(status, nil, testLogger())

	resp := get(t, api.HandleStatus, "/api/status")
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var result statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.Status != "running" {
		t.Errorf("status = %q", result.Status)
	}
	if result.Link.Network != "YSF" || result.Link.DstID != 1 || result.Link.Name != "Alpha" {
		t.Errorf("unexpected link %+v", result.Link)
	}
}

func TestAPI_StatusMethodNotAllowed(t *testing.T) {
	api := NewAPI(nil, nil, testLogger())
	w := httptest.NewRecorder()
	api.HandleStatus(w, httptest.NewRequest(http.MethodPost, "/api/status", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestAPI_ReflectorsList(t *testing.T) {
	dirs := map[reflectors.NetworkType]*reflectors.Directory{reflectors.TypeYSF: testDirectory(t)}
	api := NewAPI(nil, dirs, testLogger())

	resp := get(t, api.HandleReflectors, "/api/reflectors")
	defer func() { _ = resp.Body.Close() }()

	var list []reflectorView
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 reflectors, got %d", len(list))
	}
	if list[0].Name != "Alpha" || list[0].ID != "1" {
		t.Errorf("unexpected first entry %+v", list[0])
	}
	if list[0].Address != "127.0.0.1:42001" {
		t.Errorf("address = %q", list[0].Address)
	}
}

func TestAPI_ReflectorsSearch(t *testing.T) {
	dirs := map[reflectors.NetworkType]*reflectors.Directory{reflectors.TypeYSF: testDirectory(t)}
	api := NewAPI(nil, dirs, testLogger())

	resp := get(t, api.HandleReflectors, "/api/reflectors?type=ysf&q=alpha")
	defer func() { _ = resp.Body.Close() }()

	var list []reflectorView
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 matches, got %+v", list)
	}
	for _, r := range list {
		if r.Name != "Alpha" && r.Name != "Alphabet" {
			t.Errorf("unexpected match %q", r.Name)
		}
	}
}

func TestAPI_ReflectorsErrors(t *testing.T) {
	api := NewAPI(nil, map[reflectors.NetworkType]*reflectors.Directory{}, testLogger())

	tests := []struct {
		target string
		code   int
	}{
		{"/api/reflectors?type=dstar", http.StatusBadRequest},
		{"/api/reflectors?type=fcs", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp := get(t, api.HandleReflectors, tt.target)
		_ = resp.Body.Close()
		if resp.StatusCode != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.target, tt.code, resp.StatusCode)
		}
	}
}

type fakeActivity struct {
	limit    int
	callsign string
}

func (f *fakeActivity) GetRecent(limit int) ([]database.Transmission, error) {
	f.limit = limit
	return []database.Transmission{{Callsign: "N1XYZ", Network: "YSF", Duration: 2}}, nil
}

func (f *fakeActivity) GetByCallsign(callsign string, limit int) ([]database.Transmission, error) {
	f.callsign, f.limit = callsign, limit
	return nil, nil
}

func TestAPI_Activity(t *testing.T) {
	src := &fakeActivity{}
	api := NewAPI(nil, nil, testLogger())
	api.activity = src

	resp := get(t, api.HandleActivity, "/api/activity")
	var list []database.Transmission
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	_ = resp.Body.Close()
	if len(list) != 1 || list[0].Callsign != "N1XYZ" || src.limit != defaultActivityLimit {
		t.Errorf("unexpected list %+v limit %d", list, src.limit)
	}

	resp = get(t, api.HandleActivity, "/api/activity?callsign=g4abc&limit=9999")
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if src.callsign != "G4ABC" || src.limit != maxActivityLimit {
		t.Errorf("callsign %q limit %d", src.callsign, src.limit)
	}
	if string(body) != "[]\n" {
		t.Errorf("expected empty JSON array, got %q", body)
	}

	resp = get(t, api.HandleActivity, "/api/activity?limit=-1")
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAPI_ActivityWithoutSource(t *testing.T) {
	api := NewAPI(nil, nil, testLogger())
	resp := get(t, api.HandleActivity, "/api/activity")
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
