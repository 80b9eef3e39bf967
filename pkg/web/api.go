package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/dbehnke/ysf-gateway/pkg/database"
	"github.com/dbehnke/ysf-gateway/pkg/gateway"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
	"github.com/dbehnke/ysf-gateway/pkg/reflectors"
)

// StatusProvider returns the gateway link snapshot; *gateway.Gateway
// satisfies it
type StatusProvider interface {
	Status() gateway.Status
}

// ActivitySource reads the last heard log
type ActivitySource interface {
	GetRecent(limit int) ([]database.Transmission, error)
	GetByCallsign(callsign string, limit int) ([]database.Transmission, error)
}

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

// API handles REST API endpoints
type API struct {
	logger   *logger.Logger
	status   StatusProvider
	dirs     map[reflectors.NetworkType]*reflectors.Directory
	activity ActivitySource
}

// NewAPI creates a new API instance. Directories are read concurrently
// with the gateway loop, which only swaps their lists atomically.
func NewAPI(status StatusProvider, dirs map[reflectors.NetworkType]*reflectors.Directory, log *logger.Logger) *API {
	return &API{
		logger: log,
		status: status,
		dirs:   dirs,
	}
}

type statusResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Commit  string         `json:"commit"`
	Link    gateway.Status `json:"link"`
}

type reflectorView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Count       string `json:"count"`
	Address     string `json:"address,omitempty"`
}

func (a *API) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("Failed to encode response", logger.Error(err))
	}
}

func (a *API) writeError(w http.ResponseWriter, code int, msg string) {
	a.writeJSON(w, code, map[string]string{"error": msg})
}

// HandleStatus handles the /api/status endpoint
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	version, commit, _ := GetVersionInfo()
	resp := statusResponse{Status: "running", Version: version, Commit: commit}
	if a.status != nil {
		resp.Link = a.status.Status()
	}
	a.writeJSON(w, http.StatusOK, resp)
}

// HandleReflectors handles /api/reflectors?type=ysf&q=name. Without q the
// whole directory is listed.
func (a *API) HandleReflectors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	typ := r.URL.Query().Get("type")
	if typ == "" {
		typ = "ysf"
	}
	t, err := reflectors.ParseNetworkType(typ)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dir := a.dirs[t]
	if dir == nil {
		a.writeError(w, http.StatusNotFound, strings.ToLower(t.String())+" directory is not enabled")
		return
	}

	list := dir.Current()
	if q := r.URL.Query().Get("q"); q != "" {
		list = dir.Search(q)
	}

	out := make([]reflectorView, 0, len(list))
	for _, ref := range list {
		v := reflectorView{
			ID:          ref.ID,
			Name:        ref.TrimmedName(),
			Description: strings.TrimRight(ref.Description, " "),
			Count:       ref.Count,
		}
		if ref.Addr != nil {
			v.Address = ref.Addr.String()
		}
		out = append(out, v)
	}
	a.writeJSON(w, http.StatusOK, out)
}

// HandleActivity handles /api/activity?limit=50&callsign=N1XYZ
func (a *API) HandleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.activity == nil {
		a.writeJSON(w, http.StatusOK, []database.Transmission{})
		return
	}

	limit := defaultActivityLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			a.writeError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = min(n, maxActivityLimit)
	}

	var (
		list []database.Transmission
		err  error
	)
	if call := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("callsign"))); call != "" {
		list, err = a.activity.GetByCallsign(call, limit)
	} else {
		list, err = a.activity.GetRecent(limit)
	}
	if err != nil {
		a.logger.Error("Failed to read activity", logger.Error(err))
		a.writeError(w, http.StatusInternalServerError, "failed to read activity")
		return
	}
	if list == nil {
		list = []database.Transmission{}
	}
	a.writeJSON(w, http.StatusOK, list)
}
