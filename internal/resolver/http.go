package resolver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

type wireChainHealth struct {
	Chain            string `json:"chain"`
	CheckpointHeight uint64 `json:"checkpoint_height"`
	LatestHeight     uint64 `json:"latest_height"`
	Degraded         bool   `json:"degraded"`
	DegradedSince    string `json:"degraded_since,omitempty"`
}

type wireStatus struct {
	InstanceID  string            `json:"instance_id"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	ActiveSwaps int               `json:"active_swaps"`
	Chains      []wireChainHealth `json:"chains"`
}

// NewStatusRouter builds the resolver's own status surface, separate
// from Order Intake's /orders routes, so a deployment can put one
// behind an internal-only listener (spec.md §4.7).
func NewStatusRouter(svc *Service) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", svc.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", svc.metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Status(r.Context())

	chains := make([]wireChainHealth, 0, len(st.Chains))
	for _, c := range st.Chains {
		wc := wireChainHealth{
			Chain:            string(c.Chain),
			CheckpointHeight: c.CheckpointHeight,
			LatestHeight:     c.LatestHeight,
			Degraded:         c.Degraded,
		}
		if !c.DegradedSince.IsZero() {
			wc.DegradedSince = c.DegradedSince.UTC().Format("2006-01-02T15:04:05Z")
		}
		chains = append(chains, wc)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(wireStatus{
		InstanceID:    st.InstanceID,
		UptimeSeconds: st.Uptime.Seconds(),
		ActiveSwaps:   st.ActiveSwaps,
		Chains:        chains,
	})
}
