package httpapi

import (
	"net/http"
	"time"

	"github.com/garl-network/trust-ledger/internal/sysinfo"
)

// healthzResponse is a status literal plus a timestamp, no downstream
// dependency checks. Neither /healthz nor /system/version checks the
// storage backend, so a postgres outage does not show up on either.
type healthzResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthzResponse{Status: "ok", Time: time.Now().UTC()})
}

// systemVersionResponse reports process uptime and host resource usage, so
// an operator can confirm the process is not starved without an external
// APM agent.
type systemVersionResponse struct {
	Service    string          `json:"service"`
	UptimeSecs float64         `json:"uptime_seconds"`
	CPUPercent float64         `json:"cpu_percent"`
	MemPercent float64         `json:"mem_percent"`
	MemUsed    uint64          `json:"mem_used_bytes"`
	MemTotal   uint64          `json:"mem_total_bytes"`
	Time       time.Time       `json:"time"`
}

func (h *Handler) handleSystemVersion(w http.ResponseWriter, _ *http.Request) {
	snap, err := sysinfo.Read(0)
	if err != nil {
		h.log.WithError(err).Warn("read sysinfo snapshot failed")
	}
	writeJSON(w, http.StatusOK, systemVersionResponse{
		Service:    "trust-ledger",
		UptimeSecs: time.Since(h.startedAt).Seconds(),
		CPUPercent: snap.CPUPercent,
		MemPercent: snap.MemPercent,
		MemUsed:    snap.MemUsedBytes,
		MemTotal:   snap.MemTotalBytes,
		Time:       time.Now().UTC(),
	})
}

// agentCardDiscovery is the well-known document a third party fetches to
// verify certificates without contacting the ledger.
type agentCardDiscovery struct {
	Context   string `json:"@context"`
	Type      string `json:"@type"`
	PublicKey string `json:"publicKey"`
	Alg       string `json:"alg"`
}

func (h *Handler) handleAgentCardDiscovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, agentCardDiscovery{
		Context:   "https://garl.network/contexts/v1",
		Type:      "TrustLedgerDiscovery",
		PublicKey: h.keys.PublicKeyHex(),
		Alg:       "ECDSA-secp256k1",
	})
}
