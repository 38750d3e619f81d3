package health

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"perp_bot/internal/metrics"
	"perp_bot/internal/modules/health/service"
)

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestReadyzFollowsState(t *testing.T) {
	state := service.NewState()
	srv := httptest.NewServer(NewMux(state, metrics.New()))
	defer srv.Close()

	if code, _ := get(t, srv, "/readyz"); code != http.StatusServiceUnavailable {
		t.Fatalf("readyz before first tick = %d", code)
	}
	state.SetReady(true)
	if code, _ := get(t, srv, "/readyz"); code != http.StatusOK {
		t.Fatalf("readyz after tick = %d", code)
	}
	if code, body := get(t, srv, "/livez"); code != http.StatusOK || body != "ok" {
		t.Fatalf("livez = %d %q", code, body)
	}
}

func TestHealthzReportsPosition(t *testing.T) {
	state := service.NewState()
	state.SetPosition("short")
	state.SetHalted(true)
	state.TouchTick(time.Unix(1700000000, 0))
	srv := httptest.NewServer(NewMux(state, metrics.New()))
	defer srv.Close()

	_, body := get(t, srv, "/healthz")
	var resp struct {
		Position     string `json:"position"`
		Halted       bool   `json:"halted"`
		LastTickUnix int64  `json:"lastTickUnix"`
	}
	if err := sonic.UnmarshalString(body, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Position != "short" || !resp.Halted || resp.LastTickUnix != 1700000000 {
		t.Fatalf("healthz = %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.TicksTotal.WithLabelValues("hold").Inc()
	srv := httptest.NewServer(NewMux(service.NewState(), m))
	defer srv.Close()

	code, body := get(t, srv, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics = %d", code)
	}
	if !strings.Contains(body, `perpbot_ticks_total{action="hold"} 1`) {
		t.Fatalf("tick counter missing:\n%s", body)
	}
}
