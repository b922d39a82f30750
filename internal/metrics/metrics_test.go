package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	r := NewRegistry()
	r.InFlight.Set(3)
	r.ResultCount.Add(42)
	r.RowsReturned.Add(7)
	r.NRowsProcessed.Add(5)
	r.Eval2Duration.Observe(0.002)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "skyhook_in_flight 3") {
		t.Errorf("expected in_flight gauge in output, got:\n%s", body)
	}
	if !strings.Contains(body, "skyhook_result_count_total 42") {
		t.Errorf("expected result count counter in output, got:\n%s", body)
	}
	if !strings.Contains(body, "skyhook_rows_returned_total 7") {
		t.Errorf("expected rows returned counter in output, got:\n%s", body)
	}
	if !strings.Contains(body, "skyhook_nrows_processed_total 5") {
		t.Errorf("expected nrows processed counter in output, got:\n%s", body)
	}
	if !strings.Contains(body, "skyhook_eval2_duration_seconds") {
		t.Errorf("expected eval2 duration histogram in output, got:\n%s", body)
	}
}
