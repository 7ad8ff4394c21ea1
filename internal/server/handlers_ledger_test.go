package server

import (
	"fmt"
	"net/http"
	"testing"
)

func addTestEvent(t *testing.T, srv *Server, positionID string, body map[string]interface{}) string {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, fmt.Sprintf("/api/positions/%s/events", positionID), body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("addTestEvent: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	id, _ := resp["id"].(string)
	if id == "" {
		t.Fatal("addTestEvent: expected an event id")
	}
	return id
}

func TestEventAddAndList(t *testing.T) {
	srv := newTestServer(t)
	posID := createTestPosition(t, srv, "Index Fund", nil)

	addTestEvent(t, srv, posID, map[string]interface{}{
		"type": "buy", "date": "2024-01-10", "quantity": 10, "unit_value": 100,
	})
	addTestEvent(t, srv, posID, map[string]interface{}{
		"type": "buy", "date": "2024-02-01", "quantity": 5, "unit_value": 120,
	})

	rec := doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/positions/%s/events", posID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	events := resp["events"].([]interface{})
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	first := events[0].(map[string]interface{})
	if first["date"] != "2024-01-10" {
		t.Errorf("expected timeline order, got first date %v", first["date"])
	}
}

func TestEventOversellRejected(t *testing.T) {
	srv := newTestServer(t)
	posID := createTestPosition(t, srv, "Index Fund", nil)
	addTestEvent(t, srv, posID, map[string]interface{}{
		"type": "buy", "date": "2024-01-10", "quantity": 10, "unit_value": 100,
	})

	rec := doRequest(t, srv, http.MethodPost, fmt.Sprintf("/api/positions/%s/events", posID), map[string]interface{}{
		"type": "sell", "date": "2024-02-01", "quantity": 25, "unit_value": 110,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp["code"] != "INSUFFICIENT_QUANTITY" {
		t.Errorf("expected INSUFFICIENT_QUANTITY code, got %v", resp["code"])
	}

	// The rejected sell must not appear in the ledger.
	rec = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/positions/%s/events", posID), nil)
	resp = decodeResponse(t, rec)
	if events := resp["events"].([]interface{}); len(events) != 1 {
		t.Errorf("expected 1 event after rejection, got %d", len(events))
	}
}

func TestEventEditAndDelete(t *testing.T) {
	srv := newTestServer(t)
	posID := createTestPosition(t, srv, "Index Fund", nil)
	evID := addTestEvent(t, srv, posID, map[string]interface{}{
		"type": "buy", "date": "2024-01-10", "quantity": 10, "unit_value": 100,
	})

	rec := doRequest(t, srv, http.MethodPut, fmt.Sprintf("/api/positions/%s/events/%s", posID, evID), map[string]interface{}{
		"type": "buy", "date": "2024-01-10", "quantity": 20, "unit_value": 95,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("edit: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	newID, _ := resp["id"].(string)
	if newID == "" || newID == evID {
		t.Errorf("expected a replacement event id, got %q", newID)
	}
	if resp["quantity"].(float64) != 20 {
		t.Errorf("expected quantity 20, got %v", resp["quantity"])
	}

	rec = doRequest(t, srv, http.MethodDelete, fmt.Sprintf("/api/positions/%s/events/%s", posID, newID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/positions/%s/events", posID), nil)
	resp = decodeResponse(t, rec)
	if events := resp["events"].([]interface{}); len(events) != 0 {
		t.Errorf("expected empty ledger, got %d events", len(events))
	}
}

func TestEventDeleteUnknown(t *testing.T) {
	srv := newTestServer(t)
	posID := createTestPosition(t, srv, "Index Fund", nil)

	rec := doRequest(t, srv, http.MethodDelete, fmt.Sprintf("/api/positions/%s/events/ev_missing", posID), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestLedgerImport(t *testing.T) {
	srv := newTestServer(t)
	posID := createTestPosition(t, srv, "Index Fund", nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/ledger/import", map[string]interface{}{
		"events": []map[string]interface{}{
			{"position_id": posID, "type": "buy", "date": "2024-01-10", "quantity": 10, "unit_value": 100, "source_label": "row 1"},
			{"position_id": posID, "type": "sell", "date": "2024-02-01", "quantity": 4, "unit_value": 110, "source_label": "row 2"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("import: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp["events_imported"].(float64) != 2 {
		t.Errorf("expected 2 imported, got %v", resp["events_imported"])
	}
}

func TestLedgerImportRejectsBatch(t *testing.T) {
	srv := newTestServer(t)
	posID := createTestPosition(t, srv, "Index Fund", nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/ledger/import", map[string]interface{}{
		"events": []map[string]interface{}{
			{"position_id": posID, "type": "buy", "date": "2024-01-10", "quantity": 10, "unit_value": 100, "source_label": "row 1"},
			{"position_id": posID, "type": "sell", "date": "2024-02-01", "quantity": 99, "unit_value": 110, "source_label": "row 2"},
		},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}

	// All-or-nothing: nothing from the batch may have landed.
	rec = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/positions/%s/events", posID), nil)
	resp := decodeResponse(t, rec)
	if events := resp["events"].([]interface{}); len(events) != 0 {
		t.Errorf("expected empty ledger after rejected import, got %d events", len(events))
	}
}

func TestRecalculateEndpoint(t *testing.T) {
	srv := newTestServer(t)
	posID := createTestPosition(t, srv, "Index Fund", nil)
	addTestEvent(t, srv, posID, map[string]interface{}{
		"type": "buy", "date": "2024-01-10", "quantity": 10, "unit_value": 100,
	})

	rec := doRequest(t, srv, http.MethodPost, fmt.Sprintf("/api/positions/%s/recalculate", posID), map[string]interface{}{
		"from_date": "2024-01-10",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp["events_processed"].(float64) != 1 {
		t.Errorf("expected 1 event processed, got %v", resp["events_processed"])
	}
	if resp["final_quantity"].(float64) != 10 {
		t.Errorf("expected final quantity 10, got %v", resp["final_quantity"])
	}
}

func TestRefreshPricesEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/ledger/refresh-prices", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if _, ok := resp["snapshots_written"]; !ok {
		t.Error("expected snapshots_written field")
	}
}
