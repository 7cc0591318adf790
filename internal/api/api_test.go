package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/PrintFlow/internal/flow"
	"github.com/BTreeMap/PrintFlow/internal/models"
	"github.com/BTreeMap/PrintFlow/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	engine := flow.NewEngine(st, nil)
	return NewServer(engine, st, st), st
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestFlowEndpoints(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/flow/start", map[string]string{"user_id": "u1", "kind": "order"})
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp.Status != "ok" {
		t.Fatalf("start response = %+v", resp)
	}

	inputs := []string{"Abel", "skip", "Banner", "5", "2025-03-10", "+251911000000"}
	var last models.APIResponse
	for _, input := range inputs {
		rec = doJSON(t, h, http.MethodPost, "/api/flow/step", map[string]string{"user_id": "u1", "kind": "order", "input": input})
		if rec.Code != http.StatusOK {
			t.Fatalf("step %q status = %d: %s", input, rec.Code, rec.Body.String())
		}
		last = decodeResponse(t, rec)
	}

	result, _ := last.Result.(map[string]interface{})
	if result["status"] != "completed" {
		t.Fatalf("final step result = %+v", last)
	}

	orders, _ := st.ListOrders("")
	if len(orders) != 1 || orders[0].CustomerName != "Abel" {
		t.Fatalf("orders = %+v", orders)
	}
	if orders[0].ProductType != "Banners/Posters" {
		t.Errorf("product type = %q", orders[0].ProductType)
	}
}

func TestFlowStepRejection(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Routes()

	doJSON(t, h, http.MethodPost, "/api/flow/start", map[string]string{"user_id": "u1", "kind": "order"})
	for _, input := range []string{"Abel", "skip", "Banner"} {
		doJSON(t, h, http.MethodPost, "/api/flow/step", map[string]string{"user_id": "u1", "kind": "order", "input": input})
	}

	rec := doJSON(t, h, http.MethodPost, "/api/flow/step", map[string]string{"user_id": "u1", "kind": "order", "input": "abc"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rejected step status = %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	result, _ := resp.Result.(map[string]interface{})
	if result["status"] != "rejected" {
		t.Fatalf("result = %+v", resp)
	}
	if result["message"] != "quantity must be a number" {
		t.Errorf("rejection message = %v", result["message"])
	}
}

func TestFlowUnknownKind(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/flow/start", map[string]string{"user_id": "u1", "kind": "bogus"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown kind status = %d", rec.Code)
	}
}

func TestFlowCancel(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Routes()

	doJSON(t, h, http.MethodPost, "/api/flow/start", map[string]string{"user_id": "u1", "kind": "message"})
	doJSON(t, h, http.MethodPost, "/api/flow/step", map[string]string{"user_id": "u1", "kind": "message", "input": "Noah"})

	rec := doJSON(t, h, http.MethodPost, "/api/flow/cancel", map[string]string{"user_id": "u1", "kind": "message"})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	msgs, _ := st.ListMessages("")
	if len(msgs) != 0 {
		t.Error("cancelled flow must not persist anything")
	}
}

func TestOneShotOrder(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/orders", map[string]interface{}{
		"customer_name": "Abel",
		"company_name":  "",
		"product_type":  "Banner",
		"quantity":      5,
		"delivery_date": "2025-03-10",
		"contact_info":  "+251911000000",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("one-shot order status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if resp.Status != "recorded" {
		t.Errorf("response status = %q", resp.Status)
	}

	orders, _ := st.ListOrders("")
	if len(orders) != 1 {
		t.Fatalf("orders = %+v", orders)
	}
	o := orders[0]
	if o.CustomerName != "Abel" || o.CompanyName != "" || o.Quantity != 5 ||
		o.DeliveryDate != "2025-03-10" || o.ContactInfo != "+251911000000" {
		t.Errorf("order = %+v", o)
	}
	if o.Status != models.StatusPending {
		t.Errorf("status = %q, want Pending", o.Status)
	}
}

func TestOneShotOrderRejection(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/orders", map[string]interface{}{
		"customer_name": "Abel",
		"company_name":  "",
		"product_type":  "Banner",
		"quantity":      "abc",
		"delivery_date": "2025-03-10",
		"contact_info":  "+251911000000",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid quantity status = %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if !strings.Contains(resp.Message, "quantity must be a number") {
		t.Errorf("error message = %q", resp.Message)
	}
	if orders, _ := st.ListOrders(""); len(orders) != 0 {
		t.Error("rejected submission must not persist anything")
	}
}

func TestOneShotScheduleAndMessage(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/schedules", map[string]string{
		"customer_name":      "Sara",
		"contact_info":       "sara@example.com",
		"preferred_datetime": "25/12/2025 14:00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("schedule status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/api/messages", map[string]string{
		"customer_name": "Noah",
		"contact_info":  "+14165550100",
		"message_text":  "Do you print on fabric?",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("message status = %d: %s", rec.Code, rec.Body.String())
	}

	if schedules, _ := st.ListSchedules(""); len(schedules) != 1 {
		t.Errorf("schedules = %+v", schedules)
	}
	if msgs, _ := st.ListMessages(""); len(msgs) != 1 {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestListAndStatusFilter(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Routes()

	id, _ := st.SaveOrder(&models.Order{CustomerName: "Abel", ProductType: "Banners/Posters", Quantity: 5, DeliveryDate: "2025-03-10", ContactInfo: "+251911000000", Status: models.StatusPending}, "t1")
	st.SaveOrder(&models.Order{CustomerName: "Sara", ProductType: "Business Cards", Quantity: 100, DeliveryDate: "2025-04-01", ContactInfo: "sara@example.com", Status: models.StatusPending}, "t2")
	st.UpdateOrderStatus(id, models.StatusCompleted)

	rec := doJSON(t, h, http.MethodGet, "/api/orders?status=Completed", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	list, _ := resp.Result.([]interface{})
	if len(list) != 1 {
		t.Errorf("filtered list = %v", resp.Result)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/orders?status=Nonsense", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid filter status = %d", rec.Code)
	}
}

func TestGetAndUpdateByID(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Routes()

	id, _ := st.SaveOrder(&models.Order{CustomerName: "Abel", ProductType: "Banners/Posters", Quantity: 5, DeliveryDate: "2025-03-10", ContactInfo: "+251911000000", Status: models.StatusPending}, "t1")

	rec := doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/orders/%d", id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/orders/%d/status", id), map[string]string{"status": "Processing"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}
	got, _ := st.GetOrder(id)
	if got.Status != models.StatusProcessing {
		t.Errorf("status = %q", got.Status)
	}

	// Invalid status value for the kind.
	rec = doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/orders/%d/status", id), map[string]string{"status": "Responded"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid status update = %d", rec.Code)
	}

	// Unknown record.
	rec = doJSON(t, h, http.MethodGet, "/api/orders/9999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing order status = %d", rec.Code)
	}
}

func TestRulesAndServicesEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodGet, "/api/rules", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rules status = %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	rules, _ := resp.Result.(map[string]interface{})
	for _, kind := range []string{"order", "schedule", "message"} {
		if _, ok := rules[kind]; !ok {
			t.Errorf("rules missing kind %q", kind)
		}
	}

	rec = doJSON(t, h, http.MethodGet, "/api/services", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("services status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Business Cards") {
		t.Errorf("services body = %s", rec.Body.String())
	}
}

func TestDeadNotificationsEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Routes()

	id, _ := st.EnqueueNotification("order", 1, "+15550001111", "New order #1", "order:1")
	st.ClaimDueNotifications(time.Now(), 10)
	st.FailNotification(id, "boom", time.Now(), 1)

	rec := doJSON(t, h, http.MethodGet, "/api/notifications/dead", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dead list status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "boom") {
		t.Errorf("dead list body = %s", rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodDelete, "/api/orders", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /api/orders status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/api/rules", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/rules status = %d", rec.Code)
	}
}
