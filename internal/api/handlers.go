// Package api provides HTTP handlers for PrintFlow endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/BTreeMap/PrintFlow/internal/flow"
	"github.com/BTreeMap/PrintFlow/internal/models"
	"github.com/BTreeMap/PrintFlow/internal/util"
	"github.com/BTreeMap/PrintFlow/internal/validate"
)

// flowRequest is the body for the flow driving endpoints.
type flowRequest struct {
	UserID string          `json:"user_id"`
	Kind   models.FlowKind `json:"kind"`
	Input  string          `json:"input"`
}

func (s *Server) flowStartHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.flowStartHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req flowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.flowStartHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: user_id"))
		return
	}

	res, err := s.engine.Start(req.UserID, req.Kind)
	if err != nil {
		if errors.Is(err, models.ErrUnknownFlowKind) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown flow kind"))
			return
		}
		slog.Error("Server.flowStartHandler: start failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to start flow"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

func (s *Server) flowStepHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.flowStepHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req flowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.flowStepHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: user_id"))
		return
	}

	res, err := s.engine.SubmitStep(r.Context(), req.UserID, req.Kind, req.Input)
	if err != nil {
		if errors.Is(err, models.ErrUnknownFlowKind) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown flow kind"))
			return
		}
		if errors.Is(err, models.ErrSaveFailed) {
			// The session is retained; another step request retries the save.
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save record; submit again to retry"))
			return
		}
		slog.Error("Server.flowStepHandler: step failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process input"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

func (s *Server) flowCancelHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.flowCancelHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req flowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.flowCancelHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: user_id"))
		return
	}
	if !models.IsValidFlowKind(req.Kind) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown flow kind"))
		return
	}
	res := s.engine.Cancel(req.UserID, req.Kind)
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

// rulesHandler exposes every flow's field rules so web clients can
// validate input before submitting (GET /api/rules).
func (s *Server) rulesHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.rulesHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rules := make(map[models.FlowKind]validate.RuleSet)
	for kind, def := range flow.Definitions() {
		rules[kind] = def.Rules()
	}
	writeJSONResponse(w, http.StatusOK, models.Success(rules))
}

// servicesHandler exposes the service catalog (GET /api/services).
func (s *Server) servicesHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.servicesHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(catalogServices()))
}

func catalogServices() []string {
	def, ok := flow.Get(models.FlowKindOrder)
	if !ok {
		return nil
	}
	for _, step := range def.Steps {
		if len(step.Rule.Services) > 0 {
			return step.Rule.Services
		}
	}
	return nil
}

// orderRequest is the one-shot order submission body. Fields mirror the
// order flow's steps; the whole form is driven through the engine so
// web and chat submissions share commit semantics.
type orderRequest struct {
	CustomerName string          `json:"customer_name"`
	CompanyName  string          `json:"company_name"`
	ProductType  string          `json:"product_type"`
	Quantity     json.RawMessage `json:"quantity"`
	DeliveryDate string          `json:"delivery_date"`
	ContactInfo  string          `json:"contact_info"`
}

// quantityInput flattens the quantity field to the raw text the flow
// validator expects. Accepts both JSON numbers and strings so the
// validator owns the rejection message either way.
func (r orderRequest) quantityInput() string {
	s := strings.TrimSpace(string(r.Quantity))
	s = strings.Trim(s, `"`)
	if s == "null" {
		return ""
	}
	return s
}

type scheduleRequest struct {
	CustomerName      string `json:"customer_name"`
	ContactInfo       string `json:"contact_info"`
	PreferredDatetime string `json:"preferred_datetime"`
}

type messageRequest struct {
	CustomerName string `json:"customer_name"`
	ContactInfo  string `json:"contact_info"`
	MessageText  string `json:"message_text"`
}

// runFlowOnce drives a full flow under a throwaway session so one-shot
// submissions reuse the engine's validation and idempotent commit. Any
// rejection aborts the session and is surfaced to the client.
func (s *Server) runFlowOnce(r *http.Request, kind models.FlowKind, inputs []string) (models.AdvanceResult, int) {
	userID := util.GenerateSessionID()
	if _, err := s.engine.Start(userID, kind); err != nil {
		slog.Error("Server.runFlowOnce: start failed", "kind", kind, "error", err)
		return models.AdvanceResult{}, http.StatusInternalServerError
	}

	var res models.AdvanceResult
	var err error
	for _, input := range inputs {
		res, err = s.engine.SubmitStep(r.Context(), userID, kind, input)
		if err != nil {
			s.engine.Cancel(userID, kind)
			slog.Error("Server.runFlowOnce: step failed", "kind", kind, "error", err)
			return models.AdvanceResult{}, http.StatusInternalServerError
		}
		if res.Status == models.AdvanceRejected {
			s.engine.Cancel(userID, kind)
			return res, http.StatusBadRequest
		}
	}
	if res.Status != models.AdvanceCompleted {
		// Input count mismatch against the flow definition.
		s.engine.Cancel(userID, kind)
		slog.Error("Server.runFlowOnce: flow did not complete", "kind", kind, "status", res.Status)
		return models.AdvanceResult{}, http.StatusInternalServerError
	}
	return res, http.StatusOK
}

func (s *Server) ordersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.ordersHandler invoked", "method", r.Method, "path", r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		status, ok := statusFilter(w, r, models.FlowKindOrder)
		if !ok {
			return
		}
		orders, err := s.st.ListOrders(status)
		if err != nil {
			slog.Error("Server.ordersHandler: list failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list orders"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(orders))
	case http.MethodPost:
		var req orderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.ordersHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		res, code := s.runFlowOnce(r, models.FlowKindOrder, []string{
			req.CustomerName,
			req.CompanyName,
			req.ProductType,
			req.quantityInput(),
			req.DeliveryDate,
			req.ContactInfo,
		})
		if code != http.StatusOK {
			s.writeFlowFailure(w, code, res)
			return
		}
		writeJSONResponse(w, http.StatusCreated, models.RecordedWithMessage(res.Message, res))
	default:
		w.Header().Set("Allow", strings.Join([]string{http.MethodGet, http.MethodPost}, ", "))
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) schedulesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.schedulesHandler invoked", "method", r.Method, "path", r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		status, ok := statusFilter(w, r, models.FlowKindSchedule)
		if !ok {
			return
		}
		schedules, err := s.st.ListSchedules(status)
		if err != nil {
			slog.Error("Server.schedulesHandler: list failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list schedules"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(schedules))
	case http.MethodPost:
		var req scheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.schedulesHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		res, code := s.runFlowOnce(r, models.FlowKindSchedule, []string{
			req.CustomerName,
			req.ContactInfo,
			req.PreferredDatetime,
		})
		if code != http.StatusOK {
			s.writeFlowFailure(w, code, res)
			return
		}
		writeJSONResponse(w, http.StatusCreated, models.RecordedWithMessage(res.Message, res))
	default:
		w.Header().Set("Allow", strings.Join([]string{http.MethodGet, http.MethodPost}, ", "))
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.messagesHandler invoked", "method", r.Method, "path", r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		status, ok := statusFilter(w, r, models.FlowKindMessage)
		if !ok {
			return
		}
		messages, err := s.st.ListMessages(status)
		if err != nil {
			slog.Error("Server.messagesHandler: list failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list messages"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(messages))
	case http.MethodPost:
		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.messagesHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		res, code := s.runFlowOnce(r, models.FlowKindMessage, []string{
			req.CustomerName,
			req.ContactInfo,
			req.MessageText,
		})
		if code != http.StatusOK {
			s.writeFlowFailure(w, code, res)
			return
		}
		writeJSONResponse(w, http.StatusCreated, models.RecordedWithMessage(res.Message, res))
	default:
		w.Header().Set("Allow", strings.Join([]string{http.MethodGet, http.MethodPost}, ", "))
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) writeFlowFailure(w http.ResponseWriter, code int, res models.AdvanceResult) {
	if code == http.StatusBadRequest && res.Message != "" {
		writeJSONResponse(w, code, models.Error(res.Message))
		return
	}
	writeJSONResponse(w, code, models.Error("Failed to process submission"))
}

// statusFilter parses and validates the optional ?status= query
// parameter. The empty string means no filter.
func statusFilter(w http.ResponseWriter, r *http.Request, kind models.FlowKind) (models.RecordStatus, bool) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return "", true
	}
	status := models.RecordStatus(raw)
	if !models.IsValidStatusForKind(kind, status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid status filter"))
		return "", false
	}
	return status, true
}

// pathID extracts the numeric record id from paths like
// /api/orders/42 and /api/orders/42/status. The second return names the
// trailing action segment, if any.
func pathID(path, prefix string) (int64, string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	return id, action, true
}

type statusUpdateRequest struct {
	Status models.RecordStatus `json:"status"`
}

func (s *Server) orderByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.orderByIDHandler invoked", "method", r.Method, "path", r.URL.Path)
	id, action, ok := pathID(r.URL.Path, "/api/orders/")
	if !ok {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid order ID"))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		order, err := s.st.GetOrder(id)
		if errors.Is(err, models.ErrRecordNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Order not found"))
			return
		}
		if err != nil {
			slog.Error("Server.orderByIDHandler: get failed", "id", id, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get order"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(order))
	case action == "status" && r.Method == http.MethodPut:
		s.updateStatus(w, r, models.FlowKindOrder, id, s.st.UpdateOrderStatus)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) scheduleByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.scheduleByIDHandler invoked", "method", r.Method, "path", r.URL.Path)
	id, action, ok := pathID(r.URL.Path, "/api/schedules/")
	if !ok {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid schedule ID"))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		schedule, err := s.st.GetSchedule(id)
		if errors.Is(err, models.ErrRecordNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Schedule not found"))
			return
		}
		if err != nil {
			slog.Error("Server.scheduleByIDHandler: get failed", "id", id, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get schedule"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(schedule))
	case action == "status" && r.Method == http.MethodPut:
		s.updateStatus(w, r, models.FlowKindSchedule, id, s.st.UpdateScheduleStatus)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) messageByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.messageByIDHandler invoked", "method", r.Method, "path", r.URL.Path)
	id, action, ok := pathID(r.URL.Path, "/api/messages/")
	if !ok {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid message ID"))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		message, err := s.st.GetMessage(id)
		if errors.Is(err, models.ErrRecordNotFound) {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Message not found"))
			return
		}
		if err != nil {
			slog.Error("Server.messageByIDHandler: get failed", "id", id, "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get message"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(message))
	case action == "status" && r.Method == http.MethodPut:
		s.updateStatus(w, r, models.FlowKindMessage, id, s.st.UpdateMessageStatus)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request, kind models.FlowKind, id int64, update func(int64, models.RecordStatus) error) {
	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.updateStatus: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if !models.IsValidStatusForKind(kind, req.Status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid status"))
		return
	}
	err := update(id, req.Status)
	if errors.Is(err, models.ErrRecordNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Record not found"))
		return
	}
	if err != nil {
		slog.Error("Server.updateStatus: update failed", "kind", kind, "id", id, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update status"))
		return
	}
	slog.Info("Server.updateStatus: status updated", "kind", kind, "id", id, "status", req.Status)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Status updated", nil))
}

// deadNotificationsHandler exposes the notification dead-letter log
// (GET /api/notifications/dead).
func (s *Server) deadNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.deadNotificationsHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	dead, err := s.outbox.ListDeadNotifications()
	if err != nil {
		slog.Error("Server.deadNotificationsHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list dead notifications"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(dead))
}

// statusHandler reports basic runtime health (GET /api/status).
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"active_sessions": s.engine.ActiveSessions(),
	}))
}
