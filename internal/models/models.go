// Package models defines the core data structures for PrintFlow.
//
// It includes the record types produced by completed flows (orders,
// schedules, direct messages), flow advancement results, and the API
// response envelope shared across modules.
package models

import (
	"errors"
	"time"
)

// FlowKind identifies one of the multi-step intake flows.
type FlowKind string

const (
	// FlowKindOrder collects a printing order.
	FlowKindOrder FlowKind = "order"
	// FlowKindSchedule collects a consultation schedule request.
	FlowKindSchedule FlowKind = "schedule"
	// FlowKindMessage collects a direct message to the business owner.
	FlowKindMessage FlowKind = "message"
)

// IsValidFlowKind checks if the given flow kind is supported.
func IsValidFlowKind(k FlowKind) bool {
	switch k {
	case FlowKindOrder, FlowKindSchedule, FlowKindMessage:
		return true
	default:
		return false
	}
}

// RecordStatus represents the processing status of a persisted record.
type RecordStatus string

const (
	// StatusPending is the initial status of every new record.
	StatusPending RecordStatus = "Pending"
	// StatusProcessing indicates an order is being worked on.
	StatusProcessing RecordStatus = "Processing"
	// StatusCompleted indicates an order has been fulfilled.
	StatusCompleted RecordStatus = "Completed"
	// StatusCancelled indicates an order or schedule was cancelled.
	StatusCancelled RecordStatus = "Cancelled"
	// StatusConfirmed indicates a consultation schedule was confirmed.
	StatusConfirmed RecordStatus = "Confirmed"
	// StatusResponded indicates a direct message has been answered.
	StatusResponded RecordStatus = "Responded"
)

// IsValidStatusForKind checks whether a status transition target is
// allowed for records of the given flow kind.
func IsValidStatusForKind(kind FlowKind, status RecordStatus) bool {
	switch kind {
	case FlowKindOrder:
		switch status {
		case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled:
			return true
		}
	case FlowKindSchedule:
		switch status {
		case StatusPending, StatusConfirmed, StatusCancelled:
			return true
		}
	case FlowKindMessage:
		switch status {
		case StatusPending, StatusResponded:
			return true
		}
	}
	return false
}

// Error variables for better error handling and testability
var (
	ErrUnknownFlowKind = errors.New("unknown flow kind")
	ErrRecordNotFound  = errors.New("record not found")
	ErrInvalidStatus   = errors.New("invalid status for record kind")
	ErrSessionExpired  = errors.New("session expired")
	ErrSaveFailed      = errors.New("record save failed")
)

// Record is implemented by all persisted flow outputs.
type Record interface {
	// RecordKind returns the flow kind that produced the record.
	RecordKind() FlowKind
	// RecordID returns the store-assigned identifier (0 before save).
	RecordID() int64
}

// Order is the persisted result of a completed order flow.
type Order struct {
	ID           int64        `json:"id"`
	CustomerName string       `json:"customer_name"`
	CompanyName  string       `json:"company_name"`
	ProductType  string       `json:"product_type"`
	Quantity     int          `json:"quantity"`
	DeliveryDate string       `json:"delivery_date"` // ISO date, YYYY-MM-DD
	ContactInfo  string       `json:"contact_info"`
	Status       RecordStatus `json:"order_status"`
	CreatedAt    time.Time    `json:"created_at"`
}

// RecordKind implements Record.
func (o *Order) RecordKind() FlowKind { return FlowKindOrder }

// RecordID implements Record.
func (o *Order) RecordID() int64 { return o.ID }

// Schedule is the persisted result of a completed consultation flow.
type Schedule struct {
	ID                int64        `json:"id"`
	CustomerName      string       `json:"customer_name"`
	ContactInfo       string       `json:"contact_info"`
	PreferredDatetime string       `json:"preferred_datetime"`
	Status            RecordStatus `json:"status"`
	CreatedAt         time.Time    `json:"created_at"`
}

// RecordKind implements Record.
func (s *Schedule) RecordKind() FlowKind { return FlowKindSchedule }

// RecordID implements Record.
func (s *Schedule) RecordID() int64 { return s.ID }

// Message is the persisted result of a completed direct message flow.
type Message struct {
	ID           int64        `json:"id"`
	CustomerName string       `json:"customer_name"`
	ContactInfo  string       `json:"contact_info"`
	MessageText  string       `json:"message_text"`
	Status       RecordStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

// RecordKind implements Record.
func (m *Message) RecordKind() FlowKind { return FlowKindMessage }

// RecordID implements Record.
func (m *Message) RecordID() int64 { return m.ID }

// AdvanceStatus classifies the outcome of submitting one flow input.
type AdvanceStatus string

const (
	// AdvanceRejected means the input failed validation; the step does not advance.
	AdvanceRejected AdvanceStatus = "rejected"
	// AdvanceNeedMore means the input was accepted and more steps remain.
	AdvanceNeedMore AdvanceStatus = "need_more"
	// AdvanceCompleted means the flow finished and a record was persisted.
	AdvanceCompleted AdvanceStatus = "completed"
	// AdvanceCancelled means the session was discarded by an explicit cancel.
	AdvanceCancelled AdvanceStatus = "cancelled"
	// AdvanceTimedOut means the session expired; the caller restarts from idle.
	AdvanceTimedOut AdvanceStatus = "timed_out"
)

// AdvanceResult is returned by the flow engine for every submitted input.
type AdvanceResult struct {
	Status   AdvanceStatus `json:"status"`
	Message  string        `json:"message,omitempty"`   // rejection or informational text
	Prompt   string        `json:"prompt,omitempty"`    // next step prompt when more input is needed
	RecordID int64         `json:"record_id,omitempty"` // assigned id when Status is completed
	Kind     FlowKind      `json:"kind,omitempty"`
}

// Response represents an incoming chat message from a customer.
type Response struct {
	From string `json:"from"` // sender identity in E.164 format
	Body string `json:"body"` // message text
	Time int64  `json:"time"` // Unix timestamp of receipt
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusRecorded indicates data was successfully recorded via API.
	APIStatusRecorded APIStatus = "recorded"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Convenience functions for common response patterns

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// Recorded creates a recorded API response with optional result data.
func Recorded(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRecorded).
		WithResult(result).
		Build()
}

// RecordedWithMessage creates a recorded API response with a message and result data.
func RecordedWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRecorded).
		WithMessage(message).
		WithResult(result).
		Build()
}
