package main

import (
	"time"

	"github.com/dmntable/dmntable"
	"github.com/dmntable/dmntable/registry"
)

// API request and response models with Swagger annotations.

// CreateNamespaceRequest represents the request body for creating a namespace.
type CreateNamespaceRequest struct {
	Name   string          `json:"name" example:"Acme Corp" binding:"required"`
	Schema registry.Schema `json:"schema"`
} // @name CreateNamespaceRequest

// NamespaceResponse represents a namespace in API responses.
type NamespaceResponse struct {
	ID        string    `json:"id" example:"123e4567-e89b-12d3-a456-426614174000"`
	Name      string    `json:"name" example:"Acme Corp"`
	CreatedAt time.Time `json:"createdAt" example:"2024-01-15T10:30:00Z"`
} // @name NamespaceResponse

// NamespacesListResponse represents the response for listing namespaces.
type NamespacesListResponse struct {
	Namespaces []NamespaceResponse `json:"namespaces"`
} // @name NamespacesListResponse

// CreateSchemaRequest represents the request body for creating or updating a
// namespace's schema.
type CreateSchemaRequest struct {
	Definition registry.Schema `json:"definition" binding:"required"`
} // @name CreateSchemaRequest

// SchemaResponse represents a schema in API responses.
type SchemaResponse struct {
	Version    int             `json:"version" example:"1"`
	Definition registry.Schema `json:"definition"`
} // @name SchemaResponse

// CreateTableRequest represents the request body for creating a decision
// table.
type CreateTableRequest struct {
	Name  string                  `json:"name" example:"discount-eligibility" binding:"required"`
	Table *dmntable.DecisionTable `json:"table" binding:"required"`
} // @name CreateTableRequest

// UpdateTableRequest represents the request body for updating a decision
// table.
type UpdateTableRequest struct {
	Name   string                  `json:"name" example:"discount-eligibility"`
	Table  *dmntable.DecisionTable `json:"table"`
	Active *bool                   `json:"active,omitempty" example:"true"`
} // @name UpdateTableRequest

// TableResponse represents a decision table in the get, list and update
// responses, which encode store.Definition with its Go field names as keys.
type TableResponse struct {
	ID        string                  `json:"ID" example:"table-123e4567-e89b-12d3-a456-426614174000"`
	Namespace string                  `json:"Namespace" example:"123e4567-e89b-12d3-a456-426614174000"`
	Name      string                  `json:"Name" example:"discount-eligibility"`
	Table     *dmntable.DecisionTable `json:"Table"`
	Active    bool                    `json:"Active" example:"true"`
	CreatedAt time.Time               `json:"CreatedAt" example:"2024-01-15T10:30:00Z"`
	UpdatedAt time.Time               `json:"UpdatedAt" example:"2024-01-15T10:30:00Z"`
} // @name TableResponse

// TablesListResponse represents the response for listing decision tables.
type TablesListResponse struct {
	Tables []TableResponse `json:"tables"`
} // @name TablesListResponse

// EvaluateRequest represents the request body for evaluating a decision
// table.
type EvaluateRequest struct {
	NamespaceID string         `json:"namespaceId" example:"123e4567-e89b-12d3-a456-426614174000" binding:"required"`
	TableID     string         `json:"tableId" example:"table-123" binding:"required"`
	Variables   map[string]any `json:"variables" binding:"required"`
} // @name EvaluateRequest

// EvaluateResponse represents the response for a successful table
// evaluation.
type EvaluateResponse struct {
	Result         any    `json:"result"`
	EvaluationTime string `json:"evaluationTime" example:"2.3ms"`
} // @name EvaluateResponse

// EvaluateFailureResponse represents a structured evaluation failure, as
// opposed to a request or transport error.
type EvaluateFailureResponse struct {
	Failure        string `json:"failure" example:"UniqueViolation"`
	Message        string `json:"message"`
	EvaluationTime string `json:"evaluationTime" example:"1.1ms"`
} // @name EvaluateFailureResponse

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error" example:"failed to create namespace"`
} // @name ErrorResponse

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status           string `json:"status" example:"healthy"`
	NamespacesLoaded int    `json:"namespacesLoaded" example:"3"`
} // @name HealthResponse

// ExampleSchema documents a namespace schema for Swagger.
type ExampleSchema struct {
	Customer struct {
		Tier string `json:"tier" example:"string"`
		Age  string `json:"age" example:"int"`
	} `json:"customer"`
	Order struct {
		Total string `json:"total" example:"float64"`
	} `json:"order"`
} // @name ExampleSchema

// ExampleVariables documents the variables passed to an evaluation for
// Swagger.
type ExampleVariables struct {
	Customer struct {
		Tier string `json:"tier" example:"gold"`
		Age  int    `json:"age" example:"34"`
	} `json:"customer"`
	Order struct {
		Total float64 `json:"total" example:"249.99"`
	} `json:"order"`
} // @name ExampleVariables
