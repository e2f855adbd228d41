package mcp

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/keepsake/internal/errors"
	"github.com/hpungsan/keepsake/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	svc *ops.Service
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *ops.Service) *Handlers {
	return &Handlers{svc: svc}
}

// Request types for each tool

// CreateRequest represents the arguments for capsule_create.
type CreateRequest struct {
	CallerID           string   `json:"caller_id"`
	RecipientID        string   `json:"recipient_id"`
	Title              string   `json:"title,omitempty"`
	Body               string   `json:"body"`
	Theme              *string  `json:"theme,omitempty"`
	UnlocksAt          int64    `json:"unlocks_at"`
	IsAnonymous        bool     `json:"is_anonymous,omitempty"`
	RevealDelaySeconds *int64   `json:"reveal_delay_seconds,omitempty"`
	Hints              []string `json:"hints,omitempty"`
}

// ListRequest represents the arguments for capsule_list.
type ListRequest struct {
	CallerID         string `json:"caller_id"`
	Box              string `json:"box"`
	Status           string `json:"status,omitempty"`
	Limit            int    `json:"limit,omitempty"`
	Offset           int    `json:"offset,omitempty"`
	IncludeWithdrawn bool   `json:"include_withdrawn,omitempty"`
}

// CapsuleRequest addresses one capsule on behalf of a caller.
type CapsuleRequest struct {
	CallerID string `json:"caller_id"`
	ID       string `json:"id"`
}

// UpdateRequest represents the arguments for capsule_update.
type UpdateRequest struct {
	CallerID string  `json:"caller_id"`
	ID       string  `json:"id"`
	Title    *string `json:"title,omitempty"`
	Body     *string `json:"body,omitempty"`
	Theme    *string `json:"theme,omitempty"`
}

// PurgeRequest represents the arguments for capsule_purge.
type PurgeRequest struct {
	OlderThanDays *int `json:"older_than_days,omitempty"`
}

// ShareCreateRequest represents the arguments for share_create.
type ShareCreateRequest struct {
	CallerID  string `json:"caller_id"`
	CapsuleID string `json:"capsule_id"`
	ShareKind string `json:"share_kind,omitempty"`
	ExpiresAt *int64 `json:"expires_at,omitempty"`
}

// ShareListRequest represents the arguments for share_list.
type ShareListRequest struct {
	CallerID  string `json:"caller_id"`
	CapsuleID string `json:"capsule_id"`
}

// ShareRevokeRequest represents the arguments for share_revoke.
type ShareRevokeRequest struct {
	CallerID string `json:"caller_id"`
	ShareID  string `json:"share_id"`
}

// ShareResolveRequest represents the arguments for share_resolve.
type ShareResolveRequest struct {
	Token string `json:"token"`
}

// ConnectionRequest represents the arguments for connection_add and connection_remove.
type ConnectionRequest struct {
	CallerID string `json:"caller_id"`
	OtherID  string `json:"other_id"`
}

// Handler implementations

// HandleCreate handles the capsule_create tool call.
func (h *Handlers) HandleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CreateRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Create(ctx, ops.CreateInput{
		CallerID:           input.CallerID,
		RecipientID:        input.RecipientID,
		Title:              input.Title,
		Body:               input.Body,
		Theme:              input.Theme,
		UnlocksAt:          input.UnlocksAt,
		IsAnonymous:        input.IsAnonymous,
		RevealDelaySeconds: input.RevealDelaySeconds,
		Hints:              input.Hints,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the capsule_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.List(ctx, ops.ListInput{
		CallerID:         input.CallerID,
		Box:              ops.Box(input.Box),
		Status:           input.Status,
		Limit:            input.Limit,
		Offset:           input.Offset,
		IncludeWithdrawn: input.IncludeWithdrawn,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFetch handles the capsule_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CapsuleRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Fetch(ctx, ops.FetchInput{CallerID: input.CallerID, ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleOpen handles the capsule_open tool call.
func (h *Handlers) HandleOpen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CapsuleRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Open(ctx, ops.OpenInput{CallerID: input.CallerID, ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleWithdraw handles the capsule_withdraw tool call.
func (h *Handlers) HandleWithdraw(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CapsuleRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Withdraw(ctx, ops.WithdrawInput{CallerID: input.CallerID, ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleUpdate handles the capsule_update tool call. Every argument other
// than the addressing pair is forwarded by name so lifecycle fields fail.
func (h *Handlers) HandleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decodeLoose[UpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	var fields []string
	for k := range req.GetArguments() {
		if k == "caller_id" || k == "id" {
			continue
		}
		fields = append(fields, k)
	}
	sort.Strings(fields)

	result, err := h.svc.Update(ctx, ops.UpdateInput{
		CallerID: input.CallerID,
		ID:       input.ID,
		Title:    input.Title,
		Body:     input.Body,
		Theme:    input.Theme,
		Fields:   fields,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleHint handles the capsule_hint tool call.
func (h *Handlers) HandleHint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CapsuleRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Hint(ctx, ops.HintInput{CallerID: input.CallerID, ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurge handles the capsule_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Purge(ctx, ops.PurgeInput{OlderThanDays: input.OlderThanDays})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSweep handles the capsule_sweep tool call.
func (h *Handlers) HandleSweep(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.svc.Sweep(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleShareCreate handles the share_create tool call.
func (h *Handlers) HandleShareCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ShareCreateRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}
	if input.ShareKind == "" {
		input.ShareKind = "link"
	}

	result, err := h.svc.ShareCreate(ctx, ops.ShareCreateInput{
		CallerID:  input.CallerID,
		CapsuleID: input.CapsuleID,
		ShareKind: input.ShareKind,
		ExpiresAt: input.ExpiresAt,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleShareList handles the share_list tool call.
func (h *Handlers) HandleShareList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ShareListRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.ShareList(ctx, ops.ShareListInput{CallerID: input.CallerID, CapsuleID: input.CapsuleID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleShareRevoke handles the share_revoke tool call.
func (h *Handlers) HandleShareRevoke(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ShareRevokeRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.ShareRevoke(ctx, ops.ShareRevokeInput{CallerID: input.CallerID, ShareID: input.ShareID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleShareResolve handles the share_resolve tool call.
func (h *Handlers) HandleShareResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ShareResolveRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.ShareResolve(ctx, input.Token)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleConnect handles the connection_add tool call.
func (h *Handlers) HandleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConnectionRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Connect(ctx, ops.ConnectInput{CallerID: input.CallerID, OtherID: input.OtherID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDisconnect handles the connection_remove tool call.
func (h *Handlers) HandleDisconnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConnectionRequest](req)
	if err != nil {
		return errorResult(errors.NewValidation(err.Error())), nil
	}

	result, err := h.svc.Disconnect(ctx, ops.ConnectInput{CallerID: input.CallerID, OtherID: input.OtherID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if kErr, ok := errors.As(err); ok && kErr.Code != errors.ErrInternal {
		errorObj := map[string]any{
			"code":    kErr.Code,
			"message": kErr.Message,
			"status":  kErr.Status,
		}
		if kErr.Details != nil {
			errorObj["details"] = kErr.Details
		}
		if kErr.Retryable() {
			errorObj["retryable"] = true
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
