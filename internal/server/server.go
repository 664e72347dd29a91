package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"assetline/internal/authz"
	"assetline/internal/domain"
	"assetline/internal/engine"
	"assetline/internal/lifecycle"
	"assetline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"ceiling_exceeded"`
	Message string         `json:"message" example:"approving 8 exceeds ceiling 6"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Assetline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema-level failures are the caller's fault, not the domain's.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Assetline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerRequests(group, cfg.Engine)
	registerRequestActions(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerCapabilities(group, cfg.Engine)
	registerAssets(group, cfg.Engine)
	registerActivities(group, cfg.Engine)
	registerMe(group, cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps domain errors onto the HTTP envelope: capability denials
// to 403, inadmissible transitions to 409, business-rule violations to 422.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe authz.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"capability": string(fe.Capability)})
	}
	var ce authz.ConfigError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusInternalServerError, "config_error", err.Error(), nil)
	}
	var te lifecycle.TransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"from":   string(te.From),
			"action": string(te.Action),
		})
	}
	var ve lifecycle.ValidationError
	if errors.As(err, &ve) {
		details := map[string]any{}
		if ve.ItemID != "" {
			details["item_id"] = ve.ItemID
		}
		return newAPIError(http.StatusUnprocessableEntity, ve.Code, err.Error(), details)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Status string `json:"status" example:"ok"`
		}
	}, error) {
		resp := &struct {
			Body struct {
				Status string `json:"status" example:"ok"`
			}
		}{}
		resp.Body.Status = "ok"
		return resp, nil
	})
}

func registerRequests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-request",
		Method:        http.MethodPost,
		Path:          "/requests",
		Summary:       "Submit a request",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body SubmitRequestBody `json:"body"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.SubmitRequest(ctx, userID, toItems(input.Body.Items))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: RequestResponse{Request: req}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-request",
		Method:      http.MethodGet,
		Path:        "/requests/{request_id}",
		Summary:     "Get a request",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		req, err := e.Repo.GetRequest(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: RequestResponse{Request: req}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requests",
		Method:      http.MethodGet,
		Path:        "/requests",
		Summary:     "List requests",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"pending,logistic_approved,awaiting_final_approval,approved,purchasing,in_delivery,arrived,awaiting_handover,completed,rejected,cancelled"`
	}) (*struct {
		Body RequestListResponse `json:"body"`
	}, error) {
		reqs, err := e.Repo.ListRequests(ctx, domain.Status(input.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestListResponse `json:"body"`
		}{Body: RequestListResponse{Requests: reqs}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-handovers",
		Method:      http.MethodGet,
		Path:        "/requests/{request_id}/handovers",
		Summary:     "List handover documents for a request",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
	}) (*struct {
		Body HandoverListResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetRequest(ctx, input.RequestID); err != nil {
			return nil, handleError(err)
		}
		docs, err := e.Repo.ListHandovers(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HandoverListResponse `json:"body"`
		}{Body: HandoverListResponse{Handovers: docs}}, nil
	})
}

func actionOperation(opID, pathSuffix, summary string) huma.Operation {
	return huma.Operation{
		OperationID: opID,
		Method:      http.MethodPost,
		Path:        "/requests/{request_id}/" + pathSuffix,
		Summary:     summary,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}
}

// requestAction registers one POST action endpoint carrying a body.
func requestAction[B any](api huma.API, opID, pathSuffix, summary string,
	fn func(ctx context.Context, requestID, userID string, body B) (domain.Request, error)) {
	huma.Register(api, actionOperation(opID, pathSuffix, summary), func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
		Body      B      `json:"body"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, err := fn(ctx, input.RequestID, userID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: RequestResponse{Request: req}}, nil
	})
}

// bareAction registers one POST action endpoint without a body.
func bareAction(api huma.API, opID, pathSuffix, summary string,
	fn func(ctx context.Context, requestID, userID string) (domain.Request, error)) {
	huma.Register(api, actionOperation(opID, pathSuffix, summary), func(ctx context.Context, input *struct {
		RequestID string `path:"request_id"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, err := fn(ctx, input.RequestID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: RequestResponse{Request: req}}, nil
	})
}

func registerRequestActions(api huma.API, e engine.Engine) {
	requestAction(api, "approve-logistic", "approve-logistic", "First-stage approval",
		func(ctx context.Context, id, user string, body ReviewBody) (domain.Request, error) {
			return e.ApproveLogistic(ctx, id, user, toReview(body))
		})
	requestAction(api, "revise-items", "revise", "First-stage revision without advancing",
		func(ctx context.Context, id, user string, body ReviewBody) (domain.Request, error) {
			return e.ReviseItems(ctx, id, user, toReview(body))
		})
	bareAction(api, "cancel-request", "cancel", "Cancel a request (requester only)", e.Cancel)
	bareAction(api, "prioritize-request", "prioritize", "Flag the request as prioritized", e.Prioritize)
	requestAction(api, "set-purchase-detail", "purchase-details", "Record purchase details for an item",
		func(ctx context.Context, id, user string, body PurchaseDetailBody) (domain.Request, error) {
			return e.SetPurchaseDetail(ctx, id, user, body.ItemID, domain.PurchaseDetail{
				Price:         body.Price,
				Vendor:        body.Vendor,
				PONumber:      body.PONumber,
				InvoiceNumber: body.InvoiceNumber,
				PurchaseDate:  body.PurchaseDate,
			})
		})
	bareAction(api, "submit-final", "submit-final", "Forward for final approval", e.SubmitFinal)
	requestAction(api, "final-approve", "final-approve", "Final approval",
		func(ctx context.Context, id, user string, body ReviewBody) (domain.Request, error) {
			if len(body.Lines) == 0 {
				return e.FinalApprove(ctx, id, user, nil)
			}
			review := toReview(body)
			return e.FinalApprove(ctx, id, user, &review)
		})
	requestAction(api, "final-revise", "final-revise", "Final-stage revision",
		func(ctx context.Context, id, user string, body ReviewBody) (domain.Request, error) {
			return e.FinalRevise(ctx, id, user, toReview(body))
		})
	bareAction(api, "start-procurement", "start-procurement", "Begin purchasing", e.StartProcurement)
	bareAction(api, "mark-in-delivery", "mark-in-delivery", "Mark goods in delivery", e.MarkInDelivery)
	bareAction(api, "mark-arrived", "mark-arrived", "Mark goods arrived", e.MarkArrived)
	requestAction(api, "register-assets", "register-assets", "Register arrived units into inventory",
		func(ctx context.Context, id, user string, body RegisterAssetsBody) (domain.Request, error) {
			return e.RegisterAssets(ctx, id, user, engine.RegisterInput{
				ItemID:  body.ItemID,
				Count:   body.Count,
				Serials: body.Serials,
			})
		})
	bareAction(api, "complete-staging", "complete-staging", "Close the staging phase", e.CompleteStaging)
	requestAction(api, "create-handover", "handovers", "Create a handover document",
		func(ctx context.Context, id, user string, body HandoverBody) (domain.Request, error) {
			return e.CreateHandover(ctx, id, user, engine.HandoverOptions{
				Recipient: body.Recipient,
				Lines:     toAssignmentLines(body.Lines),
			})
		})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create a user with role defaults",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateUserBody `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.CreateUser(ctx, userID, input.Body.ID, input.Body.Name, domain.Role(input.Body.Role))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: UserResponse{User: u, Effective: e.Graph.EffectivePermissions(u).Slice()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      []int{http.StatusForbidden, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserListResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		actor, err := e.Repo.GetUser(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.Graph.Require(actor, domain.CapUsersView); err != nil {
			return nil, handleError(err)
		}
		users, err := e.Repo.ListUsers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserListResponse `json:"body"`
		}{Body: UserListResponse{Users: users}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}",
		Summary:     "Get a user with effective permissions",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		actor, err := e.Repo.GetUser(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		if userID != input.UserID {
			if err := e.Graph.Require(actor, domain.CapUsersView); err != nil {
				return nil, handleError(err)
			}
		}
		u, err := e.Repo.GetUser(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: UserResponse{User: u, Effective: e.Graph.EffectivePermissions(u).Slice()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-permissions",
		Method:      http.MethodPut,
		Path:        "/users/{user_id}/permissions",
		Summary:     "Replace a user's stored permissions",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		UserID string                `path:"user_id"`
		Body   UpdatePermissionsBody `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.UpdatePermissions(ctx, userID, input.UserID, toCaps(input.Body.Permissions))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: UserResponse{User: u, Effective: e.Graph.EffectivePermissions(u).Slice()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-role",
		Method:      http.MethodPut,
		Path:        "/users/{user_id}/role",
		Summary:     "Change a user's role",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		UserID string      `path:"user_id"`
		Body   SetRoleBody `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.SetRole(ctx, userID, input.UserID, domain.Role(input.Body.Role))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: UserResponse{User: u, Effective: e.Graph.EffectivePermissions(u).Slice()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Issue an API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyBody `json:"body"`
	}) (*struct {
		Body APIKeyCreatedResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		plaintext, key, err := e.IssueAPIKey(ctx, userID, input.Body.UserID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyCreatedResponse `json:"body"`
		}{Body: APIKeyCreatedResponse{
			Key:       plaintext,
			ID:        key.ID,
			UserID:    key.UserID,
			Name:      key.Name,
			CreatedAt: key.CreatedAt,
		}}, nil
	})
}

func registerCapabilities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "capability-graph",
		Method:      http.MethodGet,
		Path:        "/capabilities",
		Summary:     "Capability catalog with dependency closures",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CapabilityGraphResponse `json:"body"`
	}, error) {
		var out CapabilityGraphResponse
		for _, c := range e.Graph.Capabilities() {
			on, err := e.Graph.ToggleOn(c)
			if err != nil {
				return nil, handleError(err)
			}
			off, err := e.Graph.ToggleOff(c)
			if err != nil {
				return nil, handleError(err)
			}
			ancestors, err := e.Graph.ResolveAncestors(c)
			if err != nil {
				return nil, handleError(err)
			}
			out.Capabilities = append(out.Capabilities, CapabilityNode{
				Capability: c,
				DependsOn:  ancestors.Slice(),
				ToggleOn:   on.Slice(),
				ToggleOff:  off.Slice(),
			})
		}
		return &struct {
			Body CapabilityGraphResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerAssets(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-asset",
		Method:        http.MethodPost,
		Path:          "/assets",
		Summary:       "Register inventory stock",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateAssetBody `json:"body"`
	}) (*struct {
		Body AssetResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AddAsset(ctx, userID, engine.AssetInput{
			Name:     input.Body.Name,
			Brand:    input.Body.Brand,
			Tracking: domain.TrackingMode(input.Body.Tracking),
			Serial:   input.Body.Serial,
			Quantity: input.Body.Quantity,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetResponse `json:"body"`
		}{Body: AssetResponse{Asset: a}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assets",
		Method:      http.MethodGet,
		Path:        "/assets",
		Summary:     "List assets",
		Errors:      []int{http.StatusForbidden, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"available,assigned,retired"`
	}) (*struct {
		Body AssetListResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		actor, err := e.Repo.GetUser(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.Graph.Require(actor, domain.CapAssetsView); err != nil {
			return nil, handleError(err)
		}
		assets, err := e.Repo.ListAssets(ctx, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssetListResponse `json:"body"`
		}{Body: AssetListResponse{Assets: assets}}, nil
	})
}

func registerActivities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-activities",
		Method:      http.MethodGet,
		Path:        "/activities",
		Summary:     "Latest activity entries",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		RequestID string `query:"request_id"`
		Type      string `query:"type"`
		Limit     int    `query:"limit" minimum:"0" maximum:"500"`
	}) (*struct {
		Body ActivityListResponse `json:"body"`
	}, error) {
		acts, err := e.Repo.LatestActivities(ctx, input.Limit, input.RequestID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActivityListResponse `json:"body"`
		}{Body: ActivityListResponse{Activities: acts}}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user with effective permissions",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.Repo.GetUser(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: UserResponse{User: u, Effective: e.Graph.EffectivePermissions(u).Slice()}}, nil
	})
}
