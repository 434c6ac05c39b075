package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"cadence/internal/config"
	"cadence/internal/domain"
	"cadence/internal/engine"
	"cadence/internal/progress"
	"cadence/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"invalid priority: must be between 1 and 10"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"priority\"}"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Cadence API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Cadence API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMe(group)
	registerDefinitions(group, cfg.Engine)
	registerEntries(group, cfg.Engine)
	registerUsers(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ve domain.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), map[string]any{"field": ve.Field, "reason": ve.Reason})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
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

// ownDefinition loads a definition and hides it from anyone but its owner.
func ownDefinition(ctx context.Context, e engine.Engine, id int64) (domain.TaskDefinition, error) {
	userID, authErr := userIDFromContext(ctx)
	if authErr != nil {
		return domain.TaskDefinition{}, authErr
	}
	d, err := e.GetDefinition(ctx, id)
	if err != nil {
		return domain.TaskDefinition{}, err
	}
	if d.UserID != userID {
		return domain.TaskDefinition{}, fmt.Errorf("definition %d: %w", id, repo.ErrNotFound)
	}
	return d, nil
}

func requireSelf(ctx context.Context, userID string) error {
	caller, authErr := userIDFromContext(ctx)
	if authErr != nil {
		return authErr
	}
	if caller != userID {
		return newAPIError(http.StatusForbidden, "forbidden", "cannot access another user's data", map[string]any{"user_id": userID})
	}
	return nil
}

// location resolves the tz query parameter, falling back to the configured
// time zone.
func location(e engine.Engine, tz string) (*time.Location, error) {
	if tz == "" {
		if e.Config == nil {
			tz = config.DefaultTimezone
		} else {
			tz = e.Config.Timezone
		}
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid tz", map[string]any{"tz": tz})
	}
	return loc, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	public := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Cadence API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok || p.UserID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{UserID: p.UserID, Source: p.Source}}, nil
	})
}

func registerDefinitions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-definition",
		Method:        http.MethodPost,
		Path:          "/definitions",
		Summary:       "Create task definition",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateDefinitionRequest `json:"body"`
	}) (*struct {
		Body DefinitionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b := input.Body
		opts := engine.DefinitionCreateOptions{
			UserID:        userID,
			Name:          b.Name,
			Schedules:     scheduleEntries(b.Schedules),
			TrackBy:       b.TrackBy,
			Categories:    b.Categories,
			DefaultAmount: b.DefaultAmount,
			Active:        b.IsActive,
		}
		if b.Priority != nil {
			opts.Priority = *b.Priority
		}
		opts.Goals = domain.Goals{
			Daily:   intOrZero(b.DailyGoal),
			Weekly:  intOrZero(b.WeeklyGoal),
			Monthly: intOrZero(b.MonthlyGoal),
			Yearly:  intOrZero(b.YearlyGoal),
		}
		d, err := e.CreateDefinition(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DefinitionResponse `json:"body"`
		}{Body: definitionResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-definition",
		Method:      http.MethodGet,
		Path:        "/definitions/{id}",
		Summary:     "Get task definition",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body DefinitionResponse `json:"body"`
	}, error) {
		d, err := ownDefinition(ctx, e, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DefinitionResponse `json:"body"`
		}{Body: definitionResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-definition",
		Method:      http.MethodPatch,
		Path:        "/definitions/{id}",
		Summary:     "Update task definition",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64                   `path:"id"`
		Body UpdateDefinitionRequest `json:"body"`
	}) (*struct {
		Body DefinitionResponse `json:"body"`
	}, error) {
		if _, err := ownDefinition(ctx, e, input.ID); err != nil {
			return nil, handleError(err)
		}
		b := input.Body
		opts := engine.DefinitionUpdateOptions{
			ID:            input.ID,
			Name:          b.Name,
			Priority:      b.Priority,
			TrackBy:       b.TrackBy,
			Categories:    b.Categories,
			DefaultAmount: b.DefaultAmount,
			DailyGoal:     b.DailyGoal,
			WeeklyGoal:    b.WeeklyGoal,
			MonthlyGoal:   b.MonthlyGoal,
			YearlyGoal:    b.YearlyGoal,
			Active:        b.IsActive,
		}
		if b.Schedules != nil {
			s := scheduleEntries(*b.Schedules)
			opts.Schedules = &s
		}
		if isNullRaw(rawBodyMap(ctx)["default_amount"]) {
			opts.ClearDefaultAmount = true
		}
		d, err := e.UpdateDefinition(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DefinitionResponse `json:"body"`
		}{Body: definitionResponse(d)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-definition",
		Method:        http.MethodDelete,
		Path:          "/definitions/{id}",
		Summary:       "Delete task definition and its log entries",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		if _, err := ownDefinition(ctx, e, input.ID); err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteDefinition(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "definition-progress",
		Method:      http.MethodGet,
		Path:        "/definitions/{id}/progress",
		Summary:     "Goal progress and streak",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64  `path:"id"`
		TZ string `query:"tz"`
	}) (*struct {
		Body progress.Report `json:"body"`
	}, error) {
		if _, err := ownDefinition(ctx, e, input.ID); err != nil {
			return nil, handleError(err)
		}
		loc, err := location(e, input.TZ)
		if err != nil {
			return nil, handleError(err)
		}
		report, err := e.Progress(ctx, input.ID, loc)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body progress.Report `json:"body"`
		}{Body: report}, nil
	})
}

func registerEntries(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-entries",
		Method:      http.MethodGet,
		Path:        "/definitions/{id}/entries",
		Summary:     "List log entries, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body []LogEntryResponse `json:"body"`
	}, error) {
		if _, err := ownDefinition(ctx, e, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListLogEntries(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []LogEntryResponse `json:"body"`
		}{Body: mapLogEntries(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-entry",
		Method:        http.MethodPost,
		Path:          "/definitions/{id}/entries",
		Summary:       "Append a completion",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64                 `path:"id"`
		Body CreateLogEntryRequest `json:"body"`
	}) (*struct {
		Body LogEntryResponse `json:"body"`
	}, error) {
		if _, err := ownDefinition(ctx, e, input.ID); err != nil {
			return nil, handleError(err)
		}
		in := domain.NewLogEntry{
			DefinitionID: input.ID,
			Amount:       input.Body.Amount,
			Description:  input.Body.Description,
			Category:     input.Body.Category,
			ClientRef:    input.Body.ClientRef,
		}
		if input.Body.Name != nil {
			in.Name = *input.Body.Name
		}
		entry, err := e.CreateLogEntry(ctx, in)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LogEntryResponse `json:"body"`
		}{Body: logEntryResponse(entry)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-entry",
		Method:        http.MethodDelete,
		Path:          "/entries/{id}",
		Summary:       "Delete a log entry",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.GetLogEntry(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if entry.UserID != userID {
			return nil, handleError(fmt.Errorf("entry %d: %w", input.ID, repo.ErrNotFound))
		}
		if err := e.DeleteLogEntry(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerUsers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-user-definitions",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/definitions",
		Summary:     "List a user's task definitions",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID     string `path:"user_id"`
		ActiveOnly bool   `query:"active_only"`
	}) (*struct {
		Body []DefinitionResponse `json:"body"`
	}, error) {
		if err := requireSelf(ctx, input.UserID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListDefinitions(ctx, input.UserID, input.ActiveOnly)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []DefinitionResponse `json:"body"`
		}{Body: mapDefinitions(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-today-entries",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/entries/today",
		Summary:     "List a user's entries for the current local day",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		TZ     string `query:"tz"`
	}) (*struct {
		Body []LogEntryResponse `json:"body"`
	}, error) {
		if err := requireSelf(ctx, input.UserID); err != nil {
			return nil, handleError(err)
		}
		loc, err := location(e, input.TZ)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.TodayEntries(ctx, input.UserID, loc)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []LogEntryResponse `json:"body"`
		}{Body: mapLogEntries(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "current-task",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/current",
		Summary:     "Evaluate the task to show right now",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		TZ     string `query:"tz"`
	}) (*struct {
		Body CurrentResponse `json:"body"`
	}, error) {
		if err := requireSelf(ctx, input.UserID); err != nil {
			return nil, handleError(err)
		}
		loc, err := location(e, input.TZ)
		if err != nil {
			return nil, handleError(err)
		}
		cur, ok, err := e.Current(ctx, input.UserID, loc)
		if err != nil {
			return nil, handleError(err)
		}
		resp := CurrentResponse{UserID: input.UserID, Now: time.Now().In(loc), Idle: !ok}
		if e.Now != nil {
			resp.Now = e.Now().In(loc)
		}
		if ok {
			resp.Task = currentTaskResponse(cur)
		}
		return &struct {
			Body CurrentResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events for the caller",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"definition,entry"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.ListEvents(ctx, repo.EventFilters{
			UserID:     userID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Cursor:     cursorID,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		user := strings.TrimSpace(input.Body.UserID)
		if user == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		var ttl time.Duration
		if input.Body.TTL != "" {
			d, err := time.ParseDuration(input.Body.TTL)
			if err != nil || d <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid ttl", map[string]any{"ttl": input.Body.TTL})
			}
			ttl = d
		}
		token, err := SignToken(authCfg.JWTSecret, user, ttl)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func rawBodyMap(ctx context.Context) map[string]json.RawMessage {
	data := bodyBytes(ctx)
	if len(data) == 0 {
		return map[string]json.RawMessage{}
	}
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return map[string]json.RawMessage{}
	}
	return outer
}

func isNullRaw(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && bytes.Equal(trimmed, []byte("null"))
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
