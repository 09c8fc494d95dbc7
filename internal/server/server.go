package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"deliberation/internal/domain"
	"deliberation/internal/engine"
	"deliberation/internal/logging"
	"deliberation/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	// Realtime serves the websocket endpoint; nil disables it.
	Realtime http.Handler
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"project_completed"`
	Message string         `json:"message" example:"project already completed: project-1"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the simulation API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := logging.OrNop(cfg.Logger)
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// request validation failures are plain bad requests
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(accessLog(logger))
	hcfg := huma.DefaultConfig("Deliberation API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "/docs"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerLogin(group, cfg.Engine)
	registerCharacters(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerSettlements(group, cfg.Engine)
	registerScoreboard(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)
	if cfg.Realtime != nil {
		router.Handle(path.Join(basePath, "ws"), cfg.Realtime)
	}

	return router, nil
}

func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)))
		})
	}
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
	msg := err.Error()
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, engine.ErrProjectCompleted):
		return newAPIError(http.StatusConflict, "project_completed", msg, nil)
	case errors.Is(err, engine.ErrInvalidContribution):
		return newAPIError(http.StatusBadRequest, "invalid_contribution", msg, nil)
	case errors.Is(err, engine.ErrNoContributions), errors.Is(err, repo.ErrInvalidFilter):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// registerOpenAPI serves the document built once, after every operation
// has been registered.
func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	spec, err := json.Marshal(api.OpenAPI())
	if err != nil {
		spec = []byte(`{}`)
	}
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
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

// registerLogin looks a character up by name. There are no credentials; the
// returned id is what clients send as actor_id.
func registerLogin(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/login",
		Summary:     "Select a character by name",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body CharacterResponse `json:"body"`
	}, error) {
		name := strings.TrimSpace(input.Body.Name)
		if name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		c, err := e.Repo.GetCharacterByName(ctx, name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CharacterResponse `json:"body"`
		}{Body: characterResponse(c)}, nil
	})
}

func registerCharacters(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-characters",
		Method:      http.MethodGet,
		Path:        "/characters",
		Summary:     "List characters with their balances",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []CharacterResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListCharacters(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []CharacterResponse `json:"body"`
		}{Body: mapCharacters(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-character",
		Method:      http.MethodGet,
		Path:        "/characters/{character_id}",
		Summary:     "Get character",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CharacterID string `path:"character_id"`
	}) (*struct {
		Body CharacterResponse `json:"body"`
	}, error) {
		c, err := e.Repo.GetCharacter(ctx, input.CharacterID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CharacterResponse `json:"body"`
		}{Body: characterResponse(c)}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"open,completed,all" default:"open"`
	}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListProjects(ctx, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})
}

func registerSettlements(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "settle-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/settlements",
		Summary:     "Propose contributions for a project",
		Description: "A rejected proposal is not an error: the response carries verdict NOT_ENOUGH or TOO_MUCH and nothing changes.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string        `path:"project_id"`
		Body      SettleRequest `json:"body"`
	}) (*struct {
		Body SettlementResponse `json:"body"`
	}, error) {
		res, err := e.Settle(ctx, engine.SettleRequest{
			ProjectID:     input.ProjectID,
			ActorID:       input.Body.ActorID,
			Contributions: input.Body.contributions(),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SettlementResponse `json:"body"`
		}{Body: settlementResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-settlements",
		Method:      http.MethodGet,
		Path:        "/settlements",
		Summary:     "Settlement history, newest first",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Settlement `json:"body"`
	}, error) {
		items, err := e.Repo.ListSettlements(ctx, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Settlement{}
		}
		return &struct {
			Body []domain.Settlement `json:"body"`
		}{Body: items}, nil
	})
}

func registerScoreboard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "scoreboard",
		Method:      http.MethodGet,
		Path:        "/scoreboard",
		Summary:     "Current metric values",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []MetricResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListMetrics(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []MetricResponse `json:"body"`
		}{Body: mapMetrics(items)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"character,project,settlement,simulation"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, normalizeLimit(input.Limit), input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
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
