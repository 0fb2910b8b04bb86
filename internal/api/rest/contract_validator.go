package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// ContractValidator validates HTTP requests against the published OpenAPI
// contract, so drift between the handlers and api/openapi.yaml fails loudly
// instead of silently.
type ContractValidator struct {
	loader *openapi3.Loader
	doc    *openapi3.T
	router routers.Router
}

// NewContractValidator creates a contract validator from an OpenAPI spec file
func NewContractValidator(specPath string) (*ContractValidator, error) {
	loader := &openapi3.Loader{Context: context.Background(), IsExternalRefsAllowed: true}

	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	return &ContractValidator{loader: loader, doc: doc, router: router}, nil
}

// ValidateRequest validates an HTTP request against the contract
func (cv *ContractValidator) ValidateRequest(req *http.Request) error {
	route, pathParams, err := cv.router.FindRoute(req)
	if err != nil {
		return fmt.Errorf("no matching route found: %w", err)
	}

	input := &openapi3filter.RequestValidationInput{
		Request:    req,
		PathParams: pathParams,
		Route:      route,
		Options: &openapi3filter.Options{
			// Auth is enforced by the JWT middleware, not the contract.
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}
	if err := openapi3filter.ValidateRequest(cv.loader.Context, input); err != nil {
		return fmt.Errorf("request validation failed: %w", err)
	}
	return nil
}

// Middleware rejects requests that violate the contract. Paths the contract
// does not describe pass through untouched, which keeps health probes and
// the WebSocket upgrade out of scope.
func (cv *ContractValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := cv.router.FindRoute(r); err != nil {
			next.ServeHTTP(w, r)
			return
		}

		if err := cv.ValidateRequest(r); err != nil {
			slog.DebugContext(r.Context(), "contract violation",
				"method", r.Method,
				"path", r.URL.Path,
				"error", err,
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"error":{"code":"CONTRACT_VIOLATION","message":%q}}`, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}
