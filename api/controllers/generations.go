package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/tryon-backend/api/middleware"
	"github.com/angelmondragon/tryon-backend/api/responses"
	"github.com/angelmondragon/tryon-backend/api/validators"
	"github.com/angelmondragon/tryon-backend/internal/dispatch"
	pkgerrors "github.com/angelmondragon/tryon-backend/pkg/errors"
	"github.com/angelmondragon/tryon-backend/pkg/logger"
)

const maxPromptLength = 1000

// GenerationSubmitter accepts try-on generation requests.
type GenerationSubmitter interface {
	Submit(ctx context.Context, input dispatch.SubmitInput) (*dispatch.SubmitResult, error)
}

type createGenerationRequest struct {
	InputURLs []string `json:"input_urls" validate:"required,min=1,max=4,dive,required,url"`
	Prompt    string   `json:"prompt,omitempty" validate:"omitempty,max=1000"`
}

// CreateGeneration charges the caller for one generation and queues it.
func CreateGeneration(svc GenerationSubmitter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "generation service unavailable"))
			return
		}

		tenant := middleware.TenantFromContext(r.Context())
		if tenant == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var payload createGenerationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Submit(r.Context(), dispatch.SubmitInput{
			Tenant:    tenant,
			ShopperID: middleware.ShopperIDFromContext(r.Context()),
			SessionID: middleware.SessionIDFromContext(r.Context()),
			InputURLs: payload.InputURLs,
			Prompt:    validators.SanitizeString(payload.Prompt, maxPromptLength),
			RequestID: middleware.RequestIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, result)
	}
}
