package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/tryon-backend/api/responses"
	paddlewebhook "github.com/angelmondragon/tryon-backend/internal/webhooks/paddle"
	pkgerrors "github.com/angelmondragon/tryon-backend/pkg/errors"
	"github.com/angelmondragon/tryon-backend/pkg/logger"
	"github.com/angelmondragon/tryon-backend/pkg/paddle"
)

const maxWebhookBodyBytes = 1 << 20

type PaddleEventProcessor interface {
	Process(ctx context.Context, body []byte, signature string) (paddlewebhook.Result, error)
}

// PaddleWebhook verifies and applies Paddle billing notifications. Duplicate
// deliveries are acknowledged with 200 so Paddle stops retrying.
func PaddleWebhook(proc PaddleEventProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if proc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook processor unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(paddle.SignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "paddle signature missing"))
			return
		}

		result, err := proc.Process(ctx, payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
