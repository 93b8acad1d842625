package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/jemo-app/jemo-backend/api/responses"
	pkgerrors "github.com/jemo-app/jemo-backend/pkg/errors"
	"github.com/jemo-app/jemo-backend/pkg/logger"

	mycoolpaywebhook "github.com/jemo-app/jemo-backend/internal/webhooks/mycoolpay"
)

// MyCoolPayWebhook receives provider transaction callbacks. It always
// answers 200 on handled events so the provider stops retrying.
func MyCoolPayWebhook(svc *mycoolpaywebhook.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event mycoolpaywebhook.Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload"))
			return
		}
		if err := svc.HandleEvent(r.Context(), &event); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "received"})
	}
}
