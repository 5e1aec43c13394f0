package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/agentmem/fabric/pkg/agentmem/agenterrors"
)

// writeJSON writes payload as a JSON body with the given status. payload is
// marshaled as-is; callers that need the "ok" field embed it themselves.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// errorEnvelope is the Store's {ok:false, error:{code,message}} wire shape.
type errorEnvelope struct {
	OK    bool                  `json:"ok"`
	Error agenterrors.StoreError `json:"error"`
}

// writeError classifies err into a StoreError and writes it as the
// {ok:false,error:{...}} envelope every endpoint returns on failure.
func writeError(w http.ResponseWriter, err error) {
	se, ok := agenterrors.AsStoreError(err)
	if !ok {
		se = agenterrors.New(agenterrors.CodeUnknown, err.Error())
	}
	writeJSON(w, statusFor(se.Code), errorEnvelope{OK: false, Error: *se})
}

// statusFor maps a Store error code to the HTTP status the API surfaces it
// as. This is a server-side concern: agenterrors classifies errors for the
// client's retry logic, this maps the same codes onto response codes.
func statusFor(code agenterrors.Code) int {
	switch code {
	case agenterrors.CodeNotFound:
		return http.StatusNotFound
	case agenterrors.CodeInvalid:
		return http.StatusBadRequest
	case agenterrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case agenterrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case agenterrors.CodeDuplicate, agenterrors.CodeDerivationLimit:
		return http.StatusConflict
	case agenterrors.CodeIntegrity:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return agenterrors.New(agenterrors.CodeInvalid, "invalid JSON body: "+err.Error())
	}
	return nil
}
