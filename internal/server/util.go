package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loykin/appvisor/internal/registry"
	"github.com/loykin/appvisor/internal/supervisor"
)

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}

// httpStatusFor maps domain failures to HTTP codes. Precondition
// violations are conflicts, not server faults.
func httpStatusFor(err error) int {
	switch supervisor.KindOf(err) {
	case supervisor.KindNotFound:
		return http.StatusNotFound
	case supervisor.KindDisabled,
		supervisor.KindAlreadyRunning,
		supervisor.KindNotRunning,
		supervisor.KindPortInUse:
		return http.StatusConflict
	case supervisor.KindLivenessTimeout, supervisor.KindShutdownTimeout:
		return http.StatusGatewayTimeout
	case supervisor.KindSpawnFailed:
		return http.StatusInternalServerError
	}
	var ve *registry.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrNameTaken):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	writeJSON(c, httpStatusFor(err), errorResp{Error: err.Error()})
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
