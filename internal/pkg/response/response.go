package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

// apiError pairs an errcode value with a caller-facing message. proxyutil
// reads Code() when rendering the {code, msg, data} failure envelope that the
// rebuild and query endpoints return.
type apiError struct {
	code uint32
	msg  string
}

func (e *apiError) Error() string {
	return e.msg
}

func (e *apiError) Code() uint32 {
	return e.code
}

// Success wraps data in the standard success envelope (code 0).
func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error reports a failure with an errcode constant. The HTTP status stays 200;
// clients distinguish outcomes by the envelope code.
func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, http.StatusOK, &apiError{code: uint32(code), msg: message})
}
