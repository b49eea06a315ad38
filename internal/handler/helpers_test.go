package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/ragserve/ragserve/internal/pkg/errcode"
	"github.com/ragserve/ragserve/internal/pkg/errs"
)

func envelopeCode(t *testing.T, err error) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest("POST", "/api/v1/query", nil)

	handleError(c, err)

	var body struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

func TestHandleError_MapsSentinelsToEnvelopeCodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: query required", errs.ErrInvalid), errcode.ErrInvalid},
		{errs.ErrUnauthorized, errcode.ErrUnauthorized},
		{fmt.Errorf("%w: run rebuild first", errs.ErrIndexMissing), errcode.ErrIndexMissing},
		{fmt.Errorf("%w: add .txt or .md files", errs.ErrEmptyCorpus), errcode.ErrEmptyCorpus},
		{fmt.Errorf("%w: docs folder not found", errs.ErrNotFound), errcode.ErrNotFound},
		{fmt.Errorf("%w: overlap too large", errs.ErrConfig), errcode.ErrBadConfig},
		{errors.New("anything else"), errcode.ErrInternal},
	}
	for _, tc := range cases {
		require.Equal(t, tc.code, envelopeCode(t, tc.err))
	}
}
