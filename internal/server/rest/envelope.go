package rest

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/gin-gonic/gin"
)

var errBadParams = errors.New("invalid parameters")

type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

type errorCode struct {
	err  error
	code int
}

var errorCodes = []errorCode{
	{errBadParams, common.CodeBadRequest},
	{common.ErrEmailRequired, common.CodeBadRequest},
	{common.ErrPasswordRequired, common.CodeBadRequest},
	{common.ErrInvalidCredentials, common.CodeBadRequest},
	{common.ErrEmptyMessages, common.CodeBadRequest},
	{common.ErrEmptyPrompt, common.CodeBadRequest},
	{common.ErrConversationForeign, common.CodeBadRequest},
	{common.ErrServiceBusy, common.CodeBadRequest},
	{common.ErrTryLater, common.CodeBadRequest},
	{common.ErrInvalidRange, common.CodeBadRequest},
	{common.ErrInvalidDays, common.CodeBadRequest},
	{common.ErrEmptyCredential, common.CodeBadRequest},
	{common.ErrorAlreadyExists, common.CodeBadRequest},
	{common.ErrorUnauthorized, common.CodeUnauthorized},
	{common.ErrorForbidden, common.CodeForbidden},
	{common.ErrorNotFound, common.CodeNotFound},
	{common.ErrGrantNotFound, common.CodeGrantMissing},
	{common.ErrGrantExpired, common.CodeGrantExpired},
}

// codeFor maps an error to its envelope code and client message. Unknown
// errors become a generic internal error so details never leak.
func codeFor(err error) (int, string) {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code, ec.err.Error()
		}
	}
	return common.CodeInternal, common.ErrorInternal.Error()
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Code: common.CodeOK, Msg: "ok", Data: data})
}

func respondError(c *gin.Context, err error) {
	code, msg := codeFor(err)
	if code == common.CodeInternal {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(http.StatusOK, envelope{Code: code, Msg: msg})
}
