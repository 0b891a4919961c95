package response

import "github.com/gin-gonic/gin"

const (
	CodeBadRequest     = 40000
	CodeEmptyMessage   = 40001
	CodeUnauthorized   = 40100
	CodeAuthFailure    = 40101
	CodeEmailExists    = 40901
	CodeInternalServer = 50000
	CodeGateway        = 50200
)

type ErrorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, data)
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, data)
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, ErrorBody{
		Error: message,
		Code:  code,
	})
}
