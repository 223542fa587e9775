package kilat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusText(t *testing.T) {
	testCases := []struct {
		code int
		text string
	}{
		{StatusOK, "OK"},
		{StatusNoContent, "No Content"},
		{StatusMovedPermanently, "Moved Permanently"},
		{StatusFound, "Found"},
		{StatusBadRequest, "Bad Request"},
		{StatusUnauthorized, "Unauthorized"},
		{StatusForbidden, "Forbidden"},
		{StatusNotFound, "Not Found"},
		{StatusInternalServerError, "Internal Server Error"},
		{StatusServiceUnavailable, "Service Unavailable"},
		{999, unknownStatusCode},
	}

	for _, tc := range testCases {
		got := StatusText(tc.code)
		assert.Equal(t, tc.text, got, "StatusText(%d) returned incorrect value", tc.code)
	}
}

func TestStatusCodes(t *testing.T) {
	assert.Equal(t, 200, StatusOK)
	assert.Equal(t, 400, StatusBadRequest)
	assert.Equal(t, 500, StatusInternalServerError)

	statusCodes := []int{
		StatusOK, StatusAccepted, StatusNoContent, StatusPartialContent,
		StatusMovedPermanently, StatusFound, StatusSeeOther, StatusNotModified,
		StatusBadRequest, StatusUnauthorized, StatusForbidden, StatusNotFound,
		StatusRequestEntityTooLarge, StatusRequestURITooLong, StatusUnsupportedMediaType,
		StatusRangeNotSatisfiable, StatusInternalServerError, StatusServiceUnavailable,
	}

	for _, code := range statusCodes {
		text := StatusText(code)
		assert.NotEmpty(t, text, "StatusText(%d) returned empty string, expected a description", code)
	}
}

func TestHTTPMethods(t *testing.T) {
	assert.Equal(t, "GET", MethodGet)
	assert.Equal(t, "POST", MethodPost)
	assert.Equal(t, "PUT", MethodPut)
	assert.Equal(t, "DELETE", MethodDelete)
	assert.Equal(t, "PATCH", MethodPatch)
	assert.Equal(t, "HEAD", MethodHead)
	assert.Equal(t, "OPTIONS", MethodOptions)
	assert.Equal(t, "CONNECT", MethodConnect)
	assert.Equal(t, "TRACE", MethodTrace)
}

func TestStatusTextUnknown(t *testing.T) {
	assert.Equal(t, unknownStatusCode, StatusText(-1))
	assert.Equal(t, unknownStatusCode, StatusText(0))
	assert.Equal(t, unknownStatusCode, StatusText(306))
	assert.Equal(t, unknownStatusCode, StatusText(9999))
}
