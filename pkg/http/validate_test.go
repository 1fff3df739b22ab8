package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quoteQuery struct {
	Currency string `query:"currency" validate:"omitempty,len=3,alpha"`
	Limit    int    `query:"limit" default:"10" validate:"gte=1,lte=100"`
}

func newContext(method, target string) echo.Context {
	return echo.New().NewContext(httptest.NewRequest(method, target, nil), httptest.NewRecorder())
}

func TestReadAndValidateRequestAppliesDefaults(t *testing.T) {
	req := &quoteQuery{}
	require.Nil(t, ReadAndValidateRequest(newContext(http.MethodGet, "/?currency=usd"), req))
	assert.Equal(t, "usd", req.Currency)
	assert.Equal(t, 10, req.Limit)
}

func TestReadAndValidateRequestReportsQueryNames(t *testing.T) {
	errs := ReadAndValidateRequest(newContext(http.MethodGet, "/?currency=usdx&limit=500"), &quoteQuery{})
	require.Len(t, errs, 2)

	assert.Equal(t, "ERR_LEN", errs[0].Code)
	assert.Equal(t, "currency", errs[0].Field)
	assert.Equal(t, "currency must be exactly 3 characters", errs[0].Message)

	assert.Equal(t, "ERR_LTE", errs[1].Code)
	assert.Equal(t, "limit must be less than or equal to 100", errs[1].Message)
	assert.Equal(t, "100", errs[1].Params["max"])
}

func TestReadAndValidateQueryOnPost(t *testing.T) {
	req := &quoteQuery{}
	require.Nil(t, ReadAndValidateQuery(newContext(http.MethodPost, "/?limit=5"), req))
	assert.Equal(t, 5, req.Limit)

	errs := ReadAndValidateQuery(newContext(http.MethodPost, "/?limit=abc"), &quoteQuery{})
	require.Len(t, errs, 1)
	assert.Equal(t, "ERR_UNKNOWN", errs[0].Code)
}
