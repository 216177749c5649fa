package healthserver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"

	"github.com/worldposta/authproxy/internal/configuration/schema"
)

func TestHandleHealthWithoutStatusFunc(t *testing.T) {
	s := New(schema.Configuration{}, nil)

	ctx := &fasthttp.RequestCtx{}
	s.handleHealth(ctx)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotContains(t, body, "front_ends")
}

func TestHandleHealthWithStatusFunc(t *testing.T) {
	s := New(schema.Configuration{}, func() map[string]string {
		return map[string]string{"radius:default": "running"}
	})

	ctx := &fasthttp.RequestCtx{}
	s.handleHealth(ctx)

	var body map[string]interface{}
	assert.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))

	fronts, ok := body["front_ends"].(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, "running", fronts["radius:default"])
}
