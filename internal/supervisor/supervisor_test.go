package supervisor

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/worldposta/authproxy/internal/configuration/schema"
)

func TestNewBuildsOneFrontEndPerBinding(t *testing.T) {
	cfg := schema.Configuration{
		Cloud: schema.CloudCredentials{Endpoint: "https://cloud.example.com"},
		RADIUS: []schema.RADIUSBinding{
			{Name: "default", Port: 1812},
		},
		LDAP: []schema.LDAPBinding{
			{Name: "default", Port: 389},
		},
	}

	sup := New(cfg, logrus.NewEntry(logrus.New()))

	status := sup.Status()
	assert.Equal(t, "stopped", status["radius:default"])
	assert.Equal(t, "stopped", status["ldap:default"])
	assert.Len(t, status, 2)
}

func TestNewHandlesPassThroughDirectory(t *testing.T) {
	cfg := schema.Configuration{
		Cloud: schema.CloudCredentials{Endpoint: "https://cloud.example.com"},
		RADIUS: []schema.RADIUSBinding{
			{Name: "no-directory", Port: 1812},
		},
	}

	assert.NotPanics(t, func() {
		New(cfg, logrus.NewEntry(logrus.New()))
	})
}
