package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	c := Default()
	c.Node = NodeIdentity{SID: 1, Name: "node-a", Host: "node-a.example.com"}
	return c
}

func TestValidateAcceptsDefaults(t *testing.T) {
	c := validConfig()
	assert.NoError(t, Validate(&c))
}

func TestValidateRejectsMissingNodeIdentity(t *testing.T) {
	c := Default()
	assert.Error(t, Validate(&c))
}

func TestValidateRejectsInvertedSchedulerBounds(t *testing.T) {
	c := validConfig()
	c.Scheduler.MaxSpare = 1
	c.Scheduler.MinSpare = 4
	assert.Error(t, Validate(&c))
}

func TestValidateRejectsBadPort(t *testing.T) {
	c := validConfig()
	c.Conn.Port = 0
	assert.Error(t, Validate(&c))
}
