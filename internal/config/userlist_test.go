package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserListParsesFields(t *testing.T) {
	users, err := ParseUserList(strings.NewReader("0 : root\n1000 : alice\n"))
	require.NoError(t, err)
	require.Len(t, users, 2)

	u, ok := users.ByID(1000)
	require.True(t, ok)
	assert.Equal(t, "alice", u.Name)
}

func TestParseUserMappingDefaultAndPerNode(t *testing.T) {
	mappings, err := ParseUserMapping(strings.NewReader("alice : alice.local\n"), 0)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, UserMapping{ZFSName: "alice", LocalName: "alice.local", NodeSID: 0}, mappings[0])

	mappings, err = ParseUserMapping(strings.NewReader("alice : alice.remote\n"), 7)
	require.NoError(t, err)
	require.Equal(t, uint32(7), mappings[0].NodeSID)
}

func TestParseUserMappingRejectsEmptyFields(t *testing.T) {
	_, err := ParseUserMapping(strings.NewReader(" : alice.local\n"), 0)
	assert.Error(t, err)
}
