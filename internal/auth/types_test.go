package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentity_Valid(t *testing.T) {
	var nilIdentity *Identity

	assert.False(t, nilIdentity.Valid())
	assert.False(t, (&Identity{Provider: "basic"}).Valid())
	assert.True(t, (&Identity{Subject: "u1"}).Valid())
}

func TestRequirement_Clone(t *testing.T) {
	orig := Requirement{Strategies: []string{"basic"}, Options: Options{"realm": "a"}}

	clone := orig.Clone()
	clone.Strategies[0] = "jwt"
	clone.Options["realm"] = "b"

	assert.Equal(t, "basic", orig.Strategies[0])
	assert.Equal(t, "a", orig.Options["realm"])
}

func TestRequirement_CloneKeepsNil(t *testing.T) {
	clone := Requirement{Skip: true}.Clone()

	assert.True(t, clone.Skip)
	assert.Nil(t, clone.Strategies)
	assert.Nil(t, clone.Options)
}
