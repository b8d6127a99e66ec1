package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orgInput struct {
	Name string `validate:"required,max=5"`
	Slug string `validate:"required,slug"`
}

func TestSlugRule(t *testing.T) {
	v := New()
	assert.NoError(t, v.Var("acme-corp", "slug"))
	assert.Error(t, v.Var("Acme Corp", "slug"))
	assert.Error(t, v.Var("acme--corp", "slug"))
}

func TestDescribe(t *testing.T) {
	err := New().Struct(orgInput{Name: "toolong", Slug: "Bad Slug"})
	require.Error(t, err)

	details := Describe(err)
	assert.Equal(t, "max=5", details["name"])
	assert.Equal(t, "slug", details["slug"])
	assert.Nil(t, Describe(assert.AnError))
}
