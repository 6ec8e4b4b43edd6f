package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/core/domain"
)

func TestPackageName(t *testing.T) {
	a := domain.NewPackageName("Flask_SQLAlchemy")
	b := domain.NewPackageName("flask-sqlalchemy")

	assert.Equal(t, a, b)
	assert.Equal(t, "flask-sqlalchemy", a.String())
	assert.True(t, domain.PackageName{}.IsZero())
	assert.Empty(t, domain.PackageName{}.String())
}

func TestPackageName_JSON(t *testing.T) {
	type record struct {
		Name domain.PackageName `json:"name"`
	}

	data, err := json.Marshal(record{Name: domain.NewPackageName("werkzeug")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"werkzeug"}`, string(data))

	var decoded record
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Zope.Interface"}`), &decoded))
	assert.Equal(t, domain.NewPackageName("zope-interface"), decoded.Name)
}
