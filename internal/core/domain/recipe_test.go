package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/kiln/internal/core/domain"
)

func TestDefaultRecipe(t *testing.T) {
	r := domain.DefaultRecipe()

	assert.Equal(t, "/app", r.WorkingDir.String())
	assert.Equal(t, domain.DefaultManifest, r.Manifest)
	assert.Equal(t, domain.InstallerIndex, r.Installer.Kind)
	assert.True(t, r.Base.IsScratch())
}

func TestBaseSpec_LayoutRef(t *testing.T) {
	dir, ref := domain.BaseSpec{Image: "oci:./base@python-3.11"}.LayoutRef()
	assert.Equal(t, "./base", dir)
	assert.Equal(t, "python-3.11", ref)

	dir, ref = domain.BaseSpec{Image: "oci:/images/base"}.LayoutRef()
	assert.Equal(t, "/images/base", dir)
	assert.Empty(t, ref)

	assert.False(t, domain.BaseSpec{Image: "oci:/images/base"}.IsScratch())
}

func TestInstallerSpec_Fingerprint(t *testing.T) {
	a := domain.InstallerSpec{Kind: domain.InstallerCommand, Command: []string{"pip", "install"}, Target: "t"}
	b := domain.InstallerSpec{Kind: domain.InstallerCommand, Command: []string{"pip install"}, Target: "t"}

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, a.Fingerprint(), a.Fingerprint())
}

func TestRecipe_SortedEnv(t *testing.T) {
	r := &domain.Recipe{Env: map[string]string{"B": "2", "A": "1"}}
	assert.Equal(t, []string{"A=1", "B=2"}, r.SortedEnv())
}

func TestNormalizePackageName(t *testing.T) {
	assert.Equal(t, "flask-sqlalchemy", domain.NormalizePackageName("Flask_SQLAlchemy"))
	assert.Equal(t, "zope-interface", domain.NormalizePackageName("zope.interface"))
	assert.Equal(t, "a-b", domain.NormalizePackageName(" A--_.b "))
}

func TestRequirement_String(t *testing.T) {
	r := domain.Requirement{
		Name:   domain.NewPackageName("uvicorn"),
		Extras: []string{"standard"},
		Constraints: []domain.Constraint{
			{Op: domain.OpGreaterEq, Version: "0.20"},
			{Op: domain.OpLess, Version: "1.0"},
		},
	}

	assert.Equal(t, "uvicorn[standard]>=0.20,<1.0", r.String())
}
