package nix

// GenerateNixExprForTest exposes generateNixExpr to the external test package.
func (e *EnvFactory) GenerateNixExprForTest(commits map[string][]string) string {
	return e.generateNixExpr(commits)
}

// SetSystemForTest pins the nix system used in generated expressions.
func (e *EnvFactory) SetSystemForTest(system string) {
	e.system = system
}
