package shell

// ResolveEnvironmentForTest exposes resolveEnvironment to the external test package.
func ResolveEnvironmentForTest(sysEnv, toolEnv []string) []string {
	return resolveEnvironment(sysEnv, toolEnv)
}
