package must

// Must panics if err is non-nil and otherwise returns v. It is meant for
// package-level initialisation of values that can only fail on a programming
// error, such as parsing an embedded ABI definition.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
