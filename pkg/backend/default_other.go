//go:build !linux && !darwin

package backend

// Default returns the backend for this platform: dtrace.
func Default(env Env, opts ...Option) Backend {
	return NewDTrace(env, opts...)
}
