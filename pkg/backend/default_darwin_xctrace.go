//go:build darwin && xctrace

package backend

// Default returns the backend for this platform: xctrace.
func Default(env Env, opts ...Option) Backend {
	return NewXCTrace(env, opts...)
}
