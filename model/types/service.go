package types

// Service is a tool service exposed to agent sessions. Each service groups
// one or more named methods the agent runtime can invoke.
type Service interface {
	Name() string
	Methods() Signatures
	Method(name string) (Executable, error)
}
