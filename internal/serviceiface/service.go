package serviceiface

// Service is a long-running component managed by the app manager. Start must
// return once the service is running; Stop blocks until it has shut down.
type Service interface {
	Name() string
	Start() error
	Stop() error
}
