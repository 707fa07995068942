package domain

// Archiver builds and checks password-protected zip containers.
type Archiver interface {
	Wrap(sourcePath, password, destPath string) error
	Validate(containerPath, password string) error
}
