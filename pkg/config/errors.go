package config

import "fmt"

// ErrConfigFileExists is returned by Persist when it must not overwrite a file
type ErrConfigFileExists struct {
	Path string
}

func (e ErrConfigFileExists) Error() string {
	return fmt.Sprintf("config file %s already exists", e.Path)
}
