// Package config loads and validates engine configuration through viper.
// Every section implements Validatable; Load unmarshals whatever sources
// viper has been pointed at (file, environment, flags) and validates the
// result before anyone sees it.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/viper"
)

var log = logging.Logger("config")

// Validatable is any config section that can check itself.
type Validatable interface {
	Validate() error
}

// Load unmarshals the active viper state into T and validates it.
func Load[T Validatable]() (T, error) {
	var out T
	if err := viper.Unmarshal(&out); err != nil {
		return out, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := out.Validate(); err != nil {
		return out, err
	}
	log.Debugw("configuration loaded", "file", viper.ConfigFileUsed())
	return out, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateConfig(c any) error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
