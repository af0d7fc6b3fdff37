package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its struct tags and the cross-field rules the
// tags cannot express.
//
// Errors name the failing field and the tag that rejected it, for example
// "Engine.AsyncDepth failed on 'max'".
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	// A full batch charges at least one credit per slot.
	if cfg.Engine.CreditLowWater > 0 && cfg.Engine.CreditLowWater < cfg.Engine.AsyncDepth {
		return fmt.Errorf("engine.credit_low_water (%d) must be at least engine.async_depth (%d) when set",
			cfg.Engine.CreditLowWater, cfg.Engine.AsyncDepth)
	}

	if need := cfg.ClientConfig().RequiredCredits(); cfg.Transport.InitialCredits < need {
		return fmt.Errorf("transport.initial_credits (%d) must cover the largest compound (%d credits at engine.max_read_size/max_write_size)",
			cfg.Transport.InitialCredits, need)
	}

	return nil
}

func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed on '%s=%s' (value: %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed on '%s' (value: %v)", field, fe.Tag(), fe.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
