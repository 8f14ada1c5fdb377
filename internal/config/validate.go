package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
)

// Validate проверяет итоговую конфигурацию.
func Validate(cfg Root) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("hhmm", validateHHMM); err != nil {
		return fmt.Errorf("register hhmm: %w", err)
	}

	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if _, err := time.LoadLocation(cfg.App.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %w", ErrInvalid, cfg.App.Timezone, err)
	}

	if cfg.Storage.Backend == "remote" && !cfg.Storage.Remote.Complete() {
		return fmt.Errorf("%w: storage.backend is remote but bucket, credentials or endpoint are missing", ErrInvalid)
	}

	pw := cfg.Notification.PushWindow
	if pw.Enabled && pw.Start > pw.End {
		return fmt.Errorf("%w: push window start %s is after end %s", ErrInvalid, pw.Start, pw.End)
	}
	return nil
}

func validateHHMM(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, err := time.Parse("15:04", s)
	return err == nil && len(s) == 5
}
