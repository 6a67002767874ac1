package crawl

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"cdpcrawler/internal/adapter"
	"cdpcrawler/internal/domain"
	"cdpcrawler/internal/identity"
)

// Strategy decides how to reach a device and opens the session
type Strategy struct {
	dialer adapter.Dialer
	logger zerolog.Logger
}

// NewStrategy creates a connection strategy over dialer
func NewStrategy(dialer adapter.Dialer, logger zerolog.Logger) *Strategy {
	return &Strategy{dialer: dialer, logger: logger}
}

// Targets lists at most two connection targets: the device key, then its
// management address when the key is a hostname.
func Targets(rec *domain.DeviceRecord) []string {
	targets := []string{rec.Key}
	if rec.ManagementAddress != "" && !identity.IsAddress(rec.Key) {
		targets = append(targets, rec.ManagementAddress)
	}
	return targets
}

// Connect tries each target in order and returns the first session that
// opens, along with the target used. If all fail the errors are joined.
func (s *Strategy) Connect(ctx context.Context, rec *domain.DeviceRecord) (adapter.Session, string, error) {
	var errs []error

	for _, target := range Targets(rec) {
		session, err := s.dialer.Dial(ctx, target)
		if err == nil {
			return session, target, nil
		}
		s.logger.Debug().Err(err).Str("device", rec.Key).Str("target", target).Msg("Connect attempt failed")
		errs = append(errs, err)

		if ctx.Err() != nil {
			break
		}
	}

	return nil, "", errors.Join(errs...)
}
