package advisory

import (
	"context"
	"errors"
	"fmt"

	"github.com/richard-senior/podds/internal/logger"
)

// Service is the call boundary for the advisory collaborator: it rate
// limits, retries once after a throttle signal and substitutes the local
// fallback when the call fails
type Service struct {
	cfg     Config
	advisor Advisor
	limiter *Limiter
}

// NewService wraps advisor. A nil advisor or a disabled config means every
// analysis comes from the fallback
func NewService(cfg Config, advisor Advisor, clock Clock) *Service {
	return &Service{
		cfg:     cfg,
		advisor: advisor,
		limiter: NewLimiter(cfg, clock),
	}
}

func (s *Service) enabled() bool {
	return s.cfg.Enabled && s.advisor != nil
}

// Remaining reports the calls left today, -1 when unlimited
func (s *Service) Remaining() int {
	return s.limiter.Remaining()
}

// Team returns a team analysis. An error is only returned when the
// fallback is disabled
func (s *Service) Team(ctx context.Context, profile TeamProfile) (*TeamAnalysis, error) {
	if !s.enabled() {
		return FallbackTeam(profile), nil
	}
	var out *TeamAnalysis
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.advisor.AnalyzeTeam(ctx, profile)
		return err
	})
	if err == nil {
		return out, nil
	}
	if !s.cfg.FallbackEnabled {
		return nil, err
	}
	logger.Warn(fmt.Sprintf("advisory team analysis for %s failed, using fallback", profile.Name), err)
	return FallbackTeam(profile), nil
}

// Matchup returns a matchup analysis. An error is only returned when the
// fallback is disabled
func (s *Service) Matchup(ctx context.Context, profile MatchupProfile) (*MatchupAnalysis, error) {
	if !s.enabled() {
		return FallbackMatchup(profile), nil
	}
	var out *MatchupAnalysis
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.advisor.AnalyzeMatchup(ctx, profile)
		return err
	})
	if err == nil {
		return out, nil
	}
	if !s.cfg.FallbackEnabled {
		return nil, err
	}
	logger.Warn(fmt.Sprintf("advisory matchup analysis for %s v %s failed, using fallback", profile.Home.Name, profile.Away.Name), err)
	return FallbackMatchup(profile), nil
}

// call waits for the limiter, runs fn and on a throttle signal backs off
// once and retries exactly once
func (s *Service) call(ctx context.Context, fn func(context.Context) error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	err := s.attempt(ctx, fn)
	if !errors.Is(err, ErrThrottled) {
		return err
	}

	logger.Warn("advisory provider throttled, backing off for", s.cfg.ThrottleBackoff.String())
	if err := s.limiter.Backoff(ctx, s.cfg.ThrottleBackoff); err != nil {
		return err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.attempt(ctx, fn)
}

func (s *Service) attempt(ctx context.Context, fn func(context.Context) error) error {
	if s.cfg.Timeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return fn(cctx)
}
