package gating

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

// Doctor lookups resolve asynchronously, so terminal-section assertions poll
// the decision endpoint until it leaves "loading".
const (
	settleTimeout = 5 * time.Second
	settlePoll    = 50 * time.Millisecond
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	LastStatus() int
	GetResponseField(field string) (interface{}, error)
}

// RegisterSteps registers entry-decision step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &gatingSteps{tc: tc}

	ctx.Step(`^I request the entry decision$`, steps.requestDecision)
	ctx.Step(`^the entry section should be "([^"]*)"$`, steps.assertSection)
	ctx.Step(`^the entry decision should settle on "([^"]*)"$`, steps.assertSettledSection)
	ctx.Step(`^I refresh my verification$`, steps.refreshVerification)
}

type gatingSteps struct {
	tc TestContext
}

func (s *gatingSteps) requestDecision(ctx context.Context) error {
	return s.tc.GET("/v1/session/decision", nil)
}

func (s *gatingSteps) currentSection(ctx context.Context) (string, error) {
	if err := s.requestDecision(ctx); err != nil {
		return "", err
	}
	section, err := s.tc.GetResponseField("section")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", section), nil
}

func (s *gatingSteps) assertSection(ctx context.Context, expected string) error {
	section, err := s.currentSection(ctx)
	if err != nil {
		return err
	}
	if section != expected {
		return fmt.Errorf("expected entry section %q, got %q", expected, section)
	}
	return nil
}

func (s *gatingSteps) assertSettledSection(ctx context.Context, expected string) error {
	deadline := time.Now().Add(settleTimeout)
	var section string
	for time.Now().Before(deadline) {
		var err error
		section, err = s.currentSection(ctx)
		if err != nil {
			return err
		}
		if section == expected {
			return nil
		}
		if section != "loading" {
			return fmt.Errorf("entry decision settled on %q, expected %q", section, expected)
		}
		time.Sleep(settlePoll)
	}
	return fmt.Errorf("entry decision still %q after %s, expected %q", section, settleTimeout, expected)
}

func (s *gatingSteps) refreshVerification(ctx context.Context) error {
	return s.tc.POST("/v1/verification/refresh", nil)
}
