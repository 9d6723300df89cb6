package session

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	PATCH(path string, body interface{}) error
	LastStatus() int
	GetResponseField(field string) (interface{}, error)
}

// RegisterSteps registers session lifecycle step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &sessionSteps{tc: tc}

	ctx.Step(`^I log in as "([^"]*)" with password "([^"]*)"$`, steps.login)
	ctx.Step(`^I am logged in as "([^"]*)" with password "([^"]*)"$`, steps.loginExpectingSuccess)
	ctx.Step(`^I log out$`, steps.logout)
	ctx.Step(`^I request the current session$`, steps.currentSession)
	ctx.Step(`^the session phase should be "([^"]*)"$`, steps.assertPhase)
	ctx.Step(`^I update my full name to "([^"]*)"$`, steps.updateFullName)
}

type sessionSteps struct {
	tc TestContext
}

func (s *sessionSteps) login(ctx context.Context, username, password string) error {
	return s.tc.POST("/v1/session/login", map[string]interface{}{
		"username": username,
		"password": password,
	})
}

func (s *sessionSteps) loginExpectingSuccess(ctx context.Context, username, password string) error {
	if err := s.login(ctx, username, password); err != nil {
		return err
	}
	if s.tc.LastStatus() != 200 {
		return fmt.Errorf("login as %q failed with status %d", username, s.tc.LastStatus())
	}
	return nil
}

func (s *sessionSteps) logout(ctx context.Context) error {
	return s.tc.POST("/v1/session/logout", nil)
}

func (s *sessionSteps) currentSession(ctx context.Context) error {
	return s.tc.GET("/v1/session", nil)
}

func (s *sessionSteps) assertPhase(ctx context.Context, expected string) error {
	if err := s.currentSession(ctx); err != nil {
		return err
	}
	phase, err := s.tc.GetResponseField("phase")
	if err != nil {
		return err
	}
	if fmt.Sprintf("%v", phase) != expected {
		return fmt.Errorf("expected session phase %q, got %v", expected, phase)
	}
	return nil
}

func (s *sessionSteps) updateFullName(ctx context.Context, name string) error {
	return s.tc.PATCH("/v1/session/identity", map[string]interface{}{
		"full_name": name,
	})
}
