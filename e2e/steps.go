package e2e

import (
	"github.com/cucumber/godog"

	"medigate/e2e/steps/common"
	"medigate/e2e/steps/gating"
	"medigate/e2e/steps/session"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (generic requests, status and field assertions)
	common.RegisterSteps(ctx, tc)

	// Register session lifecycle steps
	session.RegisterSteps(ctx, tc)

	// Register entry-decision steps
	gating.RegisterSteps(ctx, tc)
}
