package errors

import "errors"

var (
	ErrAccountNameRequired  = errors.New("ACCOUNT_NAME environment variable is required")
	ErrAccountEmailRequired = errors.New("ACCOUNT_EMAIL environment variable is required")
	ErrParameterNotFound    = errors.New("no parameter matched the requested tag")
	ErrAmbiguousParameter   = errors.New("multiple parameters matched the requested tag")
	ErrNoOrganizationRoot   = errors.New("organization has no root")
	ErrNoTrailConfigured    = errors.New("no CloudTrail trail is configured")
	ErrDeploymentFailed     = errors.New("stack set operation failed")
	ErrDeploymentStopped    = errors.New("stack set operation was stopped")
	ErrDeploymentTimeout    = errors.New("timed out waiting for stack set operation")
	ErrEventPublishFailed   = errors.New("event bus rejected one or more entries")
)
