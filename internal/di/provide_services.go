package di

import (
	"os"

	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/savaki/account-assembler/internal/services"
)

func ProvideOrgStore(client *ssm.Client) *services.OrgStore {
	return services.NewOrgStore(client)
}

func ProvideDirectory(client *organizations.Client) *services.Directory {
	return services.NewDirectory(client)
}

func ProvideAuditTrail(client *cloudtrail.Client) *services.AuditTrail {
	return services.NewAuditTrail(client)
}

func ProvideSecretsManagerService(client *secretsmanager.Client) *services.SecretsManagerService {
	return services.NewSecretsManagerService(client)
}

// ProvideEventPublisher targets the bus named by EVENT_BUS_NAME, or the
// default bus when unset
func ProvideEventPublisher(client *eventbridge.Client) *services.EventPublisher {
	return services.NewEventPublisher(client, os.Getenv("EVENT_BUS_NAME"))
}
