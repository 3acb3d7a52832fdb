package di

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/account-assembler/internal/dao/assemblydao"
	"github.com/savaki/account-assembler/internal/dao/bootstrapdao"
)

func ProvideAssemblyDAO(env string, client *dynamodb.Client) *assemblydao.DAO {
	return assemblydao.New(client, assemblydao.TableName(env))
}

func ProvideBootstrapDAO(env string, client *dynamodb.Client) *bootstrapdao.DAO {
	return bootstrapdao.New(client, bootstrapdao.TableName(env))
}
