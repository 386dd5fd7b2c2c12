package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("DB_TYPE", "MySQL")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")
	t.Setenv("SERVICE_PORT", "8090")
	t.Setenv("REDIS_ADDR", " redis:6379 ")

	v, err := Load("pricing")
	require.NoError(t, err)

	db := LoadDatabaseConfig(v, "DB_NAME")
	assert.Equal(t, "mysql", db.Type)
	assert.Equal(t, "chessclub_pricing", db.DBName)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, LoadKafkaConfig(v).Brokers)
	assert.Equal(t, ":8090", GetServicePort(v, "SERVICE_PORT"))
	assert.Equal(t, "redis:6379", LoadRedisConfig(v).Addr)
	assert.Equal(t, "development", GetAppEnv(v))
}

func TestGetServicePort_Default(t *testing.T) {
	v, err := Load("pricing")
	require.NoError(t, err)
	assert.Equal(t, ":8080", GetServicePort(v, "UNSET_PORT_KEY"))
}
