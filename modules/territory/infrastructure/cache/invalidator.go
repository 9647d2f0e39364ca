// Package cache drops derived per-territory aggregates from Redis when
// territory or assignment state changes. Conversion statistics and forecast
// rollups are computed elsewhere and cached under well-known key prefixes;
// the engine's only cache responsibility is invalidating them.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/territory/modules/territory/domain/events"
	"github.com/iota-uz/territory/pkg/eventbus"
)

const invalidateTimeout = 5 * time.Second

type Invalidator struct {
	client *redis.Client
	log    *logrus.Logger
}

func NewInvalidator(redisURL string, log *logrus.Logger) (*Invalidator, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Invalidator{client: client, log: log}, nil
}

func (i *Invalidator) Close() error {
	return i.client.Close()
}

// Register subscribes the invalidator to territory and assignment change
// events. Invalidation is best-effort; a failed delete only means one stale
// read until the cache TTL expires.
func (i *Invalidator) Register(bus eventbus.EventBus) {
	bus.Subscribe(i.onTerritoryChanged)
	bus.Subscribe(i.onAssignmentChanged)
}

func (i *Invalidator) onTerritoryChanged(event *events.TerritoryChangedV1) {
	i.invalidateTerritory(event.TenantID, event.TerritoryID)
}

func (i *Invalidator) onAssignmentChanged(event *events.AssignmentChangedV1) {
	if event.PreviousTerritoryID != nil {
		i.invalidateTerritory(event.TenantID, *event.PreviousTerritoryID)
	}
	if event.NewTerritoryID != nil {
		i.invalidateTerritory(event.TenantID, *event.NewTerritoryID)
	}
}

func (i *Invalidator) invalidateTerritory(tenantID, territoryID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
	defer cancel()

	keys := []string{
		territoryConversionKey(tenantID, territoryID),
		territoryForecastKey(tenantID, territoryID),
	}
	if err := i.client.Del(ctx, keys...).Err(); err != nil {
		i.log.WithError(err).WithFields(logrus.Fields{
			"tenant_id":    tenantID,
			"territory_id": territoryID,
		}).Warn("cache invalidation failed")
	}
}

func territoryConversionKey(tenantID, territoryID uuid.UUID) string {
	return fmt.Sprintf("territory:%s:%s:conversion", tenantID, territoryID)
}

func territoryForecastKey(tenantID, territoryID uuid.UUID) string {
	return fmt.Sprintf("territory:%s:%s:forecast", tenantID, territoryID)
}
