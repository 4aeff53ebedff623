package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/sitewatch/internal/adapters/permission"
	"github.com/samirrijal/sitewatch/internal/core/ports"
	"github.com/samirrijal/sitewatch/internal/core/usecases"
)

// Pinger is anything /v1/ready can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds everything the HTTP handlers need. Only Engine is
// required.
type Dependencies struct {
	Engine      *usecases.Engine
	Permissions *permission.Static
	Sites       ports.SiteRepository
	Transitions ports.TransitionRepository
	NATS        *nats.Conn
	DB          Pinger
	Cache       Pinger
}
