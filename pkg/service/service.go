package service

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// RunnableService defines a service that can be run.
// Run should not block.
type RunnableService interface {
	Run()
	Stop() error
}

// Group is a container for managing a bunch of services.
type Group struct {
	list []RunnableService
}

func (g *Group) Add(services ...RunnableService) { g.list = append(g.list, services...) }

// Start starts each service in the group in the order they were added.
func (g *Group) Start() {
	for _, s := range g.list {
		s.Run()
	}
}

// Stop terminates a group of services in reverse order.
func (g *Group) Stop() error {
	var result *multierror.Error
	for i := len(g.list) - 1; i >= 0; i-- {
		if err := g.list[i].Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to stop [%v]: %w", g.list[i], err))
		}
	}
	return result.ErrorOrNil()
}
