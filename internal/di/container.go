// internal/di/container.go
package di

import (
	"fmt"
	"sort"
	"sync"
)

// Service names registered by app.InitServices.
const (
	Progress  = "progress"
	LLM       = "llm"
	Loader    = "loader"
	Analyzer  = "analyzer"
	Narrative = "narrative"
	Video     = "video"
	Pipeline  = "pipeline"
	Projects  = "projects"
	Export    = "export"
	Stats     = "stats"

	Files         = "files"
	ProjectRepo   = "project_repository"
	AnalysisCache = "analysis_cache"
)

// Container is a name-keyed service registry shared by main, the router and tests.
type Container struct {
	services map[string]interface{}
	mutex    sync.RWMutex
}

var (
	globalContainer *Container
	once            sync.Once
)

func NewContainer() *Container {
	return &Container{services: make(map[string]interface{})}
}

// GetContainer returns the process-wide container.
func GetContainer() *Container {
	once.Do(func() {
		globalContainer = NewContainer()
	})
	return globalContainer
}

func (c *Container) Register(name string, service interface{}) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.services[name] = service
}

// Get returns the service or nil.
func (c *Container) Get(name string) interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.services[name]
}

func (c *Container) Has(name string) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	_, exists := c.services[name]
	return exists
}

func (c *Container) Remove(name string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.services, name)
}

func (c *Container) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.services = make(map[string]interface{})
}

// GetNames returns the registered names in sorted order.
func (c *Container) GetNames() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	names := make([]string, 0, len(c.services))
	for name := range c.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve fetches name from c and asserts it to T.
func Resolve[T any](c *Container, name string) (T, error) {
	var zero T
	service := c.Get(name)
	if service == nil {
		return zero, fmt.Errorf("service %q not registered", name)
	}
	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("service %q has type %T, want %T", name, service, zero)
	}
	return typed, nil
}
