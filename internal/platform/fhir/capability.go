package fhir

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// SearchParam describes a search parameter for use with the CapabilityBuilder.
type SearchParam struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Documentation string `json:"documentation,omitempty"`
}

// CapabilityBuilder accumulates the resource types a server exposes and
// renders the /fhir/metadata CapabilityStatement from them.
type CapabilityBuilder struct {
	mu        sync.RWMutex
	baseURL   string
	version   string
	name      string
	resources map[string]*resourceEntry
}

type resourceEntry struct {
	resourceType string
	interactions []string
	searchParams []SearchParam
}

// NewCapabilityBuilder creates a builder for the server at baseURL.
func NewCapabilityBuilder(baseURL, name, version string) *CapabilityBuilder {
	return &CapabilityBuilder{
		baseURL:   baseURL,
		name:      name,
		version:   version,
		resources: make(map[string]*resourceEntry),
	}
}

// AddResource registers a FHIR resource type with its supported interactions
// and search parameters. Repeated calls for the same type merge.
func (b *CapabilityBuilder) AddResource(resourceType string, interactions []string, searchParams []SearchParam) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.resources[resourceType]
	if !ok {
		entry = &resourceEntry{resourceType: resourceType}
		b.resources[resourceType] = entry
	}

	existing := make(map[string]bool, len(entry.interactions))
	for _, i := range entry.interactions {
		existing[i] = true
	}
	for _, i := range interactions {
		if !existing[i] {
			entry.interactions = append(entry.interactions, i)
			existing[i] = true
		}
	}

	existingParams := make(map[string]bool, len(entry.searchParams))
	for _, p := range entry.searchParams {
		existingParams[p.Name] = true
	}
	for _, p := range searchParams {
		if !existingParams[p.Name] {
			entry.searchParams = append(entry.searchParams, p)
			existingParams[p.Name] = true
		}
	}
}

// Build renders the CapabilityStatement. Resource types are sorted so the
// output is deterministic.
func (b *CapabilityBuilder) Build() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	types := make([]string, 0, len(b.resources))
	for rt := range b.resources {
		types = append(types, rt)
	}
	sort.Strings(types)

	resources := make([]map[string]interface{}, 0, len(types))
	for _, rt := range types {
		entry := b.resources[rt]

		interactions := make([]map[string]string, len(entry.interactions))
		for i, code := range entry.interactions {
			interactions[i] = map[string]string{"code": code}
		}

		res := map[string]interface{}{
			"type":        entry.resourceType,
			"interaction": interactions,
		}
		if len(entry.searchParams) > 0 {
			params := make([]map[string]string, len(entry.searchParams))
			for i, p := range entry.searchParams {
				params[i] = map[string]string{"name": p.Name, "type": p.Type}
				if p.Documentation != "" {
					params[i]["documentation"] = p.Documentation
				}
			}
			res["searchParam"] = params
		}
		resources = append(resources, res)
	}

	return map[string]interface{}{
		"resourceType": "CapabilityStatement",
		"status":       "active",
		"date":         time.Now().UTC().Format("2006-01-02"),
		"kind":         "instance",
		"fhirVersion":  "4.0.1",
		"format":       []string{"json"},
		"software": map[string]string{
			"name":    b.name,
			"version": b.version,
		},
		"implementation": map[string]string{
			"description": b.name,
			"url":         b.baseURL,
		},
		"rest": []map[string]interface{}{
			{
				"mode":     "server",
				"resource": resources,
			},
		},
	}
}

// Handler serves the CapabilityStatement at /fhir/metadata.
func (b *CapabilityBuilder) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, b.Build())
	}
}
