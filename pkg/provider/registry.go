package provider

import (
	"slices"

	"github.com/rxtech-lab/histcache/pkg/errors"
)

// Info contains metadata about a vendor binding.
type Info struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	Description  string `json:"description"`
	RequiresAuth bool   `json:"requiresAuth"`
}

// registry holds metadata about all supported vendor bindings.
var registry = map[Type]Info{
	TypeRefinitiv: {
		Name:         string(TypeRefinitiv),
		DisplayName:  "Refinitiv Data Platform",
		Description:  "Historical pricing over the cloud RDP session (OAuth2 machine account)",
		RequiresAuth: true,
	},
	TypeRefinitivDesktop: {
		Name:         string(TypeRefinitivDesktop),
		DisplayName:  "Refinitiv Workspace",
		Description:  "Historical pricing over the local Workspace/Eikon session proxy",
		RequiresAuth: true,
	},
	TypePolygon: {
		Name:         string(TypePolygon),
		DisplayName:  "Polygon.io",
		Description:  "Daily OHLCV aggregates for US equities",
		RequiresAuth: true,
	},
}

// Supported returns the names of all supported vendor bindings, sorted.
func Supported() []string {
	names := make([]string, 0, len(registry))
	for t := range registry {
		names = append(names, string(t))
	}

	slices.Sort(names)

	return names
}

// GetInfo returns metadata for a specific vendor binding.
func GetInfo(name string) (Info, error) {
	info, exists := registry[Type(name)]
	if !exists {
		return Info{}, errors.Newf(errors.ErrCodeInvalidProvider, "unsupported vendor binding: %s", name)
	}

	return info, nil
}
