// Package routers adapts the GraphHopper, OSRM and OpenRouteService routing
// APIs to domain.RouteProvider. Every provider returns lat/lon paths with
// intersections already placed under a provider-specific prefix.
package routers
