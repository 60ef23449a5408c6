package gis

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/alianzacap/jppr-front/internal/log"
)

// ToolServer exposes the MIPR lookups as MCP tools over streamable HTTP.
type ToolServer struct {
	client *Client
	server *server.MCPServer
}

// NewToolServer registers the property tools on a fresh MCP server.
func NewToolServer(client *Client, version string) *ToolServer {
	mcpServer := server.NewMCPServer(
		"jppr-front",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	ts := &ToolServer{client: client, server: mcpServer}

	mcpServer.AddTool(
		mcp.NewTool("search_properties",
			mcp.WithDescription("Search for properties in Puerto Rico by Catastro number or coordinates (latitude/longitude)"),
			mcp.WithString("parcelId",
				mcp.Description("Property Catastro (parcel) identification number"),
			),
			mcp.WithNumber("latitude",
				mcp.Description("Latitude coordinate for location-based search"),
			),
			mcp.WithNumber("longitude",
				mcp.Description("Longitude coordinate for location-based search"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of results to return (default: 10)"),
			),
		),
		ts.handleSearchProperties,
	)

	mcpServer.AddTool(
		mcp.NewTool("get_property_details",
			mcp.WithDescription("Get detailed information about a specific property using its parcel ID"),
			mcp.WithString("parcelId",
				mcp.Description("Property parcel identification number"),
				mcp.Required(),
			),
		),
		ts.handleGetPropertyDetails,
	)

	mcpServer.AddTool(
		mcp.NewTool("get_municipalities",
			mcp.WithDescription("Get a list of all municipalities in Puerto Rico available in the MIPR system"),
		),
		ts.handleGetMunicipalities,
	)

	return ts
}

// Handler returns the streamable HTTP transport for the tool server.
func (ts *ToolServer) Handler() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(ts.server)
}

func (ts *ToolServer) handleSearchProperties(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	parcelID, _ := args["parcelId"].(string)
	latitude, hasLat := args["latitude"].(float64)
	longitude, hasLon := args["longitude"].(float64)
	limit := 10
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	if parcelID == "" && (!hasLat || !hasLon) {
		return mcp.NewToolResultError("Either a Catastro number (parcelId) or coordinates (latitude and longitude) must be provided."), nil
	}

	var properties []Property
	var err error
	if parcelID != "" {
		properties, err = ts.client.LookupByCatastro(ctx, parcelID)
	} else {
		properties, err = ts.client.LookupByCoordinates(ctx, latitude, longitude)
	}
	if err != nil {
		log.LogError("Property search failed: %v", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to search properties: %v", err)), nil
	}

	if len(properties) > limit {
		properties = properties[:limit]
	}

	if len(properties) == 0 {
		return mcp.NewToolResultText(notFoundMessage(parcelID, hasLat && hasLon, latitude, longitude)), nil
	}

	var b strings.Builder
	plural := "ies"
	if len(properties) == 1 {
		plural = "y"
	}
	fmt.Fprintf(&b, "Found %d propert%s:\n\n", len(properties), plural)
	for i, p := range properties {
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, p.Address)
		fmt.Fprintf(&b, "   - Catastro (Parcel ID): %s\n", p.ParcelID)
		fmt.Fprintf(&b, "   - Municipality: %s\n", p.Municipality)
		if p.Barrio != "" {
			fmt.Fprintf(&b, "   - Barrio: %s\n", p.Barrio)
		}
		fmt.Fprintf(&b, "   - Zone: %s\n", p.Zone)
		fmt.Fprintf(&b, "   - Land Use: %s\n", p.LandUse)
		if p.Zoning != "" {
			fmt.Fprintf(&b, "   - Zoning: %s\n", p.Zoning)
		}
		if p.Classification != "" {
			fmt.Fprintf(&b, "   - Classification: %s\n", p.Classification)
		}
		fmt.Fprintf(&b, "   - Area: %.2f sq meters\n", p.Area)
		fmt.Fprintf(&b, "   - Coordinates: %v, %v\n", p.Coordinates.Latitude, p.Coordinates.Longitude)
		fmt.Fprintf(&b, "   - Projected Coords: %.2f, %.2f\n", p.Projected.X, p.Projected.Y)
		if p.FloodZone != "" {
			fmt.Fprintf(&b, "   - Flood Zone: %s\n", p.FloodZone)
		}
		if p.Geology != "" {
			fmt.Fprintf(&b, "   - Geology: %s\n", p.Geology)
		}
		b.WriteString("\n")
	}

	return mcp.NewToolResultText(b.String()), nil
}

func notFoundMessage(parcelID string, hasCoords bool, latitude, longitude float64) string {
	var b strings.Builder
	b.WriteString("No properties found matching the search criteria.\n\n")
	switch {
	case parcelID != "":
		fmt.Fprintf(&b, "The Catastro number %q was not found in the MIPR database.\n", parcelID)
		b.WriteString("This could mean:\n")
		b.WriteString("- The Catastro number does not exist\n")
		b.WriteString("- The property is not yet registered or is inactive\n")
		b.WriteString("- There may be a typo in the number\n\n")
		b.WriteString("Please verify the Catastro number and try again.")
	case hasCoords:
		fmt.Fprintf(&b, "No property found at coordinates %v, %v.\n", latitude, longitude)
		b.WriteString("This could mean:\n")
		b.WriteString("- The coordinates are in a non-developed area (water, forest, etc.)\n")
		b.WriteString("- The coordinates are outside Puerto Rico\n")
		b.WriteString("- The property at this location is not in the MIPR database\n\n")
		b.WriteString("Please verify the coordinates and try again.")
	default:
		b.WriteString("Please try different search criteria.")
	}
	return b.String()
}

func (ts *ToolServer) handleGetPropertyDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	parcelID, ok := request.GetArguments()["parcelId"].(string)
	if !ok || parcelID == "" {
		return mcp.NewToolResultError("missing parcelId argument"), nil
	}

	property, err := ts.client.PropertyDetails(ctx, parcelID)
	if err != nil {
		log.LogError("Property details lookup failed: %v", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get property details: %v", err)), nil
	}
	if property == nil {
		return mcp.NewToolResultText(fmt.Sprintf(
			"No property found with Catastro number: %s\n\nThis could mean:\n- The Catastro number does not exist in the MIPR database\n- The property is not yet registered or is inactive\n- There may be a typo in the Catastro number\n\nPlease verify the Catastro number and try again.",
			parcelID)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Property Details for Catastro %s**\n\n", property.ParcelID)
	fmt.Fprintf(&b, "**Address:** %s\n", property.Address)
	fmt.Fprintf(&b, "**Municipality:** %s\n", firstNonEmpty(property.PrimaryMunicipality, property.Municipality))
	if barrio := firstNonEmpty(property.PrimaryBarrio, property.Barrio); barrio != "" {
		fmt.Fprintf(&b, "**Barrio:** %s\n", barrio)
	}
	fmt.Fprintf(&b, "**Zone:** %s\n", property.Zone)
	fmt.Fprintf(&b, "**Land Use:** %s\n", property.LandUse)
	if zoning := firstNonEmpty(property.PrimaryZoning, property.Zoning); zoning != "" {
		fmt.Fprintf(&b, "**Primary Zoning:** %s\n", zoning)
	}
	if classification := firstNonEmpty(property.PrimaryClassification, property.Classification); classification != "" {
		fmt.Fprintf(&b, "**Primary Classification:** %s\n", classification)
	}
	fmt.Fprintf(&b, "**Area:** %.2f sq meters\n", property.Area)
	fmt.Fprintf(&b, "**Coordinates (WGS84):** %v, %v\n", property.Coordinates.Latitude, property.Coordinates.Longitude)
	fmt.Fprintf(&b, "**Projected Coordinates (State Plane):** %.2f, %.2f\n", property.Projected.X, property.Projected.Y)
	if property.FloodZone != "" {
		fmt.Fprintf(&b, "**Flood Zone:** %s\n", property.FloodZone)
	}
	if geology := firstNonEmpty(property.PrimaryGeology, property.Geology); geology != "" {
		fmt.Fprintf(&b, "**Primary Geology:** %s\n", geology)
	}

	writeBreakdown(&b, "Municipality Breakdown", property.MunicipalityBreakdown)
	writeBreakdown(&b, "Barrio Breakdown", property.BarrioBreakdown)
	writeBreakdown(&b, "Zoning Breakdown", property.ZoningBreakdown)
	writeBreakdown(&b, "Classification Breakdown", property.ClassificationBreakdown)
	writeBreakdown(&b, "Geology Breakdown", property.GeologyBreakdown)

	if len(property.PermittedUses) > 0 {
		b.WriteString("**Permitted Uses:** \n")
		uses := property.PermittedUses
		extra := 0
		if len(uses) > 10 {
			extra = len(uses) - 10
			uses = uses[:10]
		}
		for _, use := range uses {
			fmt.Fprintf(&b, "   - %s\n", use)
		}
		if extra > 0 {
			fmt.Fprintf(&b, "   - ... and %d more\n", extra)
		}
	}

	return mcp.NewToolResultText(b.String()), nil
}

// writeBreakdown lists a multi-value attribute, but only when the parcel
// actually spans a boundary.
func writeBreakdown(b *strings.Builder, title string, breakdown []Breakdown) {
	if len(breakdown) < 2 {
		return
	}
	fmt.Fprintf(b, "**%s:**\n", title)
	for _, item := range breakdown {
		fmt.Fprintf(b, "   - %s: %v%%\n", item.Type, item.Percentage)
	}
}

func (ts *ToolServer) handleGetMunicipalities(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names := Municipalities()

	var b strings.Builder
	fmt.Fprintf(&b, "**Puerto Rico Municipalities (%d total):**\n\n", len(names))

	// Three columns for readability.
	columns := 3
	perColumn := (len(names) + columns - 1) / columns
	for i := 0; i < perColumn; i++ {
		var row strings.Builder
		for col := 0; col < columns; col++ {
			idx := col*perColumn + i
			if idx < len(names) {
				fmt.Fprintf(&row, "%-20s ", names[idx])
			}
		}
		b.WriteString(strings.TrimRight(row.String(), " "))
		b.WriteString("\n")
	}

	return mcp.NewToolResultText(b.String()), nil
}
