// Package gis looks up Puerto Rico property records in the MIPR ArcGIS
// service published by the Junta de Planificación and serves them as MCP
// tools.
package gis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alianzacap/jppr-front/internal/log"
)

// DefaultBaseURL is the public MIPR ArcGIS host. No authentication.
const DefaultBaseURL = "https://gis.jp.pr.gov"

// lookupPath resolves a point or catastro number to parcel attributes.
const lookupPath = "/2013_RecibidorGeoComentarios/SometerGeoComentario/pnt_to_loc82_2024"

const lookupTimeout = 30 * time.Second

// Breakdown is one entry of a multi-value attribute, for parcels that
// span boundaries: "R-I (97%), R-3 (2%)" yields two entries.
type Breakdown struct {
	Type       string  `json:"type"`
	Percentage float64 `json:"percentage"`
}

// Coordinates in WGS84.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ProjectedCoordinates in Puerto Rico State Plane (EPSG 32161).
type ProjectedCoordinates struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Property is a normalized MIPR parcel record.
type Property struct {
	ParcelID       string               `json:"parcelId"`
	Address        string               `json:"address"`
	Municipality   string               `json:"municipality"`
	Zone           string               `json:"zone"`
	LandUse        string               `json:"landUse"`
	Coordinates    Coordinates          `json:"coordinates"`
	Projected      ProjectedCoordinates `json:"coordinates_projected"`
	Area           float64              `json:"area"`
	Barrio         string               `json:"barrio,omitempty"`
	Zoning         string               `json:"zoning,omitempty"`
	Classification string               `json:"classification,omitempty"`
	FloodZone      string               `json:"floodZone,omitempty"`
	Geology        string               `json:"geology,omitempty"`
	PermittedUses  []string             `json:"permittedUses,omitempty"`

	// Dominant values for parcels spanning boundaries.
	PrimaryMunicipality   string `json:"primaryMunicipality,omitempty"`
	PrimaryBarrio         string `json:"primaryBarrio,omitempty"`
	PrimaryZoning         string `json:"primaryZoning,omitempty"`
	PrimaryClassification string `json:"primaryClassification,omitempty"`
	PrimaryGeology        string `json:"primaryGeology,omitempty"`

	MunicipalityBreakdown   []Breakdown `json:"municipalityBreakdown,omitempty"`
	BarrioBreakdown         []Breakdown `json:"barrioBreakdown,omitempty"`
	ZoningBreakdown         []Breakdown `json:"zoningBreakdown,omitempty"`
	ClassificationBreakdown []Breakdown `json:"classificationBreakdown,omitempty"`
	GeologyBreakdown        []Breakdown `json:"geologyBreakdown,omitempty"`
}

// Client queries the MIPR lookup endpoint. Concurrent lookups for the
// same parameters share one upstream request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	inflight   singleflight.Group
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: lookupTimeout},
	}
}

// fullCatastroRe matches the full catastro format xxx-xxx-xxx-xx-xxx.
// The lookup endpoint wants the form without the trailing segment.
var fullCatastroRe = regexp.MustCompile(`^(\d{3}-\d{3}-\d{3}-\d{2})-\d{3}$`)

// NormalizeCatastro strips the trailing -xxx segment from a full-format
// catastro number. Anything else passes through trimmed.
func NormalizeCatastro(catastro string) string {
	cleaned := strings.TrimSpace(catastro)
	if m := fullCatastroRe.FindStringSubmatch(cleaned); m != nil {
		return m[1]
	}
	return cleaned
}

// LookupByCatastro resolves a catastro (parcel) number. A 404 or a
// "nodata" payload means the parcel is unknown and yields an empty slice.
func (c *Client) LookupByCatastro(ctx context.Context, catastro string) ([]Property, error) {
	params := url.Values{
		"ident": {"fromH_mipr2022"},
		"isr":   {"4326"},
		"osr":   {"32161"},
		"c":     {NormalizeCatastro(catastro)},
	}
	return c.lookup(ctx, params)
}

// LookupByCoordinates resolves a WGS84 point. input_X is longitude,
// input_Y latitude.
func (c *Client) LookupByCoordinates(ctx context.Context, latitude, longitude float64) ([]Property, error) {
	params := url.Values{
		"ident":   {"fromH_mipr2022"},
		"input_X": {strconv.FormatFloat(longitude, 'f', -1, 64)},
		"input_Y": {strconv.FormatFloat(latitude, 'f', -1, 64)},
		"isr":     {"4326"},
		"osr":     {"32161"},
		"method":  {""},
	}
	return c.lookup(ctx, params)
}

// PropertyDetails returns the record for a catastro number, or nil when
// the parcel is unknown.
func (c *Client) PropertyDetails(ctx context.Context, catastro string) (*Property, error) {
	properties, err := c.LookupByCatastro(ctx, catastro)
	if err != nil {
		return nil, err
	}
	if len(properties) == 0 {
		return nil, nil
	}
	return &properties[0], nil
}

func (c *Client) lookup(ctx context.Context, params url.Values) ([]Property, error) {
	reqURL := c.baseURL + lookupPath + "?" + params.Encode()
	result, err, _ := c.inflight.Do(reqURL, func() (any, error) {
		return c.fetch(ctx, reqURL)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Property), nil
}

func (c *Client) fetch(ctx context.Context, reqURL string) ([]Property, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build MIPR request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "jppr-front/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("MIPR lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read MIPR response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("MIPR lookup returned status %d: %s", resp.StatusCode, log.Truncate(string(body), 200))
	}

	return parseLookupResponse(body)
}

// lookupEnvelope is the MIPR response shape. atributos is either the
// attribute object or the literal string "nodata".
type lookupEnvelope struct {
	Dato struct {
		Atributos json.RawMessage `json:"atributos"`
	} `json:"dato"`
}

type parcelAttributes struct {
	Catastro     string              `json:"Catastro"`
	Municipio    string              `json:"Municipio"`
	MuniMulti    string              `json:"Muni_Multi"`
	Barrio       string              `json:"Barrio"`
	BarrioMulti  string              `json:"Barrio_Multi"`
	Calificacion string              `json:"Calificacion"`
	Clasificac   string              `json:"Clasificacion"`
	Usos         string              `json:"Usos"`
	UsosRC2020   map[string][]string `json:"UsosRC2020"`
	InunZona     string              `json:"Inun_Zona"`
	SueloGeolo   string              `json:"Suelo_Geolo"`
	Lat          string              `json:"Lat"`
	Lon          string              `json:"Lon"`
	AreaGeom     string              `json:"Area_Geom"`
	CoordX       string              `json:"Coord_X"`
	CoordY       string              `json:"Coord_Y"`
}

func parseLookupResponse(body []byte) ([]Property, error) {
	var envelope lookupEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parse MIPR response: %w", err)
	}
	if len(envelope.Dato.Atributos) == 0 {
		return nil, nil
	}

	// "nodata" means the point or catastro resolved to nothing.
	var nodata string
	if err := json.Unmarshal(envelope.Dato.Atributos, &nodata); err == nil {
		return nil, nil
	}

	var attrs parcelAttributes
	if err := json.Unmarshal(envelope.Dato.Atributos, &attrs); err != nil {
		return nil, fmt.Errorf("parse MIPR attributes: %w", err)
	}

	if attrs.Catastro == "" && attrs.Municipio == "" && (attrs.Lat == "" || attrs.Lat == "0") {
		return nil, nil
	}

	property := Property{
		ParcelID:     attrs.Catastro,
		Address:      buildAddress(attrs),
		Municipality: preferredOrMulti(attrs.Municipio, attrs.MuniMulti),
		Zone:         buildZoneInfo(attrs),
		LandUse:      firstNonEmpty(attrs.Usos, attrs.Clasificac),
		Coordinates: Coordinates{
			Latitude:  parseFloat(attrs.Lat),
			Longitude: parseFloat(attrs.Lon),
		},
		Projected: ProjectedCoordinates{
			X: parseFloat(attrs.CoordX),
			Y: parseFloat(attrs.CoordY),
		},
		Area:           parseFloat(attrs.AreaGeom),
		Barrio:         preferredOrMulti(attrs.Barrio, attrs.BarrioMulti),
		Zoning:         attrs.Calificacion,
		Classification: attrs.Clasificac,
		FloodZone:      attrs.InunZona,
		Geology:        attrs.SueloGeolo,
		PermittedUses:  flattenPermittedUses(attrs.UsosRC2020),

		MunicipalityBreakdown:   parseMultiValue(attrs.MuniMulti),
		BarrioBreakdown:         parseMultiValue(attrs.BarrioMulti),
		ZoningBreakdown:         parseMultiValue(attrs.Calificacion),
		ClassificationBreakdown: parseMultiValue(attrs.Clasificac),
		GeologyBreakdown:        parseMultiValue(attrs.SueloGeolo),

		PrimaryMunicipality:   firstNonEmpty(primaryValue(attrs.MuniMulti), attrs.Municipio),
		PrimaryBarrio:         firstNonEmpty(primaryValue(attrs.BarrioMulti), attrs.Barrio),
		PrimaryZoning:         primaryValue(attrs.Calificacion),
		PrimaryClassification: primaryValue(attrs.Clasificac),
		PrimaryGeology:        primaryValue(attrs.SueloGeolo),
	}

	return []Property{property}, nil
}

func buildAddress(attrs parcelAttributes) string {
	var parts []string
	if barrio := firstNonEmpty(attrs.Barrio, attrs.BarrioMulti); barrio != "" {
		parts = append(parts, "Barrio "+barrio)
	}
	if muni := firstNonEmpty(attrs.Municipio, attrs.MuniMulti); muni != "" {
		parts = append(parts, muni)
	}
	parts = append(parts, "Puerto Rico")
	return strings.Join(parts, ", ")
}

func buildZoneInfo(attrs parcelAttributes) string {
	var parts []string
	if attrs.Calificacion != "" {
		parts = append(parts, "Zoning: "+attrs.Calificacion)
	}
	if attrs.Clasificac != "" {
		parts = append(parts, "Classification: "+attrs.Clasificac)
	}
	if attrs.InunZona != "" {
		parts = append(parts, "Flood Zone: "+attrs.InunZona)
	}
	return strings.Join(parts, " | ")
}

func flattenPermittedUses(usos map[string][]string) []string {
	if len(usos) == 0 {
		return nil
	}
	keys := make([]string, 0, len(usos))
	for key := range usos {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var all []string
	for _, key := range keys {
		all = append(all, usos[key]...)
	}
	return all
}

// preferredOrMulti picks the multi-value form when present since it
// carries the boundary breakdown.
func preferredOrMulti(single, multi string) string {
	if multi != "" {
		return multi
	}
	return single
}

// multiValueRe matches "Type (97%)" entries, percentages may carry
// decimals.
var multiValueRe = regexp.MustCompile(`([^(,]+?)\s*\((\d+(?:\.\d+)?)%\)`)

func parseMultiValue(value string) []Breakdown {
	if value == "" {
		return nil
	}
	matches := multiValueRe.FindAllStringSubmatch(value, -1)
	if len(matches) == 0 {
		return nil
	}
	breakdown := make([]Breakdown, 0, len(matches))
	for _, m := range matches {
		pct, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		breakdown = append(breakdown, Breakdown{Type: strings.TrimSpace(m[1]), Percentage: pct})
	}
	return breakdown
}

// primaryValue returns the highest-percentage entry of a multi-value
// field, or empty when the field has no percentage structure.
func primaryValue(value string) string {
	breakdown := parseMultiValue(value)
	if len(breakdown) == 0 {
		return ""
	}
	primary := breakdown[0]
	for _, item := range breakdown[1:] {
		if item.Percentage > primary.Percentage {
			primary = item
		}
	}
	return primary.Type
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
