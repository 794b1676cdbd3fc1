package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/Territoires/internal/config"
	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/scoring"
	"github.com/MikeSquared-Agency/Territoires/internal/snapshot"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

// CatalogHandler serves the read-only parts of the snapshot: variables,
// reference ranges and unit details.
type CatalogHandler struct {
	holder   *snapshot.Holder
	defaults config.ScoringConfig
}

func NewCatalogHandler(holder *snapshot.Holder, defaults config.ScoringConfig) *CatalogHandler {
	return &CatalogHandler{holder: holder, defaults: defaults}
}

func (h *CatalogHandler) lookup(raw string) (*territory.Dataset, *refstats.Catalog, error) {
	snap := h.holder.Load()
	if snap == nil {
		return nil, nil, errNoSnapshot
	}
	if raw == "" {
		raw = string(territory.Departement)
	}
	g, err := territory.ParseGranularity(raw)
	if err != nil {
		return nil, nil, errors.Join(scoring.ErrUnknownGranularity, err)
	}
	ds, cat, ok := snap.Get(g)
	if !ok {
		return nil, nil, errors.Join(scoring.ErrUnknownGranularity, errors.New("no data loaded for "+string(g)))
	}
	return ds, cat, nil
}

type VariablesResponse struct {
	Granularity territory.Granularity `json:"granularity"`
	Socio       []refstats.Descriptor `json:"socio"`
	Access      []refstats.Descriptor `json:"access"`
	Defaults    SelectionDefaults     `json:"defaults"`
}

type SelectionDefaults struct {
	Variables      []string `json:"variables"`
	Weight         float64  `json:"weight"`
	AccessVariable string   `json:"access_variable"`
	Alpha          float64  `json:"alpha"`
}

// Variables lists the selectable indicators of a granularity.
// GET /api/v1/variables?granularity=commune
func (h *CatalogHandler) Variables(w http.ResponseWriter, r *http.Request) {
	_, cat, err := h.lookup(r.URL.Query().Get("granularity"))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := VariablesResponse{
		Granularity: cat.Granularity(),
		Socio:       descriptors(cat, refstats.CategorySocio),
		Access:      descriptors(cat, refstats.CategoryAccess),
		Defaults: SelectionDefaults{
			Variables:      h.defaults.DefaultVariables,
			Weight:         h.defaults.DefaultWeight,
			AccessVariable: h.defaults.DefaultAccess,
			Alpha:          h.defaults.DefaultAlpha,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func descriptors(cat *refstats.Catalog, c refstats.Category) []refstats.Descriptor {
	labels := cat.Labels(c)
	out := make([]refstats.Descriptor, 0, len(labels))
	for _, l := range labels {
		if d, ok := cat.Lookup(l); ok {
			out = append(out, d)
		}
	}
	return out
}

// DisplayRange returns the color-scale anchors of a raw variable from its
// national reference statistics. Score ranges come with each scoring run.
// GET /api/v1/display-range?granularity=commune&column=tx_pauvrete
func (h *CatalogHandler) DisplayRange(w http.ResponseWriter, r *http.Request) {
	ds, cat, err := h.lookup(r.URL.Query().Get("granularity"))
	if err != nil {
		writeError(w, err)
		return
	}
	column := r.URL.Query().Get("column")
	if label := r.URL.Query().Get("label"); column == "" && label != "" {
		d, ok := cat.Lookup(label)
		if !ok {
			writeError(w, errors.Join(scoring.ErrUnknownVariable, errors.New(label)))
			return
		}
		column = d.Column
	}
	if column == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "column or label required"})
		return
	}
	if territory.IsScoreColumn(column) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "score ranges depend on the selection; run a scoring request"})
		return
	}
	dr, err := scoring.DisplayRangeFor(column, cat, ds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dr)
}

type UnitResponse struct {
	Code           string              `json:"code"`
	Name           string              `json:"name"`
	Granularity    string              `json:"granularity"`
	DepartmentCode string              `json:"department_code"`
	Population     *float64            `json:"population,omitempty"`
	Indicators     map[string]*float64 `json:"indicators"`
}

func unitResponse(ds *territory.Dataset, u *territory.Unit) UnitResponse {
	resp := UnitResponse{
		Code:           u.Code,
		Name:           u.Name,
		Granularity:    string(ds.Granularity()),
		DepartmentCode: u.DepartmentCode,
		Population:     u.Population,
		Indicators:     make(map[string]*float64),
	}
	for _, col := range ds.Columns() {
		resp.Indicators[col] = u.Value(col)
	}
	return resp
}

// Unit returns the raw indicators of one unit.
// GET /api/v1/units/{granularity}/{code}
func (h *CatalogHandler) Unit(w http.ResponseWriter, r *http.Request) {
	ds, _, err := h.lookup(chi.URLParam(r, "granularity"))
	if err != nil {
		writeError(w, err)
		return
	}
	code, err := territory.NormalizeCode(chi.URLParam(r, "code"), ds.Granularity())
	if err != nil {
		writeError(w, errors.Join(scoring.ErrUnknownUnit, err))
		return
	}
	u, ok := ds.Unit(code)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unit not found"})
		return
	}
	writeJSON(w, http.StatusOK, unitResponse(ds, u))
}

// Locate finds the unit whose polygon contains a map click.
// GET /api/v1/locate?granularity=departement&lon=2.35&lat=48.85
func (h *CatalogHandler) Locate(w http.ResponseWriter, r *http.Request) {
	ds, _, err := h.lookup(r.URL.Query().Get("granularity"))
	if err != nil {
		writeError(w, err)
		return
	}
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if errLon != nil || errLat != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lon and lat required"})
		return
	}
	u, ok := ds.Locate(lon, lat)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no unit at this position"})
		return
	}
	writeJSON(w, http.StatusOK, unitResponse(ds, u))
}

type SnapshotResponse struct {
	ID            string         `json:"id"`
	LoadedAt      time.Time      `json:"loaded_at"`
	Granularities []string       `json:"granularities"`
	Units         map[string]int `json:"units"`
	Variables     map[string]int `json:"variables"`
}

// Snapshot describes the data currently served.
// GET /api/v1/snapshot
func (h *CatalogHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap := h.holder.Load()
	if snap == nil {
		writeError(w, errNoSnapshot)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(snap))
}

func snapshotResponse(snap *snapshot.Snapshot) SnapshotResponse {
	units, variables := snap.Counts()
	resp := SnapshotResponse{
		ID:        snap.ID.String(),
		LoadedAt:  snap.LoadedAt,
		Units:     units,
		Variables: variables,
	}
	for _, g := range snap.Granularities() {
		resp.Granularities = append(resp.Granularities, string(g))
	}
	return resp
}
