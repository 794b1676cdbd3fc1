package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Territoires/internal/config"
	"github.com/MikeSquared-Agency/Territoires/internal/hermes"
	"github.com/MikeSquared-Agency/Territoires/internal/metrics"
	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/scoring"
	"github.com/MikeSquared-Agency/Territoires/internal/snapshot"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

const topCodes = 10

var errNoSnapshot = errors.New("no data loaded yet")

type ScoresHandler struct {
	holder   *snapshot.Holder
	pipeline *scoring.Pipeline
	hermes   hermes.Client
	defaults config.ScoringConfig
	logger   *slog.Logger
}

func NewScoresHandler(holder *snapshot.Holder, p *scoring.Pipeline, h hermes.Client, defaults config.ScoringConfig, logger *slog.Logger) *ScoresHandler {
	return &ScoresHandler{holder: holder, pipeline: p, hermes: h, defaults: defaults, logger: logger}
}

// ScoreRequest is a user selection. Omitted fields take the configured
// defaults: a nil variables list selects the default variables, nil weights
// give every selected variable the default weight. An explicit empty list
// selects nothing and leaves score_socio undefined.
type ScoreRequest struct {
	Granularity    string             `json:"granularity"`
	Variables      []string           `json:"variables"`
	Weights        map[string]float64 `json:"weights"`
	AccessVariable *string            `json:"access_variable"`
	Alpha          *float64           `json:"alpha"`
	Department     string             `json:"department,omitempty"`
	Limit          int                `json:"limit,omitempty"`
	Code           string             `json:"code,omitempty"`
}

type ScoreResponse struct {
	RunID      string `json:"run_id"`
	SnapshotID string `json:"snapshot_id"`
	*scoring.Result
}

type scoreContext struct {
	snap *snapshot.Snapshot
	ds   *territory.Dataset
	cat  *refstats.Catalog
	sel  scoring.Selection
}

// prepare resolves the request against the current snapshot.
func (h *ScoresHandler) prepare(req ScoreRequest) (*scoreContext, error) {
	snap := h.holder.Load()
	if snap == nil {
		return nil, errNoSnapshot
	}
	if req.Granularity == "" {
		req.Granularity = string(territory.Departement)
	}
	g, err := territory.ParseGranularity(req.Granularity)
	if err != nil {
		return nil, errors.Join(scoring.ErrUnknownGranularity, err)
	}
	ds, cat, ok := snap.Get(g)
	if !ok {
		return nil, errors.Join(scoring.ErrUnknownGranularity, errors.New("no data loaded for "+string(g)))
	}

	sel := scoring.Selection{
		Granularity:    g,
		Variables:      req.Variables,
		Weights:        req.Weights,
		AccessVariable: h.defaults.DefaultAccess,
		Alpha:          h.defaults.DefaultAlpha,
	}
	if sel.Variables == nil {
		sel.Variables = h.defaults.DefaultVariables
	}
	if sel.Weights == nil {
		sel.Weights = scoring.UniformWeights(sel.Variables, h.defaults.DefaultWeight)
	}
	if req.AccessVariable != nil {
		sel.AccessVariable = *req.AccessVariable
	}
	if req.Alpha != nil {
		sel.Alpha = *req.Alpha
	}
	if req.Department != "" {
		dep, err := territory.NormalizeCode(req.Department, territory.Departement)
		if err != nil {
			return nil, errors.Join(scoring.ErrUnknownUnit, err)
		}
		sel.Department = dep
	}
	return &scoreContext{snap: snap, ds: ds, cat: cat, sel: sel}, nil
}

func (h *ScoresHandler) run(w http.ResponseWriter, r *http.Request) (*scoreContext, *scoring.Result, string, bool) {
	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return nil, nil, "", false
	}
	sc, err := h.prepare(req)
	if err != nil {
		writeError(w, err)
		return nil, nil, "", false
	}

	g := string(sc.sel.Granularity)
	start := time.Now()
	res, err := h.pipeline.Run(sc.cat, sc.ds, sc.sel)
	elapsed := time.Since(start)
	metrics.ScoreDuration.WithLabelValues(g).Observe(elapsed.Seconds())
	if err != nil {
		metrics.ScoreRuns.WithLabelValues(g, "error").Inc()
		writeError(w, err)
		return nil, nil, "", false
	}
	metrics.ScoreRuns.WithLabelValues(g, "ok").Inc()
	metrics.SkippedVariables.WithLabelValues(g).Add(float64(len(res.Skipped)))

	runID := uuid.New().String()
	h.publish(runID, res, elapsed)
	if req.Limit > 0 {
		if len(res.Ranking) > req.Limit {
			res.Ranking = res.Ranking[:req.Limit]
		}
		if len(res.Priority) > req.Limit {
			res.Priority = res.Priority[:req.Limit]
		}
	}
	return sc, res, runID, true
}

// Score runs the pipeline and returns the ranking, classes and display
// ranges of the selected view.
// POST /api/v1/scores
func (h *ScoresHandler) Score(w http.ResponseWriter, r *http.Request) {
	sc, res, runID, ok := h.run(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ScoreResponse{RunID: runID, SnapshotID: sc.snap.ID.String(), Result: res})
}

// GeoJSON runs the pipeline and returns the scored view as a feature
// collection for the map layer.
// POST /api/v1/scores/geojson
func (h *ScoresHandler) GeoJSON(w http.ResponseWriter, r *http.Request) {
	_, res, _, ok := h.run(w, r)
	if !ok {
		return
	}
	fc := res.Dataset.FeatureCollection(func(u *territory.Unit) map[string]interface{} {
		props := map[string]interface{}{
			"code":                 u.Code,
			"name":                 u.Name,
			"department_code":      u.DepartmentCode,
			territory.ColumnSocio:  u.Scores.Socio,
			territory.ColumnAccess: u.Scores.Access,
			territory.ColumnDouble: u.Scores.Double,
			"class":                res.Classes.Class(u.Code),
		}
		if u.Population != nil {
			props["population"] = *u.Population
		}
		for _, v := range res.Variables {
			props[v.Column] = u.Value(v.Column)
		}
		if res.Access != nil {
			props[res.Access.Column] = u.Value(res.Access.Column)
		}
		return props
	})
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		h.logger.Warn("failed to encode geojson", "error", err)
	}
}

// Explain breaks down the scores of one unit under the request's selection.
// POST /api/v1/explain
func (h *ScoresHandler) Explain(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code required"})
		return
	}
	sc, err := h.prepare(req)
	if err != nil {
		writeError(w, err)
		return
	}
	code, err := territory.NormalizeCode(req.Code, sc.sel.Granularity)
	if err != nil {
		writeError(w, errors.Join(scoring.ErrUnknownUnit, err))
		return
	}
	exp, err := h.pipeline.Explain(sc.cat, sc.ds, sc.sel, code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (h *ScoresHandler) publish(runID string, res *scoring.Result, elapsed time.Duration) {
	var top []string
	for _, row := range res.Ranking {
		if row.Double == nil || len(top) == topCodes {
			break
		}
		top = append(top, row.Code)
	}
	ev := hermes.ScoresComputedEvent{
		RunID:          runID,
		Granularity:    string(res.Selection.Granularity),
		Department:     res.Selection.Department,
		Variables:      res.Selection.Variables,
		Weights:        res.Selection.Weights,
		AccessVariable: res.Selection.AccessVariable,
		Alpha:          res.Selection.Alpha,
		Skipped:        res.Skipped,
		Units:          res.Units,
		Scored:         res.Scored,
		TopCodes:       top,
		DurationMs:     float64(elapsed.Microseconds()) / 1000,
		Timestamp:      time.Now().UTC(),
	}
	if err := h.hermes.Publish(hermes.SubjectScoresComputed(ev.Granularity), ev); err != nil {
		h.logger.Warn("failed to publish scores event", "run_id", runID, "error", err)
	}
}

// statusFor maps pipeline errors to HTTP statuses. Contract violations are
// the caller's fault.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errNoSnapshot):
		return http.StatusServiceUnavailable
	case errors.Is(err, scoring.ErrUnknownUnit):
		return http.StatusNotFound
	case errors.Is(err, scoring.ErrInvalidAlpha),
		errors.Is(err, scoring.ErrNegativeWeight),
		errors.Is(err, scoring.ErrUnknownVariable),
		errors.Is(err, scoring.ErrUnknownGranularity):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
