package scoring

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/Territoires/internal/config"
	"github.com/MikeSquared-Agency/Territoires/internal/refstats"
	"github.com/MikeSquared-Agency/Territoires/internal/territory"
)

var ErrUnknownUnit = errors.New("unknown territorial unit")

// Selection is the caller's choice of variables, weights, professional
// category and blend. The pipeline keeps no state between selections.
type Selection struct {
	Granularity    territory.Granularity `json:"granularity"`
	Variables      []string              `json:"variables"`
	Weights        Weights               `json:"weights"`
	AccessVariable string                `json:"access_variable"`
	Alpha          float64               `json:"alpha"`
	Department     string                `json:"department,omitempty"`
}

// Result is the outcome of one scoring run over the selected view.
type Result struct {
	Selection      Selection               `json:"selection"`
	Dataset        *territory.Dataset      `json:"-"`
	Variables      []WeightedVariable      `json:"variables"`
	Access         *refstats.Descriptor    `json:"access,omitempty"`
	Skipped        []string                `json:"skipped"`
	AccessResolved bool                    `json:"access_resolved"`
	Ranking        []RankRow               `json:"ranking"`
	Classes        *Classification         `json:"classes"`
	Priority       []PriorityUnit          `json:"priority"`
	DisplayRanges  map[string]DisplayRange `json:"display_ranges"`
	Units          int                     `json:"units"`
	Scored         int                     `json:"scored"`
}

// Pipeline runs socio, access and double scoring in dependency order.
type Pipeline struct {
	classes []config.ClassDef
	logger  *slog.Logger
}

// NewPipeline creates a Pipeline with the configured vulnerability classes.
func NewPipeline(classes []config.ClassDef, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		classes: classes,
		logger:  logger,
	}
}

// Run scores the view of ds selected by sel. Reference statistics always
// come from cat, which describes the full national population, so a
// département view stays comparable with the national one.
//
// Contract violations (alpha, weights, granularity) fail the run. Data
// sparsity does not: unknown labels are reported in Skipped and an unknown
// access category leaves score_access undefined.
func (p *Pipeline) Run(cat *refstats.Catalog, ds *territory.Dataset, sel Selection) (*Result, error) {
	if err := p.check(cat, ds, &sel); err != nil {
		return nil, err
	}

	vars, skipped, err := ResolveSocio(cat, sel.Variables, sel.Weights)
	if err != nil {
		return nil, err
	}
	for _, label := range skipped {
		p.logger.Debug("variable skipped", "granularity", ds.Granularity(), "label", label)
	}

	access, err := ResolveAccess(cat, sel.AccessVariable)
	if err != nil {
		p.logger.Debug("access variable unresolved", "granularity", ds.Granularity(), "label", sel.AccessVariable, "error", err)
		access = nil
		if sel.AccessVariable != "" {
			skipped = append(skipped, sel.AccessVariable)
		}
	}

	view := ds.Filter(sel.Department)
	scored, err := ComputeSocioScore(view, vars)
	if err != nil {
		return nil, fmt.Errorf("socio score: %w", err)
	}
	scored, err = ComputeAccessScore(scored, access)
	if err != nil {
		return nil, fmt.Errorf("access score: %w", err)
	}
	scored, err = ComputeDoubleVulnerability(scored, sel.Alpha)
	if err != nil {
		return nil, fmt.Errorf("double vulnerability: %w", err)
	}

	res := &Result{
		Selection:      sel,
		Dataset:        scored,
		Variables:      vars,
		Access:         access,
		Skipped:        skipped,
		AccessResolved: access != nil,
		Priority:       PriorityFrontier(scored),
		DisplayRanges:  make(map[string]DisplayRange, len(territory.ScoreColumns)),
		Units:          scored.Len(),
		Scored:         len(scored.Values(territory.ColumnDouble)),
	}
	res.Classes = Classify(scored, p.classes)
	res.Ranking = Rank(scored, res.Classes, 0)
	for _, col := range territory.ScoreColumns {
		r, err := DisplayRangeFor(col, cat, scored)
		if err != nil {
			return nil, err
		}
		res.DisplayRanges[col] = r
	}

	p.logger.Debug("scores computed",
		"granularity", ds.Granularity(),
		"department", sel.Department,
		"variables", len(vars),
		"skipped", len(skipped),
		"units", res.Units,
		"scored", res.Scored,
	)
	return res, nil
}

// Explain runs sel over the whole dataset and breaks down the scores of the
// unit with the given code.
func (p *Pipeline) Explain(cat *refstats.Catalog, ds *territory.Dataset, sel Selection, code string) (*Explanation, error) {
	sel.Department = ""
	res, err := p.Run(cat, ds, sel)
	if err != nil {
		return nil, err
	}
	u, ok := res.Dataset.Unit(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrUnknownUnit, ds.Granularity(), code)
	}
	return &Explanation{
		Code:   u.Code,
		Name:   u.Name,
		Socio:  Explain(u, res.Variables),
		Access: ExplainAccess(u, res.Access),
		Alpha:  sel.Alpha,
		Scores: u.Scores,
	}, nil
}

func (p *Pipeline) check(cat *refstats.Catalog, ds *territory.Dataset, sel *Selection) error {
	if cat == nil || ds == nil {
		return fmt.Errorf("%w: no data loaded for %q", ErrUnknownGranularity, sel.Granularity)
	}
	if sel.Granularity == "" {
		sel.Granularity = ds.Granularity()
	}
	if sel.Granularity != ds.Granularity() || cat.Granularity() != ds.Granularity() {
		return fmt.Errorf("%w: selection %q, dataset %q, catalog %q",
			ErrUnknownGranularity, sel.Granularity, ds.Granularity(), cat.Granularity())
	}
	if err := ValidateAlpha(sel.Alpha); err != nil {
		return err
	}
	return sel.Weights.Validate(sel.Variables)
}
