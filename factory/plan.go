/*
Package factory provides YAML/JSON to Go conversion of submitted plans.

PURPOSE:
  Converts a plan fixture (one application with its submitted compartments
  and proposed felling and restocking) into review types, and seeds it into
  a store. Fixtures drive the `seed` command, local development and tests.

  YAML is a superset of JSON, so both formats go through yaml.v3.

FIXTURE SCHEMA:
  application:
    id: 6f1c...            # optional, generated when absent
    reference: FLO-2024-0001
    property_name: Oak Wood
    applicant:      {id, full_name, email}
    field_manager:  {id, full_name, email}
    woodland_owner: {id, contact_name, contact_email, organisation_name}
    fc_area:        {code, name, admin_hub_name, admin_hub_address}
  compartments:
    - number: "1"
      sub_compartment: a
      total_hectares: "4.2"
      felling:
        - operation: ClearFelling
          area: "2.5"
          species: [OAK, BEECH]
          is_restocking: true
          restocking:
            - proposal: ReplantTheFelledArea
              area: "2.5"
              density: "1600"
              species: [{species: OAK, percentage: "100"}]
            - proposal: PlantAnAlternativeArea
              compartment: "2"   # number+sub-compartment of the alternative compartment
              area: "1"

  Decimal values are strings so they round-trip exactly.

USAGE:
  plan, err := factory.LoadPlan("testdata/oak-wood.yaml")
  if err != nil { ... }
  err = plan.Seed(ctx, store)

SEE ALSO:
  - review/types.go: target types
  - store/sqlite/reference.go: SeedApplication, SaveProposedPlan
*/
package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/forestry/woodland-review/review"
)

// =============================================================================
// FIXTURE SCHEMA TYPES
// =============================================================================

// PlanYAML is the fixture representation of one application's plan.
type PlanYAML struct {
	Application  ApplicationYAML   `yaml:"application"`
	Compartments []CompartmentYAML `yaml:"compartments"`
}

type ApplicationYAML struct {
	ID            string    `yaml:"id"`
	Reference     string    `yaml:"reference"`
	PropertyName  string    `yaml:"property_name"`
	Status        string    `yaml:"status"`
	Applicant     UserYAML  `yaml:"applicant"`
	FieldManager  *UserYAML `yaml:"field_manager"`
	WoodlandOwner OwnerYAML `yaml:"woodland_owner"`
	FcArea        *AreaYAML `yaml:"fc_area"`
}

type UserYAML struct {
	ID       string `yaml:"id"`
	FullName string `yaml:"full_name"`
	Email    string `yaml:"email"`
}

type OwnerYAML struct {
	ID               string `yaml:"id"`
	ContactName      string `yaml:"contact_name"`
	ContactEmail     string `yaml:"contact_email"`
	OrganisationName string `yaml:"organisation_name"`
}

type AreaYAML struct {
	Code            string `yaml:"code"`
	Name            string `yaml:"name"`
	AdminHubName    string `yaml:"admin_hub_name"`
	AdminHubAddress string `yaml:"admin_hub_address"`
}

type CompartmentYAML struct {
	ID             string        `yaml:"id"`
	Number         string        `yaml:"number"`
	SubCompartment string        `yaml:"sub_compartment"`
	Designation    string        `yaml:"designation"`
	TotalHectares  string        `yaml:"total_hectares"`
	Felling        []FellingYAML `yaml:"felling"`
}

type FellingYAML struct {
	ID                             string           `yaml:"id"`
	Operation                      string           `yaml:"operation"`
	Area                           string           `yaml:"area"`
	NumberOfTrees                  *int             `yaml:"number_of_trees"`
	IsTreeMarkingUsed              *bool            `yaml:"is_tree_marking_used"`
	TreeMarking                    *string          `yaml:"tree_marking"`
	IsPartOfTreePreservationOrder  *bool            `yaml:"is_part_of_tpo"`
	TreePreservationOrderReference *string          `yaml:"tpo_reference"`
	IsWithinConservationArea       *bool            `yaml:"is_within_conservation_area"`
	ConservationAreaReference      *string          `yaml:"conservation_area_reference"`
	EstimatedTotalFellingVolume    string           `yaml:"estimated_volume"`
	IsRestocking                   *bool            `yaml:"is_restocking"`
	NoRestockingReason             *string          `yaml:"no_restocking_reason"`
	Species                        []string         `yaml:"species"`
	Restocking                     []RestockingYAML `yaml:"restocking"`
}

type RestockingYAML struct {
	ID                         string        `yaml:"id"`
	Proposal                   string        `yaml:"proposal"`
	Compartment                string        `yaml:"compartment"`
	Area                       string        `yaml:"area"`
	Density                    string        `yaml:"density"`
	PercentOpenSpace           string        `yaml:"percent_open_space"`
	PercentNaturalRegeneration string        `yaml:"percent_natural_regeneration"`
	NumberOfTrees              *int          `yaml:"number_of_trees"`
	Species                    []SpeciesYAML `yaml:"species"`
}

type SpeciesYAML struct {
	Species    string `yaml:"species"`
	Percentage string `yaml:"percentage"`
}

// =============================================================================
// PLAN
// =============================================================================

// Plan is a converted fixture.
type Plan struct {
	Application  review.ApplicationSummary
	Owner        review.WoodlandOwner
	Area         *review.FcArea
	Users        []review.UserAccount
	Compartments []review.Compartment
	Proposed     []review.ProposedFellingDetail
}

// Seeder receives a converted plan.
type Seeder interface {
	SeedApplication(ctx context.Context, app review.ApplicationSummary, owner *review.WoodlandOwner, area *review.FcArea) error
	SaveUserAccount(ctx context.Context, u review.UserAccount) error
	SaveProposedPlan(ctx context.Context, applicationID uuid.UUID, compartments []review.Compartment, details []review.ProposedFellingDetail) error
}

// Seed writes the plan's application, users and proposed plan.
func (p *Plan) Seed(ctx context.Context, s Seeder) error {
	for _, u := range p.Users {
		if err := s.SaveUserAccount(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
	}
	if err := s.SeedApplication(ctx, p.Application, &p.Owner, p.Area); err != nil {
		return fmt.Errorf("seed application %s: %w", p.Application.Reference, err)
	}
	if err := s.SaveProposedPlan(ctx, p.Application.ID, p.Compartments, p.Proposed); err != nil {
		return fmt.Errorf("seed plan %s: %w", p.Application.Reference, err)
	}
	return nil
}

// =============================================================================
// LOADING
// =============================================================================

// LoadPlan reads one fixture file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return plan, nil
}

// LoadPlans reads every .yaml, .yml and .json fixture in dir, in name order.
func LoadPlans(dir string) ([]*Plan, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
	}
	sort.Strings(names)

	plans := make([]*Plan, 0, len(names))
	for _, name := range names {
		plan, err := LoadPlan(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// ParsePlan converts YAML or JSON fixture bytes.
func ParsePlan(data []byte) (*Plan, error) {
	var py PlanYAML
	if err := yaml.Unmarshal(data, &py); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return FromYAML(py)
}

// FromYAML converts a parsed fixture. Missing ids are generated.
func FromYAML(py PlanYAML) (*Plan, error) {
	if py.Application.Reference == "" {
		return nil, fmt.Errorf("application.reference is required")
	}

	var err error
	p := &Plan{}
	app := &p.Application
	if app.ID, err = parseID(py.Application.ID); err != nil {
		return nil, fmt.Errorf("application.id: %w", err)
	}
	app.Reference = py.Application.Reference
	app.PropertyName = py.Application.PropertyName
	app.Status = py.Application.Status
	if app.Status == "" {
		app.Status = "WoodlandOfficerReview"
	}

	applicant, err := parseUser(py.Application.Applicant, "Applicant")
	if err != nil {
		return nil, fmt.Errorf("application.applicant: %w", err)
	}
	app.ApplicantID = applicant.ID
	p.Users = append(p.Users, applicant)

	if py.Application.FieldManager != nil {
		fm, err := parseUser(*py.Application.FieldManager, "FieldManager")
		if err != nil {
			return nil, fmt.Errorf("application.field_manager: %w", err)
		}
		app.AssignedFieldManagerID = &fm.ID
		p.Users = append(p.Users, fm)
	}

	owner := py.Application.WoodlandOwner
	if p.Owner.ID, err = parseID(owner.ID); err != nil {
		return nil, fmt.Errorf("application.woodland_owner.id: %w", err)
	}
	p.Owner.ContactName = owner.ContactName
	p.Owner.ContactEmail = owner.ContactEmail
	p.Owner.OrganisationName = owner.OrganisationName
	app.WoodlandOwnerID = p.Owner.ID

	if a := py.Application.FcArea; a != nil {
		p.Area = &review.FcArea{Code: a.Code, Name: a.Name, AdminHubName: a.AdminHubName, AdminHubAddr: a.AdminHubAddress}
		app.FcAreaCode = a.Code
	}

	// Compartments first: alternative-area restocking refers to them by name.
	byName := make(map[string]uuid.UUID, len(py.Compartments))
	for i, cy := range py.Compartments {
		c, err := parseCompartment(cy)
		if err != nil {
			return nil, fmt.Errorf("compartments[%d]: %w", i, err)
		}
		if _, dup := byName[c.DisplayName()]; dup {
			return nil, fmt.Errorf("compartments[%d]: compartment %s listed twice", i, c.DisplayName())
		}
		byName[c.DisplayName()] = c.ID
		p.Compartments = append(p.Compartments, c)
	}
	for i, cy := range py.Compartments {
		for j, fy := range cy.Felling {
			f, err := parseFelling(fy, p.Compartments[i].ID, byName)
			if err != nil {
				return nil, fmt.Errorf("compartments[%d].felling[%d]: %w", i, j, err)
			}
			p.Proposed = append(p.Proposed, f)
		}
	}
	return p, nil
}

func parseCompartment(cy CompartmentYAML) (review.Compartment, error) {
	var (
		c   review.Compartment
		err error
	)
	if cy.Number == "" {
		return c, fmt.Errorf("number is required")
	}
	if c.ID, err = parseID(cy.ID); err != nil {
		return c, err
	}
	c.CompartmentNumber = cy.Number
	c.SubCompartmentName = cy.SubCompartment
	c.Designation = cy.Designation
	if c.TotalHectares, err = parseDecimal(cy.TotalHectares); err != nil {
		return c, fmt.Errorf("total_hectares: %w", err)
	}
	return c, nil
}

func parseFelling(fy FellingYAML, compartmentID uuid.UUID, compartments map[string]uuid.UUID) (review.ProposedFellingDetail, error) {
	var (
		f   review.ProposedFellingDetail
		err error
	)
	if f.ID, err = parseID(fy.ID); err != nil {
		return f, err
	}
	f.CompartmentID = compartmentID
	f.OperationType = review.FellingOperationType(fy.Operation)
	if !f.OperationType.Valid() {
		return f, fmt.Errorf("unknown operation %q", fy.Operation)
	}
	if f.AreaToBeFelled, err = parseDecimal(fy.Area); err != nil {
		return f, fmt.Errorf("area: %w", err)
	}
	if f.EstimatedTotalFellingVolume, err = parseDecimal(fy.EstimatedTotalFellingVolume); err != nil {
		return f, fmt.Errorf("estimated_volume: %w", err)
	}
	f.NumberOfTrees = fy.NumberOfTrees
	f.IsTreeMarkingUsed = fy.IsTreeMarkingUsed
	f.TreeMarking = fy.TreeMarking
	f.IsPartOfTreePreservationOrder = fy.IsPartOfTreePreservationOrder
	f.TreePreservationOrderReference = fy.TreePreservationOrderReference
	f.IsWithinConservationArea = fy.IsWithinConservationArea
	f.ConservationAreaReference = fy.ConservationAreaReference
	f.IsRestocking = fy.IsRestocking
	f.NoRestockingReason = fy.NoRestockingReason
	for _, s := range fy.Species {
		f.Species = append(f.Species, review.FellingSpecies{Species: s})
	}

	for k, ry := range fy.Restocking {
		r, err := parseRestocking(ry, compartmentID, compartments)
		if err != nil {
			return f, fmt.Errorf("restocking[%d]: %w", k, err)
		}
		f.Restocking = append(f.Restocking, r)
	}
	return f, nil
}

func parseRestocking(ry RestockingYAML, fellingCompartment uuid.UUID, compartments map[string]uuid.UUID) (review.ProposedRestockingDetail, error) {
	var (
		r   review.ProposedRestockingDetail
		err error
	)
	if r.ID, err = parseID(ry.ID); err != nil {
		return r, err
	}
	r.ProposalType = review.RestockingProposalType(ry.Proposal)
	if !r.ProposalType.Valid() {
		return r, fmt.Errorf("unknown proposal %q", ry.Proposal)
	}
	r.CompartmentID = fellingCompartment
	if ry.Compartment != "" {
		id, ok := compartments[ry.Compartment]
		if !ok {
			return r, fmt.Errorf("unknown compartment %q", ry.Compartment)
		}
		r.CompartmentID = id
	}
	if r.Area, err = parseDecimal(ry.Area); err != nil {
		return r, fmt.Errorf("area: %w", err)
	}
	if r.RestockingDensity, err = parseDecimal(ry.Density); err != nil {
		return r, fmt.Errorf("density: %w", err)
	}
	if r.PercentOpenSpace, err = parseNullDecimal(ry.PercentOpenSpace); err != nil {
		return r, fmt.Errorf("percent_open_space: %w", err)
	}
	if r.PercentNaturalRegeneration, err = parseNullDecimal(ry.PercentNaturalRegeneration); err != nil {
		return r, fmt.Errorf("percent_natural_regeneration: %w", err)
	}
	r.NumberOfTrees = ry.NumberOfTrees
	for _, s := range ry.Species {
		pct, err := parseDecimal(s.Percentage)
		if err != nil {
			return r, fmt.Errorf("species %s: %w", s.Species, err)
		}
		r.Species = append(r.Species, review.RestockingSpecies{Species: s.Species, Percentage: pct})
	}
	return r, nil
}

func parseUser(uy UserYAML, role string) (review.UserAccount, error) {
	id, err := parseID(uy.ID)
	if err != nil {
		return review.UserAccount{}, err
	}
	return review.UserAccount{ID: id, FullName: uy.FullName, Email: uy.Email, Role: role}, nil
}

func parseID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(s)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseNullDecimal(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
