// Package fixtures seeds a store with reference data described in YAML:
// surveys with their dimensions and questions, companies, users and
// evaluations. It backs `evalflow seed` and the HTTP tests.
package fixtures

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evalflow/evalflow/internal/types"
)

// Store is the subset of storage.Storage a fixture writes to.
type Store interface {
	CreateSurvey(ctx context.Context, survey *types.Survey) error
	CreateDimension(ctx context.Context, dim *types.Dimension) error
	CreateQuestion(ctx context.Context, q *types.Question) error
	CreateCompany(ctx context.Context, company *types.Company) error
	CreateUser(ctx context.Context, user *types.User) error
	AddCompanyMember(ctx context.Context, companyID, userID string) error
	CreateEvaluation(ctx context.Context, e *types.Evaluation) error
}

// Fixture is a complete seed document.
type Fixture struct {
	Surveys     []Survey     `yaml:"surveys"`
	Companies   []Company    `yaml:"companies"`
	Users       []User       `yaml:"users"`
	Evaluations []Evaluation `yaml:"evaluations"`
}

// Survey is a survey template with its dimensions.
type Survey struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Dimensions  []Dimension `yaml:"dimensions"`
}

// Dimension groups questions inside a survey.
type Dimension struct {
	ID        string     `yaml:"id"`
	Name      string     `yaml:"name"`
	Questions []Question `yaml:"questions"`
}

// Question is written either as a bare string (the text) or as a mapping
// with id and text.
type Question struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
}

// UnmarshalYAML accepts the scalar shorthand.
func (q *Question) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		q.Text = node.Value
		return nil
	}
	type plain Question
	return node.Decode((*plain)(q))
}

// Company is a tenant.
type Company struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// User is a directory entry with its company memberships.
type User struct {
	ID        string     `yaml:"id"`
	Name      string     `yaml:"name"`
	Email     string     `yaml:"email"`
	Role      types.Role `yaml:"role"`
	Companies []string   `yaml:"companies"`
}

// Evaluation runs a survey for a company. The deadline is absolute, or
// relative to the time the fixture is applied.
type Evaluation struct {
	ID         string        `yaml:"id"`
	Survey     string        `yaml:"survey"`
	Company    string        `yaml:"company"`
	Owner      string        `yaml:"owner"`
	Deadline   time.Time     `yaml:"deadline"`
	DeadlineIn time.Duration `yaml:"deadline_in"`
}

// Summary counts what Apply created.
type Summary struct {
	Surveys     int `json:"surveys"`
	Dimensions  int `json:"dimensions"`
	Questions   int `json:"questions"`
	Companies   int `json:"companies"`
	Users       int `json:"users"`
	Evaluations int `json:"evaluations"`
}

// Load reads and validates a fixture file.
func Load(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Parse decodes and validates fixture YAML.
func Parse(data []byte) (*Fixture, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads fixture YAML from r. Unknown keys are rejected.
func Decode(r io.Reader) (*Fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var fx Fixture
	if err := dec.Decode(&fx); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("fixture is empty")
		}
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if err := fx.Validate(); err != nil {
		return nil, err
	}
	return &fx, nil
}

// Validate checks that every reference resolves inside the document.
// Ids may be omitted for surveys, dimensions, questions and companies
// that nothing refers to.
func (fx *Fixture) Validate() error {
	surveys := map[string]bool{}
	for i, s := range fx.Surveys {
		if s.Name == "" {
			return fmt.Errorf("surveys[%d]: name is required", i)
		}
		if err := claim(surveys, "survey", s.ID); err != nil {
			return err
		}
		for j, d := range s.Dimensions {
			if d.Name == "" {
				return fmt.Errorf("surveys[%d].dimensions[%d]: name is required", i, j)
			}
			for k, q := range d.Questions {
				if q.Text == "" {
					return fmt.Errorf("surveys[%d].dimensions[%d].questions[%d]: text is required", i, j, k)
				}
			}
		}
	}

	companies := map[string]bool{}
	for i, c := range fx.Companies {
		if c.Name == "" {
			return fmt.Errorf("companies[%d]: name is required", i)
		}
		if err := claim(companies, "company", c.ID); err != nil {
			return err
		}
	}

	users := map[string]bool{}
	for i, u := range fx.Users {
		if u.ID == "" {
			return fmt.Errorf("users[%d]: id is required", i)
		}
		if err := claim(users, "user", u.ID); err != nil {
			return err
		}
		if !u.Role.IsValid() {
			return fmt.Errorf("user %s: invalid role %q", u.ID, u.Role)
		}
		for _, c := range u.Companies {
			if !companies[c] {
				return fmt.Errorf("user %s: unknown company %q", u.ID, c)
			}
		}
	}

	evaluations := map[string]bool{}
	for i, e := range fx.Evaluations {
		if err := claim(evaluations, "evaluation", e.ID); err != nil {
			return err
		}
		switch {
		case !surveys[e.Survey]:
			return fmt.Errorf("evaluations[%d]: unknown survey %q", i, e.Survey)
		case !companies[e.Company]:
			return fmt.Errorf("evaluations[%d]: unknown company %q", i, e.Company)
		case !users[e.Owner]:
			return fmt.Errorf("evaluations[%d]: unknown owner %q", i, e.Owner)
		case e.Deadline.IsZero() == (e.DeadlineIn == 0):
			return fmt.Errorf("evaluations[%d]: exactly one of deadline and deadline_in is required", i)
		case e.DeadlineIn < 0:
			return fmt.Errorf("evaluations[%d]: deadline_in must be positive", i)
		}
	}
	return nil
}

func claim(seen map[string]bool, kind, id string) error {
	if id == "" {
		return nil
	}
	if seen[id] {
		return fmt.Errorf("duplicate %s id %q", kind, id)
	}
	seen[id] = true
	return nil
}

// Apply writes the fixture to the store in dependency order. Generated ids
// are written back into fx, so callers can look records up afterwards.
// Relative deadlines are resolved against now.
func (fx *Fixture) Apply(ctx context.Context, store Store, now time.Time) (*Summary, error) {
	var sum Summary
	dimensionCount := map[string]int{}

	for i := range fx.Surveys {
		s := &fx.Surveys[i]
		survey := &types.Survey{ID: s.ID, Name: s.Name, Description: s.Description}
		if err := store.CreateSurvey(ctx, survey); err != nil {
			return &sum, fmt.Errorf("survey %q: %w", s.Name, err)
		}
		s.ID = survey.ID
		sum.Surveys++

		for pos := range s.Dimensions {
			d := &s.Dimensions[pos]
			dim := &types.Dimension{ID: d.ID, SurveyID: s.ID, Name: d.Name, Position: pos}
			if err := store.CreateDimension(ctx, dim); err != nil {
				return &sum, fmt.Errorf("dimension %q: %w", d.Name, err)
			}
			d.ID = dim.ID
			sum.Dimensions++
			dimensionCount[s.ID]++

			for qpos := range d.Questions {
				q := &d.Questions[qpos]
				question := &types.Question{ID: q.ID, DimensionID: d.ID, Text: q.Text, Position: qpos}
				if err := store.CreateQuestion(ctx, question); err != nil {
					return &sum, fmt.Errorf("question %q: %w", q.Text, err)
				}
				q.ID = question.ID
				sum.Questions++
			}
		}
	}

	for i := range fx.Companies {
		c := &fx.Companies[i]
		company := &types.Company{ID: c.ID, Name: c.Name}
		if err := store.CreateCompany(ctx, company); err != nil {
			return &sum, fmt.Errorf("company %q: %w", c.Name, err)
		}
		c.ID = company.ID
		sum.Companies++
	}

	for _, u := range fx.Users {
		user := &types.User{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
		if err := store.CreateUser(ctx, user); err != nil {
			return &sum, fmt.Errorf("user %s: %w", u.ID, err)
		}
		for _, c := range u.Companies {
			if err := store.AddCompanyMember(ctx, c, u.ID); err != nil {
				return &sum, fmt.Errorf("user %s: %w", u.ID, err)
			}
		}
		sum.Users++
	}

	for i := range fx.Evaluations {
		e := &fx.Evaluations[i]
		deadline := e.Deadline
		if e.DeadlineIn > 0 {
			deadline = now.Add(e.DeadlineIn)
		}
		ev := &types.Evaluation{
			ID:              e.ID,
			SurveyID:        e.Survey,
			CompanyID:       e.Company,
			OwnerID:         e.Owner,
			Deadline:        deadline,
			TotalDimensions: dimensionCount[e.Survey],
		}
		if err := store.CreateEvaluation(ctx, ev); err != nil {
			return &sum, fmt.Errorf("evaluation %d: %w", i, err)
		}
		e.ID = ev.ID
		sum.Evaluations++
	}
	return &sum, nil
}

// Dimension returns the dimension with the given id.
func (fx *Fixture) Dimension(id string) *Dimension {
	for i := range fx.Surveys {
		for j := range fx.Surveys[i].Dimensions {
			if fx.Surveys[i].Dimensions[j].ID == id {
				return &fx.Surveys[i].Dimensions[j]
			}
		}
	}
	return nil
}
