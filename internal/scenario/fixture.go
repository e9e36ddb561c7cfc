package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"contractkit/internal/abicodec"
	"contractkit/internal/chainerr"
	"contractkit/internal/contract"
	"contractkit/internal/descriptor"
)

// Fixture is a declarative scenario read from YAML:
//
//	name: choice-enum
//	contracts:
//	  choice: ChoiceEnum
//	steps:
//	  - deploy: choice
//	  - call: choice.getChoice
//	    expect: ["0"]
//	  - send: choice.setLarge
//
// Arguments and expectations may reference deployed aliases as ${alias}
// and the session account as ${sender}.
type Fixture struct {
	Name      string            `yaml:"name"`
	Contracts map[string]string `yaml:"contracts"`
	Steps     []Step            `yaml:"steps"`
}

// Step is one action of a fixture. Exactly one of Deploy, Call and Send
// is set.
type Step struct {
	Description  string   `yaml:"description,omitempty"`
	Deploy       string   `yaml:"deploy,omitempty"`
	Call         string   `yaml:"call,omitempty"`
	Send         string   `yaml:"send,omitempty"`
	Args         []string `yaml:"args,omitempty"`
	Expect       []string `yaml:"expect,omitempty"`
	ExpectRevert bool     `yaml:"expectRevert,omitempty"`
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// ParseFixture decodes and validates a YAML fixture
func ParseFixture(data []byte) (*Fixture, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f Fixture
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the fixture shape without touching the chain
func (f *Fixture) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("fixture name is required")
	}
	if len(f.Steps) == 0 {
		return fmt.Errorf("fixture %s: no steps", f.Name)
	}
	for alias := range f.Contracts {
		if alias == "sender" {
			return fmt.Errorf("fixture %s: alias %q is reserved", f.Name, alias)
		}
	}
	for i, s := range f.Steps {
		if err := f.validateStep(s); err != nil {
			return fmt.Errorf("fixture %s step %d: %w", f.Name, i, err)
		}
	}
	return nil
}

func (f *Fixture) validateStep(s Step) error {
	set := 0
	for _, v := range []string{s.Deploy, s.Call, s.Send} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one of deploy, call and send is required")
	}
	if s.Deploy != "" {
		if _, ok := f.Contracts[s.Deploy]; !ok {
			return fmt.Errorf("unknown contract alias %q", s.Deploy)
		}
		if len(s.Expect) > 0 || s.ExpectRevert {
			return fmt.Errorf("deploy steps take no expectations")
		}
		return nil
	}
	if s.Send != "" && len(s.Expect) > 0 {
		return fmt.Errorf("send steps take no expect")
	}
	alias, _, err := splitTarget(s.Call + s.Send)
	if err != nil {
		return err
	}
	if _, ok := f.Contracts[alias]; !ok {
		return fmt.Errorf("unknown contract alias %q", alias)
	}
	return nil
}

func splitTarget(target string) (string, string, error) {
	alias, fn, ok := strings.Cut(target, ".")
	if !ok || alias == "" || fn == "" {
		return "", "", fmt.Errorf("target %q must be alias.function", target)
	}
	return alias, fn, nil
}

// LoadFixtureFile reads one fixture from disk
func LoadFixtureFile(file string) (*Fixture, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", file, err)
	}
	f, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return f, nil
}

// LoadFixtures reads every *.yaml and *.yml file under root, sorted by name
func LoadFixtures(fsys fs.FS, root string) ([]*Fixture, error) {
	var fixtures []*Fixture
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := path.Ext(p)
		if d.IsDir() || (ext != ".yaml" && ext != ".yml") {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		f, err := ParseFixture(data)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		fixtures = append(fixtures, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(fixtures, func(i, j int) bool { return fixtures[i].Name < fixtures[j].Name })
	return fixtures, nil
}

// fixtureRun holds the per-run state of a fixture
type fixtureRun struct {
	fixture   *Fixture
	session   *contract.Session
	registry  *descriptor.Registry
	instances map[string]*contract.Instance
}

// AsScenario adapts the fixture to the Scenario interface
func (f *Fixture) AsScenario() Scenario { return fixtureScenario{f} }

type fixtureScenario struct {
	f *Fixture
}

func (s fixtureScenario) Name() string { return s.f.Name }

// Run executes the steps in order. A failed deploy ends the run since
// later steps depend on it; other failures are recorded and the run goes on.
func (s fixtureScenario) Run(ctx context.Context, session *contract.Session, reg *descriptor.Registry, c *Collector) error {
	r := &fixtureRun{
		fixture:   s.f,
		session:   session,
		registry:  reg,
		instances: make(map[string]*contract.Instance),
	}
	for i, step := range s.f.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		desc := step.Description
		if desc == "" {
			desc = describe(step)
		}
		var err error
		switch {
		case step.Deploy != "":
			err = r.deploy(ctx, step)
			if err != nil {
				c.Failf(desc, "%v", err)
				return fmt.Errorf("step %d: %w", i, err)
			}
			c.Check(desc, true, r.instances[step.Deploy].Address().Hex())
			continue
		case step.Call != "":
			err = r.call(ctx, step)
		default:
			err = r.send(ctx, step)
		}
		if err != nil {
			c.Failf(desc, "%v", err)
		} else {
			c.Pass(desc)
		}
	}
	return nil
}

func describe(s Step) string {
	var b strings.Builder
	switch {
	case s.Deploy != "":
		b.WriteString("deploy " + s.Deploy)
	case s.Call != "":
		b.WriteString("call " + s.Call)
	default:
		b.WriteString("send " + s.Send)
	}
	if len(s.Args) > 0 {
		b.WriteString("(" + strings.Join(s.Args, ", ") + ")")
	}
	if len(s.Expect) > 0 {
		b.WriteString(" == " + strings.Join(s.Expect, ", "))
	}
	if s.ExpectRevert {
		b.WriteString(" reverts")
	}
	return b.String()
}

func (r *fixtureRun) substitute(texts []string) ([]string, error) {
	out := make([]string, len(texts))
	var missing error
	for i, t := range texts {
		out[i] = placeholder.ReplaceAllStringFunc(t, func(m string) string {
			name := placeholder.FindStringSubmatch(m)[1]
			if name == "sender" {
				return r.session.From().Hex()
			}
			inst, ok := r.instances[name]
			if !ok {
				missing = fmt.Errorf("%s is not deployed", m)
				return m
			}
			return inst.Address().Hex()
		})
	}
	return out, missing
}

func (r *fixtureRun) deploy(ctx context.Context, s Step) error {
	d, err := r.registry.Get(r.fixture.Contracts[s.Deploy])
	if err != nil {
		return err
	}
	var args []abicodec.TypedValue
	if len(s.Args) > 0 {
		texts, err := r.substitute(s.Args)
		if err != nil {
			return err
		}
		if args, err = abicodec.ParseAll(d.Constructor().Tags, texts); err != nil {
			return err
		}
	}
	inst, err := r.session.Deploy(ctx, d, args...)
	if err != nil {
		return err
	}
	r.instances[s.Deploy] = inst
	return nil
}

func (r *fixtureRun) target(target string, argTexts []string) (*contract.Instance, *descriptor.Function, []abicodec.TypedValue, error) {
	alias, fn, err := splitTarget(target)
	if err != nil {
		return nil, nil, nil, err
	}
	inst, ok := r.instances[alias]
	if !ok {
		return nil, nil, nil, fmt.Errorf("%s is not deployed", alias)
	}
	f, err := inst.Descriptor().Function(fn)
	if err != nil {
		return nil, nil, nil, err
	}
	texts, err := r.substitute(argTexts)
	if err != nil {
		return nil, nil, nil, err
	}
	args, err := abicodec.ParseAll(f.Input.Tags, texts)
	if err != nil {
		return nil, nil, nil, err
	}
	return inst, f, args, nil
}

func (r *fixtureRun) call(ctx context.Context, s Step) error {
	inst, f, args, err := r.target(s.Call, s.Args)
	if err != nil {
		return err
	}
	values, err := inst.Call(ctx, f.Sig, args...)
	if s.ExpectRevert {
		if isRevert(err) {
			return nil
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("expected call to revert")
	}
	if err != nil {
		return err
	}
	if s.Expect == nil {
		return nil
	}
	return r.compare(f, values, s.Expect)
}

func (r *fixtureRun) compare(f *descriptor.Function, values []abicodec.TypedValue, expect []string) error {
	texts, err := r.substitute(expect)
	if err != nil {
		return err
	}
	if len(texts) != len(values) {
		return fmt.Errorf("expected %d values, got %d", len(texts), len(values))
	}
	want, err := abicodec.ParseAll(f.OutputTags, texts)
	if err != nil {
		return fmt.Errorf("bad expectation: %w", err)
	}
	for i := range values {
		if !values[i].Equal(want[i]) {
			return fmt.Errorf("output %d: expected %s, got %s", i, want[i], values[i])
		}
	}
	return nil
}

func (r *fixtureRun) send(ctx context.Context, s Step) error {
	inst, f, args, err := r.target(s.Send, s.Args)
	if err != nil {
		return err
	}
	_, err = inst.Transact(ctx, f.Sig, args...)
	if s.ExpectRevert {
		if isRevert(err) {
			return nil
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("expected transaction to revert")
	}
	return err
}

// isRevert reports a mined revert or a node refusing the message because
// execution reverts (eth_call and gas estimation)
func isRevert(err error) bool {
	if errors.Is(err, chainerr.ErrTransactionReverted) {
		return true
	}
	var remote *chainerr.RemoteError
	if errors.As(err, &remote) {
		return remote.Code == 3 || strings.Contains(remote.Message, "revert")
	}
	return false
}
