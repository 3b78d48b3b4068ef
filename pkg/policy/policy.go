package policy

import (
	"context"
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/utils/logging"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/topdown/print"
)

//go:embed default.rego
var defaultPolicy string

const query = "data.swipe.decision"

// printHook forwards Rego print() statements to the logger
type printHook struct {
	ctx context.Context
}

func (h *printHook) Print(_ print.Context, message string) error {
	logging.From(h.ctx).Debug("rego print", "message", message)
	return nil
}

// Policy decides like or pass on a candidate with a Rego module
type Policy struct {
	prepared *rego.PreparedEvalQuery
}

// Input is the document a policy sees as `input`
type Input struct {
	Persona   *model.Persona `json:"persona"`
	Candidate *model.Profile `json:"candidate"`
}

// New loads every .rego file of policyDir. The built-in policy is used when
// policyDir is empty.
func New(ctx context.Context, policyDir string) (*Policy, error) {
	modules, err := loadModules(policyDir)
	if err != nil {
		return nil, err
	}

	options := make([]func(*rego.Rego), 0, len(modules)+1)
	options = append(options, rego.Query(query))
	options = append(options, modules...)

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare swipe policy", goerr.V("query", query))
	}

	return &Policy{prepared: &prepared}, nil
}

func loadModules(policyDir string) ([]func(*rego.Rego), error) {
	if policyDir == "" {
		return []func(*rego.Rego){rego.Module("default.rego", defaultPolicy)}, nil
	}

	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", policyDir))
	}
	if len(files) == 0 {
		return nil, goerr.New("no policy file found", goerr.V("dir", policyDir))
	}

	modules := make([]func(*rego.Rego), 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		modules = append(modules, rego.Module(file, string(data)))
	}
	return modules, nil
}

// Decide evaluates the policy for one candidate. An undefined decision is a pass.
func (p *Policy) Decide(ctx context.Context, in Input) (model.Direction, error) {
	// round trip through JSON so the policy sees wire field names
	raw, err := json.Marshal(in)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal policy input")
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", goerr.Wrap(err, "failed to unmarshal policy input")
	}

	rs, err := p.prepared.Eval(ctx, rego.EvalInput(doc), rego.EvalPrintHook(&printHook{ctx: ctx}))
	if err != nil {
		return "", goerr.Wrap(err, "failed to evaluate swipe policy")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return model.DirectionPass, nil
	}

	value, ok := rs[0].Expressions[0].Value.(string)
	if !ok {
		return "", goerr.New("swipe decision is not a string", goerr.V("value", rs[0].Expressions[0].Value))
	}

	dir := model.Direction(value)
	if err := dir.Validate(); err != nil {
		return "", goerr.Wrap(err, "swipe policy returned an unknown decision")
	}
	return dir, nil
}
