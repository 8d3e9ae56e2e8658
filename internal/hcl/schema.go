package hcl

import (
	"github.com/hashicorp/hcl/v2"
)

// fileRoot is used to decode all top-level blocks from any file.
type fileRoot struct {
	Campaigns []*campaignBlock `hcl:"campaign,block"`
	Locals    []*localsBlock   `hcl:"locals,block"`
	Artifacts []*artifactBlock `hcl:"artifact,block"`
	Sweeps    []*sweepBlock    `hcl:"sweep,block"`
	Jobs      []*jobBlock      `hcl:"job,block"`
}

type campaignBlock struct {
	Name        string    `hcl:"name,label"`
	Description string    `hcl:"description,optional"`
	DefRange    hcl.Range `hcl:",def_range"`
}

type localsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

type artifactBlock struct {
	Name     string    `hcl:"name,label"`
	Body     hcl.Body  `hcl:",remain"`
	DefRange hcl.Range `hcl:",def_range"`
}

type sweepBlock struct {
	Axes     []*axisBlock `hcl:"axis,block"`
	DefRange hcl.Range    `hcl:",def_range"`
}

type axisBlock struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

type jobBlock struct {
	Body     hcl.Body  `hcl:",remain"`
	DefRange hcl.Range `hcl:",def_range"`
}

var artifactSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "kind", Required: true},
		{Name: "path", Required: true},
		{Name: "cwd"},
		{Name: "command"},
		{Name: "documentation"},
		{Name: "inputs"},
	},
}

var axisSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "values", Required: true},
		{Name: "allowed"},
	},
}

var jobSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "timeout", Required: true},
		{Name: "command", Required: true},
		{Name: "artifacts"},
		{Name: "outdir"},
	},
}
