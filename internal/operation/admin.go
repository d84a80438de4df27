package operation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/view"
)

// GetJobDetails returns one job's detail.
type GetJobDetails struct {
	Base
	JobID string `json:"jobId,omitempty"`
}

func (*GetJobDetails) Class() string    { return "GetJobDetails" }
func (*GetJobDetails) InputType() Type  { return TypeVoid }
func (*GetJobDetails) OutputType() Type { return TypeJobDetails }
func (o *GetJobDetails) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

// GetAllJobDetails returns the details of every job visible to the user.
type GetAllJobDetails struct {
	Base
}

func (*GetAllJobDetails) Class() string    { return "GetAllJobDetails" }
func (*GetAllJobDetails) InputType() Type  { return TypeVoid }
func (*GetAllJobDetails) OutputType() Type { return TypeJobDetails }
func (o *GetAllJobDetails) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

// CancelScheduledJob stops a repeating job from scheduling new runs.
type CancelScheduledJob struct {
	Base
	JobID string `json:"jobId"`
}

func (*CancelScheduledJob) Class() string    { return "CancelScheduledJob" }
func (*CancelScheduledJob) InputType() Type  { return TypeVoid }
func (*CancelScheduledJob) OutputType() Type { return TypeVoid }
func (o *CancelScheduledJob) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

func (o *CancelScheduledJob) Validate() error {
	return requireField(o.Class(), "jobId", o.JobID)
}

// AddNamedView stores a view under a name.
type AddNamedView struct {
	Base
	Name        string                          `json:"name"`
	View        *view.View                      `json:"view"`
	Description string                          `json:"description,omitempty"`
	Parameters  map[string]view.ParameterDetail `json:"parameters,omitempty"`
	// MergedNamedViews are resolved and merged under this view on use.
	MergedNamedViews []string `json:"mergedNamedViews,omitempty"`
	Overwrite        bool     `json:"overwriteFlag,omitempty"`
}

func (*AddNamedView) Class() string    { return "AddNamedView" }
func (*AddNamedView) InputType() Type  { return TypeVoid }
func (*AddNamedView) OutputType() Type { return TypeVoid }
func (o *AddNamedView) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	c.View = o.View.Clone()
	c.Parameters = maps.Clone(o.Parameters)
	c.MergedNamedViews = slices.Clone(o.MergedNamedViews)
	return &c
}

func (o *AddNamedView) Validate() error {
	if err := requireField(o.Class(), "name", o.Name); err != nil {
		return err
	}
	if o.View == nil {
		return errors.ValidationErrorf("%s requires a view", o.Class()).WithContext("operation", o.Class())
	}
	if o.View.IsNamed() {
		return errors.NestedNamedViewNotAllowedf("named view %s cannot be defined as named view %s", o.Name, o.View.Name).
			WithContext("operation", o.Class())
	}
	return nil
}

// Detail builds the cached form of the view.
func (o *AddNamedView) Detail(creator string) (view.NamedViewDetail, error) {
	d, err := view.NewNamedViewDetail(o.Name, o.View, o.Parameters)
	if err != nil {
		return d, err
	}
	d.Description = o.Description
	d.Creator = creator
	d.MergedNamedViews = o.MergedNamedViews
	return d, d.Validate()
}

// GetAllNamedViews lists the stored named views.
type GetAllNamedViews struct {
	Base
}

func (*GetAllNamedViews) Class() string    { return "GetAllNamedViews" }
func (*GetAllNamedViews) InputType() Type  { return TypeVoid }
func (*GetAllNamedViews) OutputType() Type { return TypeNamedViews }
func (o *GetAllNamedViews) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

// DeleteNamedView removes a named view.
type DeleteNamedView struct {
	Base
	Name string `json:"name"`
}

func (*DeleteNamedView) Class() string    { return "DeleteNamedView" }
func (*DeleteNamedView) InputType() Type  { return TypeVoid }
func (*DeleteNamedView) OutputType() Type { return TypeVoid }
func (o *DeleteNamedView) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

func (o *DeleteNamedView) Validate() error {
	return requireField(o.Class(), "name", o.Name)
}

// NamedOperationDetail is the cached form of a named operation. Chain is
// a JSON operation chain template with "${param}" placeholders.
type NamedOperationDetail struct {
	Name        string                          `json:"operationName"`
	Description string                          `json:"description,omitempty"`
	Creator     string                          `json:"creatorId,omitempty"`
	Chain       string                          `json:"operations"`
	Parameters  map[string]view.ParameterDetail `json:"parameters,omitempty"`
	Labels      []string                        `json:"labels,omitempty"`
}

// Validate checks the detail has a name and a template.
func (d NamedOperationDetail) Validate() error {
	if d.Name == "" {
		return errors.ValidationErrorf("named operation has no name")
	}
	if d.Chain == "" {
		return errors.ValidationErrorf("named operation %s has no operations", d.Name).WithContext("named_operation", d.Name)
	}
	return nil
}

// Instantiate substitutes parameters into the template and decodes it.
func (d NamedOperationDetail) Instantiate(supplied map[string]any) (*Chain, error) {
	owner := fmt.Sprintf("named operation %s", d.Name)
	values, err := view.Bind(owner, d.Parameters, supplied)
	if err != nil {
		return nil, err
	}
	text, err := view.Substitute(d.Chain, values)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "failed to substitute parameters").
			WithContext("named_operation", d.Name)
	}
	op, err := Decode([]byte(text))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "named operation template is not an operation").
			WithContext("named_operation", d.Name)
	}
	return AsChain(op), nil
}

// AddNamedOperation stores a chain under a name. The chain is given either
// as a Chain or, when it carries "${param}" placeholders in typed fields, as
// a JSON Template. In JSON both travel in "operationChain": an object is a
// chain, a string is a template.
type AddNamedOperation struct {
	Base
	Name        string                          `json:"operationName"`
	Chain       *Chain                          `json:"-"`
	Template    string                          `json:"-"`
	Description string                          `json:"description,omitempty"`
	Parameters  map[string]view.ParameterDetail `json:"parameters,omitempty"`
	Labels      []string                        `json:"labels,omitempty"`
	Overwrite   bool                            `json:"overwriteFlag,omitempty"`
}

func (*AddNamedOperation) Class() string    { return "AddNamedOperation" }
func (*AddNamedOperation) InputType() Type  { return TypeVoid }
func (*AddNamedOperation) OutputType() Type { return TypeVoid }
func (o *AddNamedOperation) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	if o.Chain != nil {
		c.Chain = o.Chain.CloneChain()
	}
	c.Parameters = maps.Clone(o.Parameters)
	c.Labels = slices.Clone(o.Labels)
	return &c
}

func (o *AddNamedOperation) Validate() error {
	if err := requireField(o.Class(), "operationName", o.Name); err != nil {
		return err
	}
	if o.Template != "" {
		if !json.Valid([]byte(o.Template)) {
			return errors.ValidationErrorf("%s: operation chain template is not JSON", o.Class()).WithContext("operation", o.Class())
		}
		return nil
	}
	if o.Chain == nil || len(o.Chain.Ops) == 0 {
		return errors.ValidationErrorf("%s requires an operation chain", o.Class()).WithContext("operation", o.Class())
	}
	return nil
}

// Detail builds the cached form of the named operation.
func (o *AddNamedOperation) Detail(creator string) (NamedOperationDetail, error) {
	text := o.Template
	if text == "" {
		data, err := Encode(o.Chain)
		if err != nil {
			return NamedOperationDetail{}, err
		}
		text = string(data)
	}
	d := NamedOperationDetail{
		Name:        o.Name,
		Description: o.Description,
		Creator:     creator,
		Chain:       text,
		Parameters:  o.Parameters,
		Labels:      o.Labels,
	}
	return d, d.Validate()
}

type addNamedOperationJSON struct {
	Class          string                          `json:"class"`
	Name           string                          `json:"operationName"`
	OperationChain json.RawMessage                 `json:"operationChain,omitempty"`
	Description    string                          `json:"description,omitempty"`
	Parameters     map[string]view.ParameterDetail `json:"parameters,omitempty"`
	Labels         []string                        `json:"labels,omitempty"`
	Overwrite      bool                            `json:"overwriteFlag,omitempty"`
	Options        map[string]string               `json:"options,omitempty"`
}

func (o *AddNamedOperation) MarshalJSON() ([]byte, error) {
	out := addNamedOperationJSON{
		Class:       o.Class(),
		Name:        o.Name,
		Description: o.Description,
		Parameters:  o.Parameters,
		Labels:      o.Labels,
		Overwrite:   o.Overwrite,
		Options:     o.Opts,
	}
	var err error
	switch {
	case o.Template != "":
		out.OperationChain, err = json.Marshal(o.Template)
	case o.Chain != nil:
		out.OperationChain, err = Encode(o.Chain)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (o *AddNamedOperation) UnmarshalJSON(data []byte) error {
	var in addNamedOperationJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return err
	}
	*o = AddNamedOperation{
		Base:        Base{Opts: in.Options},
		Name:        in.Name,
		Description: in.Description,
		Parameters:  in.Parameters,
		Labels:      in.Labels,
		Overwrite:   in.Overwrite,
	}
	raw := bytes.TrimSpace(in.OperationChain)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		return json.Unmarshal(raw, &o.Template)
	default:
		op, err := Decode(raw)
		if err != nil {
			return err
		}
		o.Chain = AsChain(op)
	}
	return nil
}

// GetAllNamedOperations lists the stored named operations.
type GetAllNamedOperations struct {
	Base
}

func (*GetAllNamedOperations) Class() string    { return "GetAllNamedOperations" }
func (*GetAllNamedOperations) InputType() Type  { return TypeVoid }
func (*GetAllNamedOperations) OutputType() Type { return TypeNamedOperations }
func (o *GetAllNamedOperations) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

// DeleteNamedOperation removes a named operation.
type DeleteNamedOperation struct {
	Base
	Name string `json:"operationName"`
}

func (*DeleteNamedOperation) Class() string    { return "DeleteNamedOperation" }
func (*DeleteNamedOperation) InputType() Type  { return TypeVoid }
func (*DeleteNamedOperation) OutputType() Type { return TypeVoid }
func (o *DeleteNamedOperation) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

func (o *DeleteNamedOperation) Validate() error {
	return requireField(o.Class(), "operationName", o.Name)
}

// NamedOperation runs a stored chain. It is replaced by that chain before
// execution.
type NamedOperation struct {
	Base
	input
	Name       string         `json:"operationName"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (*NamedOperation) Class() string    { return "NamedOperation" }
func (*NamedOperation) InputType() Type  { return TypeAny }
func (*NamedOperation) OutputType() Type { return TypeAny }
func (o *NamedOperation) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	c.Parameters = maps.Clone(o.Parameters)
	return &c
}

func (o *NamedOperation) Validate() error {
	return requireField(o.Class(), "operationName", o.Name)
}

// GetAllGraphIDs lists the delegate graphs of a federated store.
type GetAllGraphIDs struct {
	Base
}

func (*GetAllGraphIDs) Class() string    { return "GetAllGraphIds" }
func (*GetAllGraphIDs) InputType() Type  { return TypeVoid }
func (*GetAllGraphIDs) OutputType() Type { return TypeStrings }
func (o *GetAllGraphIDs) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

// RemoveGraph detaches a delegate graph from a federated store. The output
// reports whether the graph was present.
type RemoveGraph struct {
	Base
	GraphID string `json:"graphId"`
}

func (*RemoveGraph) Class() string    { return "RemoveGraph" }
func (*RemoveGraph) InputType() Type  { return TypeVoid }
func (*RemoveGraph) OutputType() Type { return TypeBoolean }
func (o *RemoveGraph) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

func (o *RemoveGraph) Validate() error {
	return requireField(o.Class(), "graphId", o.GraphID)
}

func requireField(class, field, value string) error {
	if value == "" {
		return errors.ValidationErrorf("%s requires %s", class, field).WithContext("operation", class)
	}
	return nil
}
