// Package actions defines the declarative sheet mutations handed to the
// spreadsheet client, the per-invocation queue that collects them and the
// verification pass run before they are delivered.
package actions

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the value of an action's "action" discriminator.
type Kind string

const (
	KindCreateSheet  Kind = "createSheet"
	KindSetValues    Kind = "setValues"
	KindSetFormula   Kind = "setFormula"
	KindFormatRange  Kind = "formatRange"
	KindAutoFillDown Kind = "autoFillDown"
	KindHighlight    Kind = "highlight"
	KindFilter       Kind = "filter"
	KindSort         Kind = "sort"
	KindClearFilters Kind = "clearFilters"
	KindCreateChart  Kind = "createChart"

	// Chat answers may also carry these lighter actions.
	KindSetValue     Kind = "setValue"
	KindInsertColumn Kind = "insertColumn"
	KindChart        Kind = "chart"
)

// Action is one instruction for the external executor. The core never
// applies actions itself.
type Action interface {
	Kind() Kind
}

type CreateSheet struct {
	Name string `json:"name"`
}

type SetValues struct {
	Sheet  string  `json:"sheet"`
	Range  string  `json:"range"`
	Values [][]any `json:"values"`
}

type SetFormula struct {
	Sheet    string `json:"sheet"`
	Cell     string `json:"cell"`
	Formula  string `json:"formula"`
	FillDown bool   `json:"fillDown"`
}

type FormatRange struct {
	Sheet      string `json:"sheet"`
	Range      string `json:"range"`
	Bold       bool   `json:"bold"`
	Background string `json:"background,omitempty"`
	FontColor  string `json:"fontColor,omitempty"`
}

type AutoFillDown struct {
	Sheet      string `json:"sheet"`
	SourceCell string `json:"sourceCell"`
	LastRow    int    `json:"lastRow"`
}

type Highlight struct {
	Range string `json:"range"`
	Color string `json:"color"`
}

type Filter struct {
	Column   string `json:"column"`
	Criteria string `json:"criteria"`
}

type Sort struct {
	Column    string `json:"column"`
	Ascending bool   `json:"ascending"`
}

type ClearFilters struct{}

// CreateChart plots labelColumn against valueColumn on dataSheet. A zero
// EndRow is omitted so the executor auto-detects it.
type CreateChart struct {
	ChartType   string `json:"chartType"`
	Title       string `json:"title"`
	DataSheet   string `json:"dataSheet"`
	LabelColumn string `json:"labelColumn"`
	ValueColumn string `json:"valueColumn"`
	StartRow    int    `json:"startRow"`
	EndRow      int    `json:"endRow,omitempty"`
}

type SetValue struct {
	Cell  string `json:"cell"`
	Value any    `json:"value"`
}

type InsertColumn struct {
	After  string `json:"after"`
	Header string `json:"header,omitempty"`
}

// Chart is the single-range chart a chat answer may request.
type Chart struct {
	Type      string `json:"type"`
	DataRange string `json:"dataRange"`
	Title     string `json:"title,omitempty"`
}

func (CreateSheet) Kind() Kind  { return KindCreateSheet }
func (SetValues) Kind() Kind    { return KindSetValues }
func (SetFormula) Kind() Kind   { return KindSetFormula }
func (FormatRange) Kind() Kind  { return KindFormatRange }
func (AutoFillDown) Kind() Kind { return KindAutoFillDown }
func (Highlight) Kind() Kind    { return KindHighlight }
func (Filter) Kind() Kind       { return KindFilter }
func (Sort) Kind() Kind         { return KindSort }
func (ClearFilters) Kind() Kind { return KindClearFilters }
func (CreateChart) Kind() Kind  { return KindCreateChart }
func (SetValue) Kind() Kind     { return KindSetValue }
func (InsertColumn) Kind() Kind { return KindInsertColumn }
func (Chart) Kind() Kind        { return KindChart }

// ErrUnknownKind is returned when decoding an unrecognized discriminator.
var ErrUnknownKind = errors.New("actions: unknown action")

// Marshal encodes an action with its "action" discriminator first.
func Marshal(a Action) ([]byte, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	kind, _ := json.Marshal(a.Kind())
	out := append([]byte(`{"action":`), kind...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
		return out, nil
	}
	return append(out, '}'), nil
}

// Decode parses one tagged action object.
func Decode(raw []byte) (Action, error) {
	var head struct {
		Action Kind `json:"action"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("actions: decode: %w", err)
	}
	switch head.Action {
	case KindCreateSheet:
		return decodeAs[CreateSheet](raw)
	case KindSetValues:
		return decodeAs[SetValues](raw)
	case KindSetFormula:
		return decodeAs[SetFormula](raw)
	case KindFormatRange:
		return decodeAs[FormatRange](raw)
	case KindAutoFillDown:
		return decodeAs[AutoFillDown](raw)
	case KindHighlight:
		return decodeAs[Highlight](raw)
	case KindFilter:
		return decodeAs[Filter](raw)
	case KindSort:
		return decodeAs[Sort](raw)
	case KindClearFilters:
		return ClearFilters{}, nil
	case KindCreateChart:
		return decodeAs[CreateChart](raw)
	case KindSetValue:
		return decodeAs[SetValue](raw)
	case KindInsertColumn:
		return decodeAs[InsertColumn](raw)
	case KindChart:
		return decodeAs[Chart](raw)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, head.Action)
	}
}

func decodeAs[T Action](raw []byte) (Action, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("actions: decode %s: %w", v.Kind(), err)
	}
	return v, nil
}

// List is an ordered action sequence with tagged JSON encoding.
type List []Action

func (l List) MarshalJSON() ([]byte, error) {
	out := []byte{'['}
	for i, a := range l {
		if i > 0 {
			out = append(out, ',')
		}
		b, err := Marshal(a)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return append(out, ']'), nil
}

func (l *List) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("actions: decode list: %w", err)
	}
	out := make(List, 0, len(raws))
	for _, r := range raws {
		a, err := Decode(r)
		if err != nil {
			return err
		}
		out = append(out, a)
	}
	*l = out
	return nil
}
