// Copyright (C) 2025  Nexedi SA and Contributors.
//                     Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.

package tlv

// ProjectConfig is the richest variant: per-project access control and
// label (review category) policy, plus per-ref rule overrides.
type ProjectConfig struct {
	ProjectID    string
	Description  string
	InheritFrom  string
	SyncInterval uint64
	Refs         []RefConfig
	Labels       []LabelConfig
}

type RefConfig struct {
	RefName    string
	Operations []OperationRule
	LabelRules []LabelRule
}

type OperationRule struct {
	Operation string
	Access    string
	UserID    string
	GroupID   string
}

type LabelRule struct {
	Label    string
	MinValue int8
	MaxValue int8
	UserID   string
	GroupID  string
}

type LabelConfig struct {
	Label        string
	Function     string
	DefaultValue int8
	Values       []LabelValue
}

type LabelValue struct {
	Value       int8
	Description string
}

func (p *ProjectConfig) Marshal() (uint64, []byte) {
	var b Builder
	b.WriteString(TagProjectID, p.ProjectID)
	b.WriteString(TagDescription, p.Description)
	b.WriteString(TagInheritFrom, p.InheritFrom)
	b.WriteUint(TagSyncInterval, p.SyncInterval)
	for i := range p.Refs {
		var nested Builder
		p.Refs[i].encodeInto(&nested)
		b.WriteNested(TagRefConfig, &nested)
	}
	for i := range p.Labels {
		var nested Builder
		p.Labels[i].encodeInto(&nested)
		b.WriteNested(TagLabelConfig, &nested)
	}
	return TagProjectConfig, b.Bytes()
}

func (r *RefConfig) encodeInto(b *Builder) {
	b.WriteString(TagRefConfigName, r.RefName)
	for i := range r.Operations {
		var nested Builder
		r.Operations[i].encodeInto(&nested)
		b.WriteNested(TagOperationRule, &nested)
	}
	for i := range r.LabelRules {
		var nested Builder
		r.LabelRules[i].encodeInto(&nested)
		b.WriteNested(TagLabelRule, &nested)
	}
}

func (o *OperationRule) encodeInto(b *Builder) {
	b.WriteString(TagOperation, o.Operation)
	b.WriteString(TagAccess, o.Access)
	if o.UserID != "" {
		b.WriteString(TagUserID, o.UserID)
	}
	if o.GroupID != "" {
		b.WriteString(TagGroupID, o.GroupID)
	}
}

func (l *LabelRule) encodeInto(b *Builder) {
	b.WriteString(TagLabel, l.Label)
	b.WriteBiasedInt8(TagMinValue, l.MinValue)
	b.WriteBiasedInt8(TagMaxValue, l.MaxValue)
	if l.UserID != "" {
		b.WriteString(TagUserID, l.UserID)
	}
	if l.GroupID != "" {
		b.WriteString(TagGroupID, l.GroupID)
	}
}

func (l *LabelConfig) encodeInto(b *Builder) {
	b.WriteString(TagLabel, l.Label)
	b.WriteString(TagFunction, l.Function)
	b.WriteBiasedInt8(TagDefaultValue, l.DefaultValue)
	for i := range l.Values {
		var nested Builder
		l.Values[i].encodeInto(&nested)
		b.WriteNested(TagLabelValue, &nested)
	}
}

func (v *LabelValue) encodeInto(b *Builder) {
	b.WriteBiasedInt8(TagValue, v.Value)
	b.WriteString(TagLabelValDesc, v.Description)
}

func decodeProjectConfig(value []byte) (*ProjectConfig, error) {
	var p ProjectConfig
	par := NewParser(value)
	for par.More() {
		e, ok, err := par.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch e.Type {
		case TagProjectID:
			p.ProjectID = e.String()
		case TagDescription:
			p.Description = e.String()
		case TagInheritFrom:
			p.InheritFrom = e.String()
		case TagSyncInterval:
			n, err := e.Uint()
			if err != nil {
				return nil, err
			}
			p.SyncInterval = n
		case TagRefConfig:
			rc, err := decodeRefConfig(e.Value)
			if err != nil {
				return nil, err
			}
			p.Refs = append(p.Refs, *rc)
		case TagLabelConfig:
			lc, err := decodeLabelConfig(e.Value)
			if err != nil {
				return nil, err
			}
			p.Labels = append(p.Labels, *lc)
		}
	}
	return &p, nil
}

func decodeRefConfig(value []byte) (*RefConfig, error) {
	var r RefConfig
	p := NewParser(value)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch e.Type {
		case TagRefConfigName:
			r.RefName = e.String()
		case TagOperationRule:
			o, err := decodeOperationRule(e.Value)
			if err != nil {
				return nil, err
			}
			r.Operations = append(r.Operations, *o)
		case TagLabelRule:
			l, err := decodeLabelRule(e.Value)
			if err != nil {
				return nil, err
			}
			r.LabelRules = append(r.LabelRules, *l)
		}
	}
	return &r, nil
}

func decodeOperationRule(value []byte) (*OperationRule, error) {
	var o OperationRule
	p := NewParser(value)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch e.Type {
		case TagOperation:
			o.Operation = e.String()
		case TagAccess:
			o.Access = e.String()
		case TagUserID:
			o.UserID = e.String()
		case TagGroupID:
			o.GroupID = e.String()
		}
	}
	return &o, nil
}

func decodeLabelRule(value []byte) (*LabelRule, error) {
	var l LabelRule
	p := NewParser(value)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch e.Type {
		case TagLabel:
			l.Label = e.String()
		case TagMinValue:
			n, err := e.BiasedInt8()
			if err != nil {
				return nil, err
			}
			l.MinValue = n
		case TagMaxValue:
			n, err := e.BiasedInt8()
			if err != nil {
				return nil, err
			}
			l.MaxValue = n
		case TagUserID:
			l.UserID = e.String()
		case TagGroupID:
			l.GroupID = e.String()
		}
	}
	return &l, nil
}

func decodeLabelConfig(value []byte) (*LabelConfig, error) {
	var l LabelConfig
	p := NewParser(value)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch e.Type {
		case TagLabel:
			l.Label = e.String()
		case TagFunction:
			l.Function = e.String()
		case TagDefaultValue:
			n, err := e.BiasedInt8()
			if err != nil {
				return nil, err
			}
			l.DefaultValue = n
		case TagLabelValue:
			v, err := decodeLabelValue(e.Value)
			if err != nil {
				return nil, err
			}
			l.Values = append(l.Values, *v)
		}
	}
	return &l, nil
}

func decodeLabelValue(value []byte) (*LabelValue, error) {
	var v LabelValue
	p := NewParser(value)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch e.Type {
		case TagValue:
			n, err := e.BiasedInt8()
			if err != nil {
				return nil, err
			}
			v.Value = n
		case TagLabelValDesc:
			v.Description = e.String()
		}
	}
	return &v, nil
}
