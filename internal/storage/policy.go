package storage

import (
	"encoding/json"
	"fmt"

	"splitwise/internal/core"
)

// policyParams is the JSON shape of the policy_params column. Only the field
// matching the policy name is populated.
type policyParams struct {
	ExactMinor map[string]int64   `json:"exactMinor,omitempty"`
	Percents   map[string]float64 `json:"percents,omitempty"`
	Shares     map[string]int64   `json:"shares,omitempty"`
}

func marshalPolicy(p core.SplitPolicy) (name, params string, err error) {
	var pp policyParams
	switch v := p.(type) {
	case core.EqualSplit:
	case core.ExactSplit:
		pp.ExactMinor = v.AmountsMinor
	case core.PercentSplit:
		pp.Percents = v.Percents
	case core.SharesSplit:
		pp.Shares = v.Shares
	default:
		return "", "", fmt.Errorf("%w: %T", core.ErrUnsupportedPolicy, p)
	}
	raw, err := json.Marshal(pp)
	if err != nil {
		return "", "", fmt.Errorf("marshal policy params: %w", err)
	}
	return p.Name(), string(raw), nil
}

func unmarshalPolicy(name, params string) (core.SplitPolicy, error) {
	var pp policyParams
	if err := json.Unmarshal([]byte(params), &pp); err != nil {
		return nil, fmt.Errorf("unmarshal policy params: %w", err)
	}
	return core.ParseSplitPolicy(name, pp.ExactMinor, pp.Percents, pp.Shares)
}

func marshalParticipants(participants []string) (string, error) {
	raw, err := json.Marshal(participants)
	if err != nil {
		return "", fmt.Errorf("marshal participants: %w", err)
	}
	return string(raw), nil
}

func unmarshalParticipants(raw string) ([]string, error) {
	var participants []string
	if err := json.Unmarshal([]byte(raw), &participants); err != nil {
		return nil, fmt.Errorf("unmarshal participants: %w", err)
	}
	return participants, nil
}
