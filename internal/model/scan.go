package model

import "encoding/json"

// ScanResult is the backend's verdict on one uploaded still. The wire format
// tolerates both naming conventions the backend has shipped: valid|is_valid
// and points|points_awarded. Classification fields are opaque to the client.
type ScanResult struct {
	Valid          bool                       `json:"valid"`
	Points         int                        `json:"points"`
	TotalPoints    *int                       `json:"total_points,omitempty"`
	Reason         string                     `json:"reason,omitempty"`
	Classification map[string]json.RawMessage `json:"classification,omitempty"`
}

func (r *ScanResult) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := ScanResult{}
	for _, key := range []string{"valid", "is_valid"} {
		if v, ok := raw[key]; ok {
			if err := json.Unmarshal(v, &out.Valid); err != nil {
				return err
			}
			delete(raw, key)
			break
		}
	}

	for _, key := range []string{"points", "points_awarded"} {
		if v, ok := raw[key]; ok {
			if err := json.Unmarshal(v, &out.Points); err != nil {
				return err
			}
			delete(raw, key)
			break
		}
	}

	if v, ok := raw["total_points"]; ok {
		if err := json.Unmarshal(v, &out.TotalPoints); err != nil {
			return err
		}
		delete(raw, "total_points")
	}

	if v, ok := raw["reason"]; ok {
		if err := json.Unmarshal(v, &out.Reason); err != nil {
			return err
		}
		delete(raw, "reason")
	}

	if v, ok := raw["classification"]; ok {
		if err := json.Unmarshal(v, &out.Classification); err != nil {
			return err
		}
		delete(raw, "classification")
	}

	// Any leftover keys are classification metadata the backend inlined.
	if len(raw) > 0 {
		if out.Classification == nil {
			out.Classification = map[string]json.RawMessage{}
		}
		for k, v := range raw {
			out.Classification[k] = v
		}
	}

	*r = out
	return nil
}

type QRValidation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// PushMessage is the envelope on the per-user notification stream. The scan
// core recognizes exactly type "scan_result"; everything else is ignored.
type PushMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const PushTypeScanResult = "scan_result"
