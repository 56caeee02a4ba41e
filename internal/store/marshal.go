package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/runcache/internal/meta"
	"github.com/roach88/runcache/internal/workspace"
)

// marshalLogs converts workspace logs to canonical JSON TEXT for storage.
func marshalLogs(logs meta.Object) (string, error) {
	if logs == nil {
		logs = meta.Object{}
	}
	data, err := meta.MarshalCanonical(logs)
	if err != nil {
		return "", fmt.Errorf("marshal logs: %w", err)
	}
	return string(data), nil
}

// marshalSpectra converts spectra to JSON TEXT. Nil spectra are stored as "[]".
func marshalSpectra(spectra []workspace.Spectrum) (string, error) {
	if spectra == nil {
		return "[]", nil
	}
	data, err := json.Marshal(spectra)
	if err != nil {
		return "", fmt.Errorf("marshal spectra: %w", err)
	}
	return string(data), nil
}

// unmarshalLogs parses canonical JSON TEXT to an Object.
// Uses meta.Object.UnmarshalJSON which keeps large integers exact.
func unmarshalLogs(data string) (meta.Object, error) {
	if data == "" || data == "{}" {
		return meta.Object{}, nil
	}
	var obj meta.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal logs: %w", err)
	}
	return obj, nil
}

// unmarshalSpectra parses JSON TEXT to spectra.
func unmarshalSpectra(data string) ([]workspace.Spectrum, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var spectra []workspace.Spectrum
	if err := json.Unmarshal([]byte(data), &spectra); err != nil {
		return nil, fmt.Errorf("unmarshal spectra: %w", err)
	}
	return spectra, nil
}
