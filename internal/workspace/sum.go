package workspace

import "fmt"

// Add accumulates the counts of other into w spectrum by spectrum.
// Both workspaces must have the same spectra layout.
func (w *Workspace) Add(other *Workspace) error {
	if len(w.Spectra) != len(other.Spectra) {
		return fmt.Errorf("add %q to %q: spectra count mismatch (%d != %d)",
			other.Name, w.Name, len(other.Spectra), len(w.Spectra))
	}
	for i := range w.Spectra {
		dst, src := &w.Spectra[i], other.Spectra[i]
		if dst.ID != src.ID || len(dst.Counts) != len(src.Counts) {
			return fmt.Errorf("add %q to %q: spectrum %d layout mismatch", other.Name, w.Name, dst.ID)
		}
		for j, c := range src.Counts {
			dst.Counts[j] += c
		}
	}
	return nil
}

// SplitMonitors removes monitor spectra from w and returns them.
func (w *Workspace) SplitMonitors() []Spectrum {
	var data, monitors []Spectrum
	for _, s := range w.Spectra {
		if s.Monitor {
			monitors = append(monitors, s)
		} else {
			data = append(data, s)
		}
	}
	w.Spectra = data
	return monitors
}
