// Package diagnostics tracks named scalar series produced while an
// agent learns, such as losses and exploration statistics, and saves
// the tracked data after learning has finished.
package diagnostics

import (
	"encoding/gob"
	"fmt"
	"os"
	"sort"
)

// Registry keeps track of named diagnostic series. Series must be
// declared before values can be recorded for them, so that a typo in a
// series name surfaces as an error rather than a silently empty file.
type Registry struct {
	series map[string][]float64
}

// NewRegistry returns a new, empty Registry
func NewRegistry() *Registry {
	return &Registry{series: make(map[string][]float64)}
}

// Declare registers a new named series with the Registry. Declaring
// the same name twice is an error.
func (r *Registry) Declare(name string) error {
	if name == "" {
		return fmt.Errorf("declare: series name cannot be empty")
	}
	if _, ok := r.series[name]; ok {
		return fmt.Errorf("declare: series %v already declared", name)
	}
	r.series[name] = make([]float64, 0, 64)

	return nil
}

// Record appends a value to a declared series
func (r *Registry) Record(name string, value float64) error {
	data, ok := r.series[name]
	if !ok {
		return fmt.Errorf("record: no such series %v", name)
	}
	r.series[name] = append(data, value)

	return nil
}

// Series returns a copy of the values recorded for a declared series
func (r *Registry) Series(name string) ([]float64, error) {
	data, ok := r.series[name]
	if !ok {
		return nil, fmt.Errorf("series: no such series %v", name)
	}
	out := make([]float64, len(data))
	copy(out, data)

	return out, nil
}

// Names returns the names of all declared series in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.series))
	for name := range r.series {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Save saves each declared series to its own file under dir, using
// the series name as the filename
func (r *Registry) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save: could not create directory: %v", err)
	}

	for _, name := range r.Names() {
		file, err := os.Create(dir + "/" + name)
		if err != nil {
			return fmt.Errorf("save: could not create data file: %v", err)
		}

		enc := gob.NewEncoder(file)
		err = enc.Encode(r.series[name])
		file.Close()
		if err != nil {
			return fmt.Errorf("save: could not encode data: %v", err)
		}
	}

	return nil
}

// LoadData loads and returns the data saved for a single series
func LoadData(filename string) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loaddata: could not open data file: %v", err)
	}
	defer file.Close()

	dec := gob.NewDecoder(file)
	var data []float64

	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("loaddata: could not decode data: %v", err)
	}

	return data, nil
}
